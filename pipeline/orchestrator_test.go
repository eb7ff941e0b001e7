package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/khaledhikmat/vs-verdict/model"
	"github.com/khaledhikmat/vs-verdict/service/inference"
	"github.com/khaledhikmat/vs-verdict/service/lgr"
	"github.com/khaledhikmat/vs-verdict/service/video"
	stackerrors "github.com/mdobak/go-xerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenarioVideos = map[string]video.FakeVideo{
	"clip.mp4":    {NativeFPS: 30, TotalFrames: 300},
	"corrupt.mp4": {NativeFPS: 30, TotalFrames: 30, Corrupt: map[int]bool{0: true, 6: true, 12: true, 18: true, 24: true}},
	"empty.mp4":   {NativeFPS: 30, TotalFrames: 0},
	"nofps.mp4":   {NativeFPS: 0, TotalFrames: 90},
	"missing.mp4": {OpenErr: errors.New("moov atom not found")},
}

func TestScenarioStridedSampling(t *testing.T) {
	svcs := newServices(newTestConfig(), scenarioVideos, inference.NewConstant("fast", 0.02), nil)

	o := NewOrchestrator(svcs, nil)
	assert.Equal(t, Idle, o.State())

	result, err := o.Run(context.Background(), "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, Done, o.State())
	assert.Equal(t, o.RunID(), result.RunID)
	assert.NotEmpty(t, result.RunID)

	assert.Equal(t, 50, result.ProcessedFrameCount)
	assert.Equal(t, 0, result.DroppedFrameCount)
	assert.Equal(t, 10.0, result.DurationSeconds)
	require.Len(t, result.Timeline, 50)
	for i, entry := range result.Timeline {
		assert.InDelta(t, float64(i)*0.2, entry.TimeSeconds, 1e-9)
		assert.Equal(t, fmt.Sprintf("thumb-%d", i*6), entry.Thumbnail)
	}
}

func TestScenarioAllNegative(t *testing.T) {
	svcs := newServices(newTestConfig(), scenarioVideos, inference.NewConstant("fast", 0.1), nil)

	result, err := NewOrchestrator(svcs, nil).Run(context.Background(), "clip.mp4")
	require.NoError(t, err)

	assert.Equal(t, model.VerdictNegative, result.Verdict)
	assert.InDelta(t, 0.1, result.MeanProbability, 1e-9)
	assert.InDelta(t, 0.9, result.OverallConfidence, 1e-9)
	assert.Empty(t, result.FlaggedFrames)
}

func TestScenarioBurstOfPositives(t *testing.T) {
	fast := inference.NewFake("fast", byIndex(func(index int) float64 {
		if index/6 >= 40 {
			return 0.98
		}
		return 0.1
	}))
	svcs := newServices(newTestConfig(), scenarioVideos, fast, nil)

	result, err := NewOrchestrator(svcs, nil).Run(context.Background(), "clip.mp4")
	require.NoError(t, err)

	assert.Equal(t, model.VerdictPositive, result.Verdict)
	assert.InDelta(t, 0.276, result.MeanProbability, 1e-9)
	assert.Equal(t, 0.98, result.PeakProbability)
	assert.InDelta(t, 0.2, result.PositiveFrameRatio, 1e-12)
	assert.Equal(t, 0.98, result.OverallConfidence)
	require.Len(t, result.FlaggedFrames, 10)
	assert.Equal(t, 240, result.FlaggedFrames[0].Index)
	assert.Equal(t, 8.0, result.FlaggedFrames[0].TimeSeconds)
}

func TestScenarioNoDecodableFrames(t *testing.T) {
	for _, path := range []string{"corrupt.mp4", "empty.mp4"} {
		o := NewOrchestrator(newServices(newTestConfig(), scenarioVideos, inference.NewConstant("fast", 0.1), nil), nil)

		result, err := o.Run(context.Background(), path)
		require.Error(t, err, path)
		assert.True(t, errors.Is(err, ErrNoFrames), path)
		assert.Equal(t, model.PipelineResult{}, result)
		assert.Equal(t, Failed, o.State())
	}
}

func TestFallbackFrameRate(t *testing.T) {
	svcs := newServices(newTestConfig(), scenarioVideos, inference.NewConstant("fast", 0.1), nil)

	result, err := NewOrchestrator(svcs, nil).Run(context.Background(), "nofps.mp4")
	require.NoError(t, err)
	assert.Equal(t, 15, result.ProcessedFrameCount)
	assert.Equal(t, 3.0, result.DurationSeconds)
}

func TestOpenFailureIsStreamFatal(t *testing.T) {
	for _, path := range []string{"missing.mp4", "unknown.mp4"} {
		o := NewOrchestrator(newServices(newTestConfig(), scenarioVideos, inference.NewConstant("fast", 0.1), nil), nil)

		_, err := o.Run(context.Background(), path)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrStreamFatal), path)
		assert.Equal(t, Failed, o.State())
	}
}

func TestScorerErrorFailsRun(t *testing.T) {
	calls := 0
	fast := inference.NewFake("fast", func([]float32) (float64, error) {
		calls++
		if calls > 20 {
			return 0, errors.New("device lost")
		}
		return 0.1, nil
	})

	cfg := newTestConfig()
	cfg.frameQueue = 4
	cfg.batchSize = 2

	o := NewOrchestrator(newServices(cfg, scenarioVideos, fast, nil), nil)
	result, err := o.Run(context.Background(), "clip.mp4")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrScorer))
	assert.Equal(t, model.PipelineResult{}, result)
	assert.Equal(t, Failed, o.State())

	// Stage failures carry a stack the prod logger renders
	assert.NotEmpty(t, stackerrors.StackTrace(err))

	var buf bytes.Buffer
	lgr.New(&buf, "prod", "info").Error("pipeline run failed", slog.Any("error", err))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	errField, ok := line["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, errField["msg"], "device lost")
	assert.NotEmpty(t, errField["trace"])
}

func TestInvalidScorerOutputFailsRun(t *testing.T) {
	o := NewOrchestrator(newServices(newTestConfig(), scenarioVideos, stubScorer{probs: []float64{0.5}}, nil), nil)

	_, err := o.Run(context.Background(), "clip.mp4")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrScorer))
}

func TestRunOnlyOnce(t *testing.T) {
	o := NewOrchestrator(newServices(newTestConfig(), scenarioVideos, inference.NewConstant("fast", 0.1), nil), nil)

	_, err := o.Run(context.Background(), "clip.mp4")
	require.NoError(t, err)

	_, err = o.Run(context.Background(), "clip.mp4")
	assert.True(t, errors.Is(err, ErrAlreadyStarted))
	assert.Equal(t, Done, o.State())
}

func TestCancellationStopsRunWithoutDeadlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel from inside the first scorer call while the producers are busy
	fast := inference.NewFake("fast", func([]float32) (float64, error) {
		cancel()
		return 0.1, nil
	})

	cfg := newTestConfig()
	cfg.frameQueue = 2
	cfg.batchSize = 1
	cfg.batchQueue = 1

	videos := map[string]video.FakeVideo{"long.mp4": {NativeFPS: 5, TotalFrames: 100000}}
	o := NewOrchestrator(newServices(cfg, videos, fast, nil), nil)

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(ctx, "long.mp4")
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Equal(t, Failed, o.State())
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
}

func TestIdempotentRuns(t *testing.T) {
	fast := inference.NewFake("fast", byIndex(func(index int) float64 {
		return float64(index%100) / 100
	}))
	slow := inference.NewFake("slow", byIndex(func(index int) float64 {
		return float64(index%7) / 7
	}))

	first, err := NewOrchestrator(newServices(newTestConfig(), scenarioVideos, fast, slow), nil).Run(context.Background(), "clip.mp4")
	require.NoError(t, err)
	second, err := NewOrchestrator(newServices(newTestConfig(), scenarioVideos, fast, slow), nil).Run(context.Background(), "clip.mp4")
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Verdict, second.Verdict)
	assert.Equal(t, first.Timeline, second.Timeline)
	assert.Equal(t, first.FlaggedFrames, second.FlaggedFrames)
	assert.Greater(t, first.SlowScoredFrameCount, 0)
}

func TestConcurrentIndependentRuns(t *testing.T) {
	var wg sync.WaitGroup
	results := make([]model.PipelineResult, 4)
	errs := make([]error, 4)

	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			svcs := newServices(newTestConfig(), scenarioVideos, inference.NewConstant("fast", 0.01*float64(i+1)), nil)
			results[i], errs[i] = NewOrchestrator(svcs, nil).Run(context.Background(), "clip.mp4")
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, 50, results[i].ProcessedFrameCount)
		assert.InDelta(t, 0.01*float64(i+1), results[i].MeanProbability, 1e-9)
	}
}

func TestBackpressureBoundsInFlightFrames(t *testing.T) {
	const capacity = 16

	cfg := newTestConfig()
	cfg.frameQueue = capacity
	cfg.batchSize = 2
	cfg.batchQueue = 1

	videos := map[string]video.FakeVideo{"long.mp4": {NativeFPS: 5, TotalFrames: 200}}
	svcs := newServices(cfg, videos, nil, nil)
	decoder := svcs.VideoSvc.(interface{ Decoded() int })

	scored, peak := 0, 0
	svcs.FastScorer = inference.NewFake("fast", func([]float32) (float64, error) {
		time.Sleep(time.Millisecond)
		if inFlight := decoder.Decoded() - scored; inFlight > peak {
			peak = inFlight
		}
		scored++
		return 0.1, nil
	})

	result, err := NewOrchestrator(svcs, nil).Run(context.Background(), "long.mp4")
	require.NoError(t, err)
	assert.Equal(t, 200, result.ProcessedFrameCount)
	assert.LessOrEqual(t, peak, 2*capacity)
}

func TestStatsAreEmitted(t *testing.T) {
	statsStream := make(chan interface{}, 10)
	svcs := newServices(newTestConfig(), scenarioVideos, inference.NewConstant("fast", 0.1), nil)

	result, err := NewOrchestrator(svcs, statsStream).Run(context.Background(), "clip.mp4")
	require.NoError(t, err)
	close(statsStream)

	var source model.SourceStats
	var batcher model.BatcherStats
	var scorer model.ScorerStats
	var run model.RunStats
	for stats := range statsStream {
		switch s := stats.(type) {
		case model.SourceStats:
			source = s
		case model.BatcherStats:
			batcher = s
		case model.ScorerStats:
			scorer = s
		case model.RunStats:
			run = s
		}
	}

	assert.Equal(t, 50, source.Frames)
	assert.Equal(t, 6, source.Stride)
	assert.Equal(t, "sequential", source.Strategy)
	assert.Equal(t, 50, batcher.Frames)
	assert.Equal(t, 7, batcher.Batches)
	assert.True(t, batcher.Staged)
	assert.Equal(t, 7, scorer.Batches)
	assert.Equal(t, 50, scorer.Frames)
	assert.Equal(t, result.RunID, run.RunID)
	assert.Equal(t, "DONE", run.State)
	assert.Equal(t, "NEGATIVE", run.Verdict)
	assert.Equal(t, 50, run.ProcessedFrames)
}

func TestDetectionLogForPositiveVerdicts(t *testing.T) {
	var log bytes.Buffer

	svcs := newServices(newTestConfig(), scenarioVideos, inference.NewConstant("fast", 0.99), nil)
	svcs.DetectionLog = &log
	result, err := NewOrchestrator(svcs, nil).Run(context.Background(), "clip.mp4")
	require.NoError(t, err)
	require.Equal(t, model.VerdictPositive, result.Verdict)

	var entry detection
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(log.Bytes()), &entry))
	assert.Equal(t, result.RunID, entry.RunID)
	assert.Equal(t, "clip.mp4", entry.Video)
	assert.Equal(t, model.VerdictPositive, entry.Verdict)
	assert.Len(t, entry.FlaggedFrames, 10)

	log.Reset()
	svcs = newServices(newTestConfig(), scenarioVideos, inference.NewConstant("fast", 0.01), nil)
	svcs.DetectionLog = &log
	_, err = NewOrchestrator(svcs, nil).Run(context.Background(), "clip.mp4")
	require.NoError(t, err)
	assert.Zero(t, log.Len())
}
