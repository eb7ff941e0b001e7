package pipeline

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/khaledhikmat/vs-verdict/model"
	"github.com/khaledhikmat/vs-verdict/service/lgr"
	"github.com/khaledhikmat/vs-verdict/service/metrics"
	stackerrors "github.com/mdobak/go-xerrors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/xerrors"
)

type State int32

const (
	Idle State = iota
	Running
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Running:
		return "RUNNING"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Orchestrator runs one video through source, batcher and cascade. It owns its
// queues and goroutines, so independent orchestrators may run concurrently.
// An orchestrator runs once.
type Orchestrator struct {
	svcs        ServicesFactory
	statsStream chan interface{}
	cascade     *Cascade

	state atomic.Int32

	// Set before the stage goroutines start
	parentCtx context.Context
	runID     string
	video     string
	info      model.StreamInfo

	// Written by the owning stage, read after the join
	sourceDropped  int
	batcherDropped int
}

// NewOrchestrator builds an idle orchestrator. statsStream may be nil; when
// set, stage and run stats are sent on it until the run context is done.
func NewOrchestrator(svcs ServicesFactory, statsStream chan interface{}) *Orchestrator {
	return &Orchestrator{
		svcs:        svcs,
		statsStream: statsStream,
		cascade:     NewCascade(svcs.FastScorer, svcs.SlowScorer, svcs.CfgSvc.GetConfidentThreshold()),
		parentCtx:   context.Background(),
	}
}

func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// RunID is empty until Run is called.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Run analyses the video at path and blocks until a verdict is reached or the
// run fails. Cancelling ctx stops every stage and fails the run with ctx's error.
func (o *Orchestrator) Run(ctx context.Context, path string) (model.PipelineResult, error) {
	if !o.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return model.PipelineResult{}, ErrAlreadyStarted
	}

	o.parentCtx = ctx
	o.runID = uuid.NewString()
	o.video = path
	startTime := time.Now()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("run.id", o.runID),
			attribute.String("video", path),
		),
	)
	defer span.End()

	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	result, err := o.run(ctx)
	o.finish(result, err, startTime, span)
	if err != nil {
		return model.PipelineResult{}, err
	}
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context) (model.PipelineResult, error) {
	if o.svcs.VideoSvc == nil || o.svcs.Transformer == nil || o.svcs.FastScorer == nil {
		return model.PipelineResult{}, xerrors.New("video service, transformer and fast scorer are required")
	}

	stream, err := o.svcs.VideoSvc.Open(o.video)
	if err != nil {
		return model.PipelineResult{}, xerrors.Errorf("open %s: %v: %w", o.video, err, ErrStreamFatal)
	}
	defer stream.Close()

	cfgSvc := o.svcs.CfgSvc
	meta := stream.Metadata()
	o.info = NewStreamInfo(meta, cfgSvc.GetTargetFPS(), cfgSvc.GetDefaultFPS())
	if meta.TotalFrames > maxFrameCount {
		lgr.Logger.Warn("implausible frame count, reading until end of stream",
			slog.String("runID", o.runID),
			slog.Int("reportedFrames", meta.TotalFrames),
		)
	}
	if o.info.FPSFallback {
		lgr.Logger.Warn("native frame rate unreadable, using default",
			slog.String("runID", o.runID),
			slog.Float64("defaultFPS", o.info.NativeFPS),
		)
	}

	lgr.Logger.Info("pipeline run starting....",
		slog.String("runID", o.runID),
		slog.String("video", o.video),
		slog.Float64("nativeFPS", o.info.NativeFPS),
		slog.Int("totalFrames", o.info.TotalFrames),
		slog.Int("stride", o.info.Stride),
		slog.String("decoder", cfgSvc.GetDecoderStrategy()),
	)

	// A child context lets any stage stop the others
	runCtx, runCanxFn := context.WithCancel(ctx)
	defer runCanxFn()

	var fatalOnce sync.Once
	var fatal error
	// The stack is taken in the failing stage
	fail := func(err error) {
		fatalOnce.Do(func() { fatal = stackerrors.WithStackTrace(err, 1) })
		runCanxFn()
	}

	frames := make(chan Frame, cfgSvc.GetFrameQueueSize())
	batches := make(chan Batch, cfgSvc.GetBatchQueueSize())

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := o.source(runCtx, stream, frames); err != nil {
			fail(err)
		}
	}()

	go func() {
		defer wg.Done()
		o.batcher(runCtx, frames, batches)
	}()

	scored, err := o.consume(runCtx, batches)
	if err != nil {
		fail(err)
	}

	// The source must be done with the stream before it is closed
	wg.Wait()

	if fatal != nil {
		return model.PipelineResult{}, fatal
	}

	if err := ctx.Err(); err != nil {
		return model.PipelineResult{}, err
	}

	result, err := Aggregate(scored, o.info, cfgSvc.GetFlaggedFramesLimit())
	if err != nil {
		return model.PipelineResult{}, err
	}

	result.RunID = o.runID
	result.DroppedFrameCount = o.sourceDropped + o.batcherDropped
	return result, nil
}

// The scored frame list grows past this instead of trusting the frame count
const maxPresizedFrames = 4096

// consume scores batches until the batch queue is closed. Thumbnails are
// encoded here so previews can be released as soon as a batch is scored.
func (o *Orchestrator) consume(canxCtx context.Context, batches <-chan Batch) ([]ScoredFrame, error) {
	scored := make([]ScoredFrame, 0, min(sampleCount(o.info.TotalFrames, o.info.Stride), maxPresizedFrames))

	var batchCount = 0
	var frameCount = 0
	var slowFrames = 0
	var errors = 0
	var procTime time.Duration

	defer func() {
		avg := 0.0
		if batchCount > 0 {
			avg = procTime.Seconds() / float64(batchCount)
		}

		o.emit(model.ScorerStats{
			RunID:       o.runID,
			Video:       o.video,
			Batches:     batchCount,
			Frames:      frameCount,
			SlowFrames:  slowFrames,
			Errors:      errors,
			AvgProcTime: avg,
			Timestamp:   time.Now().Unix(),
		})
	}()

	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info("scorer context cancelled", slog.String("runID", o.runID))
			return nil, canxCtx.Err()

		case batch, ok := <-batches:
			if !ok {
				return scored, nil
			}

			start := time.Now()
			scores, err := o.cascade.Score(canxCtx, batch)
			batch.Release()
			if err != nil {
				errors++
				return nil, err
			}

			for i, score := range scores {
				if score.Slow {
					slowFrames++
				}
				scored = append(scored, ScoredFrame{
					FrameScore: score,
					Thumbnail:  o.thumbnail(batch.Previews[i], score.Index),
				})
			}

			batchCount++
			frameCount += len(scores)
			procTime += time.Since(start)
			metrics.BatchesTotal.Inc()
		}
	}
}

func (o *Orchestrator) thumbnail(preview image.Image, index int) string {
	if o.svcs.Thumbnailer == nil || preview == nil {
		return ""
	}

	thumb, err := o.svcs.Thumbnailer.Thumbnail(preview)
	if err != nil {
		lgr.Logger.Warn("thumbnail encoding failed",
			slog.String("runID", o.runID),
			slog.Int("index", index),
			slog.Any("error", err),
		)
		return ""
	}
	return thumb
}

func (o *Orchestrator) finish(result model.PipelineResult, err error, startTime time.Time, span trace.Span) {
	uptime := time.Since(startTime).Seconds()

	state := Done
	if err != nil {
		state = Failed
	}
	o.state.Store(int32(state))

	metrics.RunsTotal.WithLabelValues(state.String()).Inc()
	metrics.RunDuration.WithLabelValues("total").Observe(uptime)

	stats := model.RunStats{
		RunID:     o.runID,
		Video:     o.video,
		State:     state.String(),
		Uptime:    uptime,
		Timestamp: time.Now().Unix(),
	}

	if err != nil {
		if len(stackerrors.StackTrace(err)) == 0 {
			err = stackerrors.WithStackTrace(err, 1)
		}

		stats.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		lgr.Logger.Error("pipeline run failed",
			slog.String("runID", o.runID),
			slog.String("video", o.video),
			slog.Any("error", err),
		)
		o.emit(stats)
		return
	}

	stats.Verdict = string(result.Verdict)
	stats.ProcessedFrames = result.ProcessedFrameCount
	span.SetAttributes(
		attribute.String("verdict", string(result.Verdict)),
		attribute.Float64("confidence", result.OverallConfidence),
		attribute.Int("frames.processed", result.ProcessedFrameCount),
	)
	metrics.VerdictsTotal.WithLabelValues(string(result.Verdict)).Inc()

	lgr.Logger.Info("pipeline run done",
		slog.String("runID", o.runID),
		slog.String("video", o.video),
		slog.String("verdict", string(result.Verdict)),
		slog.Float64("confidence", result.OverallConfidence),
		slog.Int("processedFrames", result.ProcessedFrameCount),
		slog.Int("droppedFrames", result.DroppedFrameCount),
		slog.Int("slowScoredFrames", result.SlowScoredFrameCount),
		slog.Float64("uptime", uptime),
	)

	if result.Verdict == model.VerdictPositive && o.svcs.DetectionLog != nil {
		if err := writeDetection(o.svcs.DetectionLog, o.video, result); err != nil {
			lgr.Logger.Error("failed to write detection",
				slog.String("runID", o.runID),
				slog.Any("error", err),
			)
		}
	}

	o.emit(stats)
}

// emit sends stats without outliving the caller's context.
func (o *Orchestrator) emit(stats interface{}) {
	if o.statsStream == nil {
		return
	}

	select {
	case <-o.parentCtx.Done():
	case o.statsStream <- stats:
	}
}
