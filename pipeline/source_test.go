package pipeline

import (
	"context"
	"math"
	"testing"

	"github.com/khaledhikmat/vs-verdict/model"
	"github.com/khaledhikmat/vs-verdict/service/config"
	"github.com/khaledhikmat/vs-verdict/service/inference"
	"github.com/khaledhikmat/vs-verdict/service/video"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStride(t *testing.T) {
	tests := []struct {
		native, target float64
		want           int
	}{
		{30, 5, 6},
		{29.97, 5, 5},
		{25, 5, 5},
		{60, 5, 12},
		{4, 5, 1},
		{5, 5, 1},
		{0, 5, 1},
		{30, 0, 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Stride(tt.native, tt.target), "native=%v target=%v", tt.native, tt.target)
	}
}

func TestNewStreamInfo(t *testing.T) {
	info := NewStreamInfo(video.Metadata{NativeFPS: 30, TotalFrames: 300}, 5, 30)
	assert.Equal(t, 30.0, info.NativeFPS)
	assert.Equal(t, 300, info.TotalFrames)
	assert.Equal(t, 10.0, info.DurationSeconds)
	assert.Equal(t, 6, info.Stride)
	assert.False(t, info.FPSFallback)

	for _, total := range []int{-1, maxFrameCount + 1, 1 << 50} {
		info = NewStreamInfo(video.Metadata{NativeFPS: 30, TotalFrames: total}, 5, 30)
		assert.Equal(t, 0, info.TotalFrames, "total=%d", total)
		assert.Equal(t, 0.0, info.DurationSeconds, "total=%d", total)
		assert.Equal(t, 6, info.Stride, "total=%d", total)
	}

	info = NewStreamInfo(video.Metadata{NativeFPS: 30, TotalFrames: maxFrameCount}, 5, 30)
	assert.Equal(t, maxFrameCount, info.TotalFrames)

	for _, fps := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		info = NewStreamInfo(video.Metadata{NativeFPS: fps, TotalFrames: 60}, 5, 30)
		assert.True(t, info.FPSFallback, "fps=%v", fps)
		assert.Equal(t, 30.0, info.NativeFPS)
		assert.Equal(t, 2.0, info.DurationSeconds)
		assert.Equal(t, 6, info.Stride)
	}
}

func TestSampleChunk(t *testing.T) {
	assert.Equal(t, []int{0, 6, 12, 18}, sampleChunk(0, 20, 6, 32))
	assert.Equal(t, []int{0, 1, 2}, sampleChunk(0, 3, 1, 32))
	assert.Equal(t, []int{12, 18}, sampleChunk(12, 20, 6, 32))
	assert.Equal(t, []int{6, 12}, sampleChunk(6, 300, 6, 2))
	assert.Empty(t, sampleChunk(0, 0, 6, 32))
	assert.Empty(t, sampleChunk(24, 20, 6, 32))
	assert.Len(t, sampleChunk(0, 300, 6, 1000), 50)

	// Sized by the chunk, not by the reported frame count
	chunk := sampleChunk(0, 1<<50, 1, 32)
	assert.Len(t, chunk, 32)
	assert.Equal(t, 32, cap(chunk))
}

func timelineThumbs(t *testing.T, svcs ServicesFactory, path string) []string {
	t.Helper()

	result, err := NewOrchestrator(svcs, nil).Run(context.Background(), path)
	require.NoError(t, err)

	thumbs := make([]string, 0, len(result.Timeline))
	for _, entry := range result.Timeline {
		thumbs = append(thumbs, entry.Thumbnail)
	}
	return thumbs
}

func TestBulkAndSequentialDecodersYieldSameFrames(t *testing.T) {
	videos := map[string]video.FakeVideo{
		"clip.mp4": {
			NativeFPS:   30,
			TotalFrames: 1000,
			Corrupt:     map[int]bool{12: true, 13: true, 600: true},
		},
	}

	sequential := newTestConfig()
	sequential.decoder = config.SequentialDecoder

	bulk := newTestConfig()
	bulk.decoder = config.BulkDecoder
	bulk.chunk = 7

	fast := inference.NewConstant("fast", 0.02)
	seqThumbs := timelineThumbs(t, newServices(sequential, videos, fast, nil), "clip.mp4")
	bulkThumbs := timelineThumbs(t, newServices(bulk, videos, fast, nil), "clip.mp4")

	// 167 sampled indices, two of them corrupt
	assert.Len(t, seqThumbs, 165)
	assert.Equal(t, seqThumbs, bulkThumbs)
	assert.NotContains(t, seqThumbs, "thumb-12")
	assert.NotContains(t, seqThumbs, "thumb-600")
	assert.Contains(t, seqThumbs, "thumb-18")
}

func TestSourceCountsDroppedFrames(t *testing.T) {
	videos := map[string]video.FakeVideo{
		"clip.mp4": {NativeFPS: 5, TotalFrames: 10, Corrupt: map[int]bool{3: true, 7: true}},
	}

	for _, decoder := range []string{config.SequentialDecoder, config.BulkDecoder} {
		cfg := newTestConfig()
		cfg.decoder = decoder

		result, err := NewOrchestrator(newServices(cfg, videos, inference.NewConstant("fast", 0.1), nil), nil).
			Run(context.Background(), "clip.mp4")
		require.NoError(t, err, decoder)
		assert.Equal(t, 8, result.ProcessedFrameCount, decoder)
		assert.Equal(t, 2, result.DroppedFrameCount, decoder)
	}
}

func TestImplausibleFrameCountReadsUntilEOF(t *testing.T) {
	videos := map[string]video.FakeVideo{
		"damaged.mp4": {NativeFPS: 30, TotalFrames: 60, ReportedFrames: 1 << 50},
	}

	for _, decoder := range []string{config.SequentialDecoder, config.BulkDecoder} {
		cfg := newTestConfig()
		cfg.decoder = decoder

		result, err := NewOrchestrator(newServices(cfg, videos, inference.NewConstant("fast", 0.1), nil), nil).
			Run(context.Background(), "damaged.mp4")
		require.NoError(t, err, decoder)
		assert.Equal(t, 10, result.ProcessedFrameCount, decoder)
		assert.Equal(t, 0, result.DroppedFrameCount, decoder)
		assert.Equal(t, model.VerdictNegative, result.Verdict, decoder)
	}
}
