package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/khaledhikmat/vs-verdict/model"
	"github.com/khaledhikmat/vs-verdict/service/config"
	"github.com/khaledhikmat/vs-verdict/service/lgr"
	"github.com/khaledhikmat/vs-verdict/service/metrics"
	"github.com/khaledhikmat/vs-verdict/service/video"
	"golang.org/x/xerrors"
)

// Stride is the number of native frames between two samples:
// max(1, floor(native/target)).
func Stride(nativeFPS, targetFPS float64) int {
	if nativeFPS <= 0 || targetFPS <= 0 {
		return 1
	}

	stride := int(math.Floor(nativeFPS / targetFPS))
	if stride < 1 {
		return 1
	}
	return stride
}

// maxFrameCount is the largest frame count a decoder is believed to report.
// Damaged or unindexed containers can report garbage; anything above this is
// treated as unknown.
const maxFrameCount = 1 << 24

// NewStreamInfo resolves the native rate (falling back to defaultFPS when it
// is unreadable), the duration and the sampling stride. A negative or
// implausible frame count becomes 0 (unknown).
func NewStreamInfo(meta video.Metadata, targetFPS, defaultFPS float64) model.StreamInfo {
	fps, fallback := meta.NativeFPS, false
	if math.IsNaN(fps) || math.IsInf(fps, 0) || fps <= 0 {
		fps, fallback = defaultFPS, true
	}

	total := meta.TotalFrames
	if total < 0 || total > maxFrameCount {
		total = 0
	}

	return model.StreamInfo{
		NativeFPS:       fps,
		TotalFrames:     total,
		DurationSeconds: float64(total) / fps,
		Stride:          Stride(fps, targetFPS),
		FPSFallback:     fallback,
	}
}

func sampleCount(total, stride int) int {
	if total <= 0 || stride < 1 {
		return 0
	}
	return (total + stride - 1) / stride
}

// sampleChunk lists at most limit sampled indices starting at native index
// first, which must itself be a sampled index.
func sampleChunk(first, total, stride, limit int) []int {
	if stride < 1 || limit < 1 || first >= total {
		return []int{}
	}

	indices := make([]int, 0, min(limit, sampleCount(total-first, stride)))
	for i := first; i < total && len(indices) < limit; i += stride {
		indices = append(indices, i)
	}
	return indices
}

// source decodes the sampled frames into the frame queue and closes it when
// decoding stops for any reason. Only whole-stream failures are returned.
func (o *Orchestrator) source(canxCtx context.Context, stream video.Stream, frames chan<- Frame) error {
	defer close(frames)

	strategy := o.svcs.CfgSvc.GetDecoderStrategy()
	if strategy == config.BulkDecoder && o.info.TotalFrames <= 0 {
		lgr.Logger.Warn("unknown frame count, bulk decoder falls back to sequential",
			slog.String("runID", o.runID),
			slog.String("video", o.video),
		)
		strategy = config.SequentialDecoder
	}

	var startTime = time.Now()
	var frameCount = 0
	var droppedFrames = 0

	defer func() {
		uptime := time.Since(startTime).Seconds()
		fps := 0.0
		if uptime > 0 {
			fps = float64(frameCount) / uptime
		}

		o.sourceDropped = droppedFrames
		metrics.FramesSampledTotal.Add(float64(frameCount))
		metrics.FramesDroppedTotal.WithLabelValues("source").Add(float64(droppedFrames))

		o.emit(model.SourceStats{
			RunID:         o.runID,
			Video:         o.video,
			Strategy:      strategy,
			Stride:        o.info.Stride,
			Frames:        frameCount,
			DroppedFrames: droppedFrames,
			Uptime:        uptime,
			FPS:           fps,
			Timestamp:     time.Now().Unix(),
		})
	}()

	push := func(frame Frame) bool {
		// WARNING: the batcher may be gone if the run was cancelled
		select {
		case <-canxCtx.Done():
			return false
		case frames <- frame:
			frameCount++
			return true
		}
	}

	drop := func(index int, err error) {
		droppedFrames++
		lgr.Logger.Warn("frame decode failed, dropping frame",
			slog.String("runID", o.runID),
			slog.Int("index", index),
			slog.Any("error", err),
		)
	}

	if strategy == config.BulkDecoder {
		return o.bulkDecode(canxCtx, stream, push, drop)
	}
	return o.sequentialDecode(canxCtx, stream, push, drop)
}

// sequentialDecode reads one sampled frame and skips stride-1 frames.
func (o *Orchestrator) sequentialDecode(canxCtx context.Context, stream video.Stream, push func(Frame) bool, drop func(int, error)) error {
	stride := o.info.Stride

	for index := 0; ; index += stride {
		if canxCtx.Err() != nil {
			lgr.Logger.Info("source context cancelled", slog.String("runID", o.runID))
			return nil
		}

		if o.info.TotalFrames > 0 && index >= o.info.TotalFrames {
			return nil
		}

		img, err := stream.Read()
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, video.ErrFrameDecode):
			drop(index, err)
		case err != nil:
			return xerrors.Errorf("read frame %d: %v: %w", index, err, ErrStreamFatal)
		default:
			if !push(Frame{Index: index, Image: img}) {
				return nil
			}
		}

		if stride > 1 {
			if err := stream.Skip(stride - 1); err != nil {
				return xerrors.Errorf("skip after frame %d: %v: %w", index, err, ErrStreamFatal)
			}
		}
	}
}

// bulkDecode reads the sampled indices in chunks through random access. Only
// one chunk of indices exists at a time.
func (o *Orchestrator) bulkDecode(canxCtx context.Context, stream video.Stream, push func(Frame) bool, drop func(int, error)) error {
	total, stride := o.info.TotalFrames, o.info.Stride
	chunk := max(1, o.svcs.CfgSvc.GetDecodeChunkSize())

	for next := 0; next < total; {
		if canxCtx.Err() != nil {
			lgr.Logger.Info("source context cancelled", slog.String("runID", o.runID))
			return nil
		}

		wanted := sampleChunk(next, total, stride, chunk)
		next = wanted[len(wanted)-1] + stride

		images, err := stream.ReadAt(wanted)
		if err != nil {
			return xerrors.Errorf("read frames %d..%d: %v: %w", wanted[0], wanted[len(wanted)-1], err, ErrStreamFatal)
		}

		for i, index := range wanted {
			if i >= len(images) || images[i] == nil {
				drop(index, video.ErrFrameDecode)
				continue
			}

			if !push(Frame{Index: index, Image: images[i]}) {
				return nil
			}
		}
	}

	return nil
}
