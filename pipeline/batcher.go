package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/khaledhikmat/vs-verdict/model"
	"github.com/khaledhikmat/vs-verdict/service/lgr"
	"github.com/khaledhikmat/vs-verdict/service/metrics"
)

type batchBuilder struct {
	indices  []int
	previews []image.Image
	data     []float32
	pool     *TensorPool
}

func newBatchBuilder(size, sampleSize int, pool *TensorPool) *batchBuilder {
	b := &batchBuilder{
		indices:  make([]int, 0, size),
		previews: make([]image.Image, 0, size),
		pool:     pool,
	}

	if pool != nil {
		b.data = pool.Get()[:0]
	} else {
		b.data = make([]float32, 0, size*sampleSize)
	}
	return b
}

func (b *batchBuilder) add(index int, sample []float32, preview image.Image) {
	b.indices = append(b.indices, index)
	b.previews = append(b.previews, preview)
	b.data = append(b.data, sample...)
}

func (b *batchBuilder) len() int {
	return len(b.indices)
}

func (b *batchBuilder) build(c, h, w int) (Batch, error) {
	tensor, err := model.NewTensor(b.data, len(b.indices), c, h, w)
	if err != nil {
		b.releaseData()
		return Batch{}, err
	}

	batch := Batch{
		Indices:  b.indices,
		Tensor:   tensor,
		Previews: b.previews,
	}

	if b.pool != nil {
		batch.release = b.releaseData
	}
	return batch, nil
}

func (b *batchBuilder) releaseData() {
	if b.pool != nil {
		b.pool.Put(b.data)
	}
}

// batcher transforms frames into fixed-size batches. The final partial batch
// is flushed when the frame queue is closed, then the batch queue is closed.
func (o *Orchestrator) batcher(canxCtx context.Context, frames <-chan Frame, batches chan<- Batch) {
	defer close(batches)

	c, h, w := o.svcs.Transformer.Shape()
	sampleSize := c * h * w
	size := o.svcs.CfgSvc.GetBatchSize()
	margin := o.svcs.CfgSvc.GetRegionParameters().Margin

	var pool *TensorPool
	if o.svcs.CfgSvc.GetPinBatches() {
		pool = NewTensorPool(size * sampleSize)
	}

	var frameCount = 0
	var droppedFrames = 0
	var batchCount = 0
	var regionCrops = 0
	var procTime time.Duration

	defer func() {
		avg := 0.0
		if frameCount > 0 {
			avg = procTime.Seconds() / float64(frameCount)
		}

		o.batcherDropped = droppedFrames
		metrics.FramesDroppedTotal.WithLabelValues("batcher").Add(float64(droppedFrames))

		o.emit(model.BatcherStats{
			RunID:         o.runID,
			Video:         o.video,
			Frames:        frameCount,
			DroppedFrames: droppedFrames,
			Batches:       batchCount,
			RegionCrops:   regionCrops,
			Staged:        pool != nil,
			AvgProcTime:   avg,
			Timestamp:     time.Now().Unix(),
		})
	}()

	var pending *batchBuilder

	flush := func() bool {
		if pending == nil || pending.len() == 0 {
			return true
		}

		batch, err := pending.build(c, h, w)
		count := pending.len()
		pending = nil
		if err != nil {
			droppedFrames += count
			lgr.Logger.Error("batch assembly failed, dropping batch",
				slog.String("runID", o.runID),
				slog.Int("frames", count),
				slog.Any("error", err),
			)
			return true
		}

		select {
		case <-canxCtx.Done():
			batch.Release()
			return false
		case batches <- batch:
			batchCount++
			return true
		}
	}

	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info("batcher context cancelled", slog.String("runID", o.runID))
			return

		case frame, ok := <-frames:
			if !ok {
				flush()
				return
			}

			start := time.Now()
			input := frame.Image
			if crop, ok := cropToRegion(input, o.svcs.Detector, margin); ok {
				input = crop
				regionCrops++
			}

			sample, err := o.svcs.Transformer.Transform(input)
			if err == nil && len(sample) != sampleSize {
				err = fmt.Errorf("transform produced %d values, expected %d", len(sample), sampleSize)
			}

			if err != nil {
				droppedFrames++
				lgr.Logger.Warn("frame transform failed, dropping frame",
					slog.String("runID", o.runID),
					slog.Int("index", frame.Index),
					slog.Any("error", err),
				)
				continue
			}

			if pending == nil {
				pending = newBatchBuilder(size, sampleSize, pool)
			}
			pending.add(frame.Index, sample, frame.Image)
			frameCount++
			procTime += time.Since(start)

			if pending.len() == size && !flush() {
				return
			}
		}
	}
}
