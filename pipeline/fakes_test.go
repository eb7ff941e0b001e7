package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/khaledhikmat/vs-verdict/model"
	"github.com/khaledhikmat/vs-verdict/service/config"
	"github.com/khaledhikmat/vs-verdict/service/inference"
	"github.com/khaledhikmat/vs-verdict/service/video"
)

// testConfig overrides a few settings on top of the hardcoded defaults.
type testConfig struct {
	config.IService
	decoder    string
	chunk      int
	batchSize  int
	frameQueue int
	batchQueue int
	noPinning  bool
}

func newTestConfig() *testConfig {
	return &testConfig{IService: config.NewHardCoded()}
}

func (c *testConfig) GetDecoderStrategy() string {
	if c.decoder != "" {
		return c.decoder
	}
	return c.IService.GetDecoderStrategy()
}

func (c *testConfig) GetDecodeChunkSize() int {
	if c.chunk > 0 {
		return c.chunk
	}
	return c.IService.GetDecodeChunkSize()
}

func (c *testConfig) GetBatchSize() int {
	if c.batchSize > 0 {
		return c.batchSize
	}
	return c.IService.GetBatchSize()
}

func (c *testConfig) GetFrameQueueSize() int {
	if c.frameQueue > 0 {
		return c.frameQueue
	}
	return c.IService.GetFrameQueueSize()
}

func (c *testConfig) GetBatchQueueSize() int {
	if c.batchQueue > 0 {
		return c.batchQueue
	}
	return c.GetFrameQueueSize()/c.GetBatchSize() + 2
}

func (c *testConfig) GetPinBatches() bool {
	return !c.noPinning
}

// indexTransformer turns a video.IndexImage into a one-value tensor holding
// its index, so scorers can tell frames apart.
type indexTransformer struct {
	fail map[int]bool
}

func (t indexTransformer) Shape() (int, int, int) {
	return 1, 1, 1
}

func (t indexTransformer) Transform(img image.Image) ([]float32, error) {
	frame, ok := img.(video.IndexImage)
	if !ok {
		return nil, errors.New("unexpected image type")
	}
	if t.fail[frame.Index] {
		return nil, fmt.Errorf("cannot transform frame %d", frame.Index)
	}
	return []float32{float32(frame.Index)}, nil
}

type indexThumbnailer struct{}

func (indexThumbnailer) Thumbnail(img image.Image) (string, error) {
	frame, ok := img.(video.IndexImage)
	if !ok {
		return "", errors.New("unexpected image type")
	}
	return fmt.Sprintf("thumb-%d", frame.Index), nil
}

type stubDetector struct {
	regions []image.Rectangle
	err     error
}

func (d stubDetector) Detect(image.Image) ([]image.Rectangle, error) {
	return d.regions, d.err
}

type stubScorer struct {
	probs []float64
	err   error
}

func (s stubScorer) Name() string {
	return "stub"
}

func (s stubScorer) Score(context.Context, model.Tensor) ([]float64, error) {
	return s.probs, s.err
}

// byIndex scores each sample with fn applied to the frame index the
// indexTransformer stored in it.
func byIndex(fn func(index int) float64) inference.SampleFunc {
	return func(sample []float32) (float64, error) {
		return fn(int(sample[0])), nil
	}
}

func newServices(cfg config.IService, videos map[string]video.FakeVideo, fast, slow inference.IService) ServicesFactory {
	return ServicesFactory{
		CfgSvc:      cfg,
		VideoSvc:    video.NewFake(videos),
		Transformer: indexTransformer{},
		Thumbnailer: indexThumbnailer{},
		FastScorer:  fast,
		SlowScorer:  slow,
	}
}

func newBatch(indices ...int) Batch {
	data := make([]float32, len(indices))
	previews := make([]image.Image, len(indices))
	for i, index := range indices {
		data[i] = float32(index)
		previews[i] = video.IndexImage{Index: index}
	}

	tensor, _ := model.NewTensor(data, len(indices), 1, 1, 1)
	return Batch{Indices: indices, Tensor: tensor, Previews: previews}
}
