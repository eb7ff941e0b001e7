package pipeline

import (
	"image"
	"io"

	"github.com/khaledhikmat/vs-verdict/model"
	"github.com/khaledhikmat/vs-verdict/service/config"
	"github.com/khaledhikmat/vs-verdict/service/data"
	"github.com/khaledhikmat/vs-verdict/service/inference"
	"github.com/khaledhikmat/vs-verdict/service/video"
	"github.com/khaledhikmat/vs-verdict/service/vision"
)

// Frame is one sampled, decoded frame. Index is the native frame number.
type Frame struct {
	Index int
	Image image.Image
}

// Batch is a group of transformed frames ready for scoring.
// len(Indices) == len(Previews) == Tensor.Len() and Indices is strictly increasing.
type Batch struct {
	Indices  []int
	Tensor   model.Tensor
	Previews []image.Image

	release func()
}

// Release hands a staged tensor buffer back to its pool. The tensor must not
// be used afterwards.
func (b Batch) Release() {
	if b.release != nil {
		b.release()
	}
}

// ScoredFrame is a frame score plus the thumbnail encoded from its preview.
type ScoredFrame struct {
	model.FrameScore
	Thumbnail string
}

// ServicesFactory carries the capabilities a pipeline run needs.
// Detector, SlowScorer and DetectionLog are optional. DataSvc is only used by
// the mode processors to persist stats and errors.
type ServicesFactory struct {
	CfgSvc       config.IService
	DataSvc      data.IService
	VideoSvc     video.IService
	Transformer  vision.Transformer
	Detector     vision.RegionDetector
	Thumbnailer  vision.Thumbnailer
	FastScorer   inference.IService
	SlowScorer   inference.IService
	DetectionLog io.Writer
}
