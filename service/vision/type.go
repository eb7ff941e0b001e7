package vision

import "image"

// Transformer turns an RGB image into a model-ready C×H×W tensor.
type Transformer interface {
	Shape() (c, h, w int)
	Transform(img image.Image) ([]float32, error)
}

// RegionDetector finds candidate regions of interest (faces) in an image.
type RegionDetector interface {
	Detect(img image.Image) ([]image.Rectangle, error)
}

// Thumbnailer encodes a small preview of an image for transport.
type Thumbnailer interface {
	Thumbnail(img image.Image) (string, error)
}
