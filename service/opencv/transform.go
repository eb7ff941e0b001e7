package opencv

import (
	"fmt"
	"image"

	"github.com/khaledhikmat/vs-verdict/service/config"
	"github.com/khaledhikmat/vs-verdict/service/vision"
	"gocv.io/x/gocv"
)

type transformer struct {
	params config.TransformParameters
}

// NewTransformer resizes to a square input, scales to [0,1] and normalises
// each RGB channel with the configured mean and std.
func NewTransformer(params config.TransformParameters) vision.Transformer {
	return &transformer{params: params}
}

func (t *transformer) Shape() (int, int, int) {
	return 3, t.params.InputSize, t.params.InputSize
}

func (t *transformer) Transform(img image.Image) ([]float32, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("image to mat: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	size := t.params.InputSize
	mean := gocv.NewScalar(t.params.Mean[0]*255, t.params.Mean[1]*255, t.params.Mean[2]*255, 0)

	// blob = (resize(mat) - mean) / 255, channels swapped to RGB, NCHW
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(size, size), mean, true, false)
	defer blob.Close()

	data, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("blob data: %w", err)
	}

	plane := size * size
	if len(data) != 3*plane {
		return nil, fmt.Errorf("unexpected blob size %d", len(data))
	}

	out := make([]float32, len(data))
	for c := 0; c < 3; c++ {
		std := float32(t.params.Std[c])
		for i := c * plane; i < (c+1)*plane; i++ {
			out[i] = data[i] / std
		}
	}
	return out, nil
}
