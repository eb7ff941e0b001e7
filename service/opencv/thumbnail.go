package opencv

import (
	"encoding/base64"
	"fmt"
	"image"

	"github.com/khaledhikmat/vs-verdict/service/config"
	"github.com/khaledhikmat/vs-verdict/service/vision"
	"gocv.io/x/gocv"
)

type thumbnailer struct {
	params config.ThumbnailParameters
}

// NewThumbnailer encodes resized JPEG previews as base64 strings.
func NewThumbnailer(params config.ThumbnailParameters) vision.Thumbnailer {
	return &thumbnailer{params: params}
}

func (t *thumbnailer) Thumbnail(img image.Image) (string, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return "", fmt.Errorf("image to mat: %w", err)
	}
	defer mat.Close()

	thumb := gocv.NewMat()
	defer thumb.Close()

	err = gocv.Resize(mat, &thumb, image.Pt(t.params.Width, t.params.Height), 0, 0, gocv.InterpolationArea)
	if err != nil {
		return "", fmt.Errorf("resize thumbnail: %w", err)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, thumb, []int{int(gocv.IMWriteJpegQuality), t.params.Quality})
	if err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	defer buf.Close()

	return base64.StdEncoding.EncodeToString(buf.GetBytes()), nil
}
