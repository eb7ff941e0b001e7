package opencv

import (
	"fmt"
	"image"
	"sync"

	"github.com/khaledhikmat/vs-verdict/service/config"
	"github.com/khaledhikmat/vs-verdict/service/vision"
	"gocv.io/x/gocv"
)

type cascadeDetector struct {
	// CascadeClassifier is not safe for concurrent use
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
	minSize    int
}

// NewCascadeDetector loads a Haar cascade (e.g. frontal face) once. The
// returned closer releases the classifier.
func NewCascadeDetector(params config.RegionParameters) (vision.RegionDetector, func(), error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(params.CascadePath) {
		classifier.Close()
		return nil, nil, fmt.Errorf("load cascade %s", params.CascadePath)
	}

	d := &cascadeDetector{
		classifier: classifier,
		minSize:    params.MinSize,
	}
	return d, func() { d.classifier.Close() }, nil
}

func (d *cascadeDetector) Detect(img image.Image) ([]image.Rectangle, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("image to mat: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	d.mu.Lock()
	defer d.mu.Unlock()

	return d.classifier.DetectMultiScaleWithParams(gray, 1.1, 5, 0,
		image.Pt(d.minSize, d.minSize), image.Pt(0, 0)), nil
}
