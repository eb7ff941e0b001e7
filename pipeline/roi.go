package pipeline

import (
	"image"

	"github.com/khaledhikmat/vs-verdict/service/vision"
)

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// largestRegion picks the rectangle with the biggest area. The first one wins
// on ties.
func largestRegion(regions []image.Rectangle) (image.Rectangle, bool) {
	best, bestArea := image.Rectangle{}, -1
	for _, r := range regions {
		area := r.Dx() * r.Dy()
		if area > bestArea {
			best, bestArea = r, area
		}
	}
	return best, bestArea > 0
}

// expandRegion grows r on every side by margin × max(w, h) and clamps it to bounds.
func expandRegion(r image.Rectangle, margin float64, bounds image.Rectangle) image.Rectangle {
	side := r.Dx()
	if r.Dy() > side {
		side = r.Dy()
	}
	m := int(float64(side) * margin)
	return image.Rect(r.Min.X-m, r.Min.Y-m, r.Max.X+m, r.Max.Y+m).Intersect(bounds)
}

// cropToRegion returns the largest detected region of img with margin, or img
// itself when nothing is found or the image cannot be cropped.
func cropToRegion(img image.Image, detector vision.RegionDetector, margin float64) (image.Image, bool) {
	if detector == nil {
		return img, false
	}

	regions, err := detector.Detect(img)
	if err != nil || len(regions) == 0 {
		return img, false
	}

	region, ok := largestRegion(regions)
	if !ok {
		return img, false
	}

	sub, ok := img.(subImager)
	if !ok {
		return img, false
	}

	crop := expandRegion(region, margin, img.Bounds())
	if crop.Empty() {
		return img, false
	}
	return sub.SubImage(crop), true
}
