package opencv

import (
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/khaledhikmat/vs-verdict/service/video"
	"gocv.io/x/gocv"
)

// A run of failed reads longer than this is treated as the end of the stream.
// Containers often report a frame count that is slightly off.
const maxConsecutiveReadFailures = 8

type captureService struct{}

// NewCapture returns a video service backed by OpenCV's VideoCapture.
func NewCapture() video.IService {
	return &captureService{}
}

func (svc *captureService) Open(path string) (video.Stream, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}

	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("open video %s: capture not opened", path)
	}

	return &captureStream{
		capture: capture,
		meta: video.Metadata{
			NativeFPS:   capture.Get(gocv.VideoCaptureFPS),
			TotalFrames: int(capture.Get(gocv.VideoCaptureFrameCount)),
		},
		mat: gocv.NewMat(),
	}, nil
}

type captureStream struct {
	// VideoCapture is not safe for concurrent use
	mu       sync.Mutex
	capture  *gocv.VideoCapture
	meta     video.Metadata
	mat      gocv.Mat
	pos      int
	failures int
}

func (s *captureStream) Metadata() video.Metadata {
	return s.meta
}

func (s *captureStream) Read() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readLocked()
}

func (s *captureStream) readLocked() (image.Image, error) {
	idx := s.pos
	s.pos++

	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		s.failures++
		if s.meta.TotalFrames <= 0 || idx >= s.meta.TotalFrames || s.failures > maxConsecutiveReadFailures {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("frame %d: %w", idx, video.ErrFrameDecode)
	}
	s.failures = 0

	// ToImage copies the pixels and converts BGR to RGB, so s.mat can be reused
	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("frame %d: %v: %w", idx, err, video.ErrFrameDecode)
	}
	return img, nil
}

func (s *captureStream) Skip(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 {
		return nil
	}
	s.capture.Grab(n)
	s.pos += n
	return nil
}

func (s *captureStream) ReadAt(indices []int) ([]image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	images := make([]image.Image, len(indices))
	for i, idx := range indices {
		// Seek only when the next frame is not already the one we want
		if idx != s.pos {
			s.capture.Set(gocv.VideoCapturePosFrames, float64(idx))
			s.pos = idx
		}

		img, err := s.readLocked()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		images[i] = img
	}
	return images, nil
}

func (s *captureStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mat.Close()
	return s.capture.Close()
}
