package video

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"
	"sync/atomic"
)

// IndexImage is a 1×1 image that remembers the native frame index it was
// decoded from. Fakes and tests use it to trace frames through the pipeline.
type IndexImage struct {
	Index int
}

func (img IndexImage) ColorModel() color.Model { return color.RGBAModel }
func (img IndexImage) Bounds() image.Rectangle { return image.Rect(0, 0, 1, 1) }
func (img IndexImage) At(_, _ int) color.Color {
	return color.RGBA{R: uint8(img.Index), A: 255}
}

// FakeVideo describes an in-memory video.
type FakeVideo struct {
	NativeFPS   float64
	TotalFrames int
	// ReportedFrames, when set, is the frame count Metadata claims instead
	// of TotalFrames. Reads past TotalFrames still hit EOF.
	ReportedFrames int
	// Corrupt lists the native indices that fail to decode.
	Corrupt map[int]bool
	// OpenErr makes Open fail.
	OpenErr error
}

type fakeService struct {
	videos map[string]FakeVideo
	reads  atomic.Int64
}

func NewFake(videos map[string]FakeVideo) *fakeService {
	return &fakeService{videos: videos}
}

func (svc *fakeService) Open(path string) (Stream, error) {
	v, ok := svc.videos[path]
	if !ok {
		return nil, fmt.Errorf("open %s: no such video", path)
	}
	if v.OpenErr != nil {
		return nil, v.OpenErr
	}
	return &fakeStream{video: v, svc: svc}, nil
}

// Decoded reports how many frames were decoded across all streams.
func (svc *fakeService) Decoded() int {
	return int(svc.reads.Load())
}

type fakeStream struct {
	mu     sync.Mutex
	video  FakeVideo
	svc    *fakeService
	pos    int
	closed bool
}

func (s *fakeStream) Metadata() Metadata {
	total := s.video.TotalFrames
	if s.video.ReportedFrames != 0 {
		total = s.video.ReportedFrames
	}
	return Metadata{NativeFPS: s.video.NativeFPS, TotalFrames: total}
}

func (s *fakeStream) Read() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= s.video.TotalFrames {
		return nil, io.EOF
	}

	idx := s.pos
	s.pos++
	return s.decode(idx)
}

func (s *fakeStream) Skip(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pos += n
	return nil
}

func (s *fakeStream) ReadAt(indices []int) ([]image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	images := make([]image.Image, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= s.video.TotalFrames {
			return nil, fmt.Errorf("frame %d out of range", idx)
		}
		img, err := s.decode(idx)
		if err != nil {
			continue
		}
		images[i] = img
	}
	return images, nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func (s *fakeStream) decode(idx int) (image.Image, error) {
	if s.video.Corrupt[idx] {
		return nil, fmt.Errorf("frame %d: %w", idx, ErrFrameDecode)
	}
	s.svc.reads.Add(1)
	return IndexImage{Index: idx}, nil
}
