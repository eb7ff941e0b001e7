package video

import (
	"errors"
	"image"
)

// ErrFrameDecode marks a single undecodable frame. The stream stays usable.
var ErrFrameDecode = errors.New("frame decode failed")

// Metadata is read when the stream is opened. NativeFPS may be zero or NaN
// when the container does not carry it.
type Metadata struct {
	NativeFPS   float64
	TotalFrames int
}

type Stream interface {
	Metadata() Metadata
	// Read decodes the next frame. It returns io.EOF at the end of the stream
	// and an error wrapping ErrFrameDecode when only this frame is bad.
	Read() (image.Image, error)
	// Skip advances n frames without decoding them.
	Skip(n int) error
	// ReadAt decodes the frames at the given native indices. Entries are nil
	// for frames that could not be decoded.
	ReadAt(indices []int) ([]image.Image, error)
	Close() error
}

type IService interface {
	Open(path string) (Stream, error)
}
