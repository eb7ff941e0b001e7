package pipeline

import "golang.org/x/xerrors"

var (
	// ErrStreamFatal means the video could not be opened or decoded at all.
	ErrStreamFatal = xerrors.New("video stream cannot be decoded")
	// ErrScorer means a scorer failed or returned unusable output.
	ErrScorer = xerrors.New("scorer failed")
	// ErrNoFrames means the run finished without a single scored frame.
	ErrNoFrames = xerrors.New("no frames processed")
	// ErrAlreadyStarted is returned by Run on an orchestrator that is not idle.
	ErrAlreadyStarted = xerrors.New("orchestrator already started")
)
