package model

import "math"

type Verdict string

const (
	VerdictPositive Verdict = "POSITIVE"
	VerdictNegative Verdict = "NEGATIVE"
)

// StreamInfo describes the decoded stream as reported by the frame source.
type StreamInfo struct {
	NativeFPS       float64 `json:"nativeFps"`
	TotalFrames     int     `json:"totalFrames"`
	DurationSeconds float64 `json:"durationSeconds"`
	Stride          int     `json:"stride"`
	FPSFallback     bool    `json:"fpsFallback"`
}

// FrameScore is the merged cascade output for one sampled frame.
type FrameScore struct {
	Index       int     `json:"index"`
	Probability float64 `json:"probability"`
	Confidence  float64 `json:"confidence"`
	Slow        bool    `json:"slow"`
}

// Contrast is the distance of p from the 0.5 decision boundary, scaled to [0,1].
func Contrast(p float64) float64 {
	return math.Abs(p-0.5) * 2
}

type TimelineEntry struct {
	TimeSeconds float64 `json:"time"`
	Probability float64 `json:"prob"`
	Thumbnail   string  `json:"thumbnail"`
}

type FlaggedFrame struct {
	Index       int     `json:"frameIndex"`
	TimeSeconds float64 `json:"timestamp"`
	Probability float64 `json:"prob"`
	Thumbnail   string  `json:"thumbnail"`
}

type PipelineResult struct {
	RunID                string          `json:"runId"`
	Verdict              Verdict         `json:"verdict"`
	OverallConfidence    float64         `json:"confidence"`
	MeanProbability      float64         `json:"meanProb"`
	PeakProbability      float64         `json:"peakProb"`
	PositiveFrameRatio   float64         `json:"positiveFrameRatio"`
	ProcessedFrameCount  int             `json:"processedFrames"`
	DroppedFrameCount    int             `json:"droppedFrames"`
	SlowScoredFrameCount int             `json:"slowScoredFrames"`
	DurationSeconds      float64         `json:"duration"`
	Timeline             []TimelineEntry `json:"timeline"`
	FlaggedFrames        []FlaggedFrame  `json:"flaggedFrames"`
}
