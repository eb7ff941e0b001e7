package pipeline

import (
	"encoding/json"
	"io"
	"time"

	"github.com/khaledhikmat/vs-verdict/model"
	"github.com/natefinch/lumberjack"
)

// NewDetectionLog returns a rolling writer for positive verdicts.
func NewDetectionLog(path string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     7,    // days
		Compress:   true, // compress old logs
	}
}

type detection struct {
	Timestamp          string        `json:"timestamp"`
	RunID              string        `json:"runId"`
	Video              string        `json:"video"`
	Verdict            model.Verdict `json:"verdict"`
	Confidence         float64       `json:"confidence"`
	MeanProbability    float64       `json:"meanProb"`
	PeakProbability    float64       `json:"peakProb"`
	PositiveFrameRatio float64       `json:"positiveFrameRatio"`
	FlaggedFrames      []int         `json:"flaggedFrames"`
}

// writeDetection appends one JSON line describing result to w.
func writeDetection(w io.Writer, video string, result model.PipelineResult) error {
	flagged := make([]int, 0, len(result.FlaggedFrames))
	for _, f := range result.FlaggedFrames {
		flagged = append(flagged, f.Index)
	}

	line, err := json.Marshal(detection{
		Timestamp:          time.Now().Format(time.RFC3339),
		RunID:              result.RunID,
		Video:              video,
		Verdict:            result.Verdict,
		Confidence:         result.OverallConfidence,
		MeanProbability:    result.MeanProbability,
		PeakProbability:    result.PeakProbability,
		PositiveFrameRatio: result.PositiveFrameRatio,
		FlaggedFrames:      flagged,
	})
	if err != nil {
		return err
	}

	_, err = w.Write(append(line, '\n'))
	return err
}
