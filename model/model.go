package model

import (
	"fmt"
	"runtime/debug"
)

type CustomError struct {
	Processor  string                 `json:"processor"`
	Inner      error                  `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func (e CustomError) Error() string {
	if e.Inner == nil {
		return fmt.Sprintf("%s: %s", e.Processor, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Processor, e.Message, e.Inner)
}

func (e CustomError) Unwrap() error {
	return e.Inner
}

func GenError(proc string, err error, misc map[string]interface{}, messagef string, args ...interface{}) CustomError {
	return CustomError{
		Processor:  proc,
		Inner:      err,
		Message:    fmt.Sprintf(messagef, args...),
		StackTrace: string(debug.Stack()),
		Misc:       misc,
	}
}

type SourceStats struct {
	RunID         string  `json:"runId"`
	Video         string  `json:"video"`
	Strategy      string  `json:"strategy"`
	Stride        int     `json:"stride"`
	Frames        int     `json:"frames"`
	DroppedFrames int     `json:"droppedFrames"`
	Uptime        float64 `json:"uptime"`
	FPS           float64 `json:"fps"`
	Timestamp     int64   `json:"timestamp"`
}

type BatcherStats struct {
	RunID         string  `json:"runId"`
	Video         string  `json:"video"`
	Frames        int     `json:"frames"`
	DroppedFrames int     `json:"droppedFrames"`
	Batches       int     `json:"batches"`
	RegionCrops   int     `json:"regionCrops"`
	Staged        bool    `json:"staged"`
	AvgProcTime   float64 `json:"avgProcTime"`
	Timestamp     int64   `json:"timestamp"`
}

type ScorerStats struct {
	RunID       string  `json:"runId"`
	Video       string  `json:"video"`
	Batches     int     `json:"batches"`
	Frames      int     `json:"frames"`
	SlowFrames  int     `json:"slowFrames"`
	Errors      int     `json:"errors"`
	AvgProcTime float64 `json:"avgProcTime"`
	Timestamp   int64   `json:"timestamp"`
}

type RunStats struct {
	RunID           string  `json:"runId"`
	Video           string  `json:"video"`
	State           string  `json:"state"`
	Verdict         string  `json:"verdict,omitempty"`
	ProcessedFrames int     `json:"processedFrames"`
	Uptime          float64 `json:"uptime"`
	Error           string  `json:"error,omitempty"`
	Timestamp       int64   `json:"timestamp"`
}
