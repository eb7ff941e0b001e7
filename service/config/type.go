package config

type IService interface {
	GetModeMaxShutdownTime() int
	GetInputFolder() string
	GetStatsFolder() string
	GetDetectionsLogPath() string
	GetMaxConcurrentRuns() int
	GetMetricsPort() int

	GetTargetFPS() float64
	GetDefaultFPS() float64
	GetDecoderStrategy() string
	GetDecodeChunkSize() int

	GetBatchSize() int
	GetFrameQueueSize() int
	GetBatchQueueSize() int
	GetPinBatches() bool

	GetTransformParameters() TransformParameters
	GetRegionParameters() RegionParameters
	GetThumbnailParameters() ThumbnailParameters

	GetConfidentThreshold() float64
	GetScorerParameters(name string) ScorerParameters
	GetFlaggedFramesLimit() int
}

const (
	FastScorerName = "fast"
	SlowScorerName = "slow"

	SequentialDecoder = "sequential"
	BulkDecoder       = "bulk"
)

type TransformParameters struct {
	InputSize int
	Mean      [3]float64
	Std       [3]float64
}

type RegionParameters struct {
	CascadePath string
	Margin      float64
	MinSize     int
}

type ThumbnailParameters struct {
	Width   int
	Height  int
	Quality int
}

type ScorerParameters struct {
	ModelPath      string
	OutputsLogits  bool
	PreferableCUDA bool
}
