package config

// settings is the flat configuration shared by the env and file backed
// services. Field tags serve both caarlos0/env and viper (mapstructure).
type settings struct {
	ModeMaxShutdownTime int    `env:"MODE_MAX_SHUTDOWN"   envDefault:"5"              mapstructure:"mode_max_shutdown"`
	InputFolder         string `env:"INPUT_FOLDER"        envDefault:"./videos"       mapstructure:"input_folder"`
	StatsFolder         string `env:"STATS_FOLDER"        envDefault:"./stats"        mapstructure:"stats_folder"`
	DetectionsLog       string `env:"DETECTIONS_LOG"      envDefault:"detections.log" mapstructure:"detections_log"`
	MaxConcurrentRuns   int    `env:"MAX_CONCURRENT_RUNS" envDefault:"2"              mapstructure:"max_concurrent_runs"`
	MetricsPort         int    `env:"METRICS_PORT"        envDefault:"9090"           mapstructure:"metrics_port"`

	TargetFPS       float64 `env:"TARGET_FPS"   envDefault:"5"          mapstructure:"target_fps"`
	DefaultFPS      float64 `env:"DEFAULT_FPS"  envDefault:"30"         mapstructure:"default_fps"`
	DecoderStrategy string  `env:"DECODER"      envDefault:"sequential" mapstructure:"decoder"`
	DecodeChunkSize int     `env:"DECODE_CHUNK" envDefault:"32"         mapstructure:"decode_chunk"`

	BatchSize      int  `env:"BATCH_SIZE"       envDefault:"8"    mapstructure:"batch_size"`
	FrameQueueSize int  `env:"FRAME_QUEUE_SIZE" envDefault:"128"  mapstructure:"frame_queue_size"`
	BatchQueueSize int  `env:"BATCH_QUEUE_SIZE" envDefault:"0"    mapstructure:"batch_queue_size"`
	PinBatches     bool `env:"PIN_BATCHES"      envDefault:"true" mapstructure:"pin_batches"`

	InputSize int       `env:"INPUT_SIZE" envDefault:"256"               mapstructure:"input_size"`
	NormMean  []float64 `env:"NORM_MEAN"  envDefault:"0.485,0.456,0.406" envSeparator:"," mapstructure:"norm_mean"`
	NormStd   []float64 `env:"NORM_STD"   envDefault:"0.229,0.224,0.225" envSeparator:"," mapstructure:"norm_std"`

	FaceCascadePath string  `env:"FACE_CASCADE_PATH" envDefault:""    mapstructure:"face_cascade_path"`
	FaceMargin      float64 `env:"FACE_MARGIN"       envDefault:"0.2" mapstructure:"face_margin"`
	FaceMinSize     int     `env:"FACE_MIN_SIZE"     envDefault:"60"  mapstructure:"face_min_size"`

	ThumbWidth   int `env:"THUMB_WIDTH"   envDefault:"160" mapstructure:"thumb_width"`
	ThumbHeight  int `env:"THUMB_HEIGHT"  envDefault:"90"  mapstructure:"thumb_height"`
	ThumbQuality int `env:"THUMB_QUALITY" envDefault:"70"  mapstructure:"thumb_quality"`

	ConfidentThreshold float64 `env:"CONFIDENT_THRESHOLD"  envDefault:"0.8"  mapstructure:"confident_threshold"`
	FastModelPath      string  `env:"FAST_MODEL_PATH"      envDefault:""     mapstructure:"fast_model_path"`
	SlowModelPath      string  `env:"SLOW_MODEL_PATH"      envDefault:""     mapstructure:"slow_model_path"`
	OutputsLogits      bool    `env:"MODEL_OUTPUTS_LOGITS" envDefault:"true" mapstructure:"model_outputs_logits"`
	PreferCUDA         bool    `env:"MODEL_PREFER_CUDA"    envDefault:"false" mapstructure:"model_prefer_cuda"`
	FlaggedLimit       int     `env:"FLAGGED_LIMIT"        envDefault:"10"   mapstructure:"flagged_limit"`
}

type settingsService struct {
	s settings
}

func (svc *settingsService) GetModeMaxShutdownTime() int { return svc.s.ModeMaxShutdownTime }
func (svc *settingsService) GetInputFolder() string      { return svc.s.InputFolder }
func (svc *settingsService) GetStatsFolder() string      { return svc.s.StatsFolder }
func (svc *settingsService) GetDetectionsLogPath() string {
	return svc.s.DetectionsLog
}

func (svc *settingsService) GetMaxConcurrentRuns() int {
	if svc.s.MaxConcurrentRuns < 1 {
		return 1
	}
	return svc.s.MaxConcurrentRuns
}

func (svc *settingsService) GetMetricsPort() int { return svc.s.MetricsPort }

func (svc *settingsService) GetTargetFPS() float64 {
	if svc.s.TargetFPS <= 0 {
		return 5
	}
	return svc.s.TargetFPS
}

func (svc *settingsService) GetDefaultFPS() float64 {
	if svc.s.DefaultFPS <= 0 {
		return 30
	}
	return svc.s.DefaultFPS
}

func (svc *settingsService) GetDecoderStrategy() string {
	if svc.s.DecoderStrategy == BulkDecoder {
		return BulkDecoder
	}
	return SequentialDecoder
}

func (svc *settingsService) GetDecodeChunkSize() int {
	if svc.s.DecodeChunkSize < 1 {
		return 32
	}
	return svc.s.DecodeChunkSize
}

func (svc *settingsService) GetBatchSize() int {
	if svc.s.BatchSize < 1 {
		return 8
	}
	return svc.s.BatchSize
}

func (svc *settingsService) GetFrameQueueSize() int {
	if svc.s.FrameQueueSize < 1 {
		return 128
	}
	return svc.s.FrameQueueSize
}

// GetBatchQueueSize defaults to a few batches' worth of the frame queue.
func (svc *settingsService) GetBatchQueueSize() int {
	if svc.s.BatchQueueSize > 0 {
		return svc.s.BatchQueueSize
	}
	return svc.GetFrameQueueSize()/svc.GetBatchSize() + 2
}

func (svc *settingsService) GetPinBatches() bool { return svc.s.PinBatches }

func (svc *settingsService) GetTransformParameters() TransformParameters {
	p := TransformParameters{
		InputSize: svc.s.InputSize,
		Mean:      [3]float64{0.485, 0.456, 0.406},
		Std:       [3]float64{0.229, 0.224, 0.225},
	}
	if p.InputSize < 1 {
		p.InputSize = 256
	}
	if len(svc.s.NormMean) == 3 {
		copy(p.Mean[:], svc.s.NormMean)
	}
	if len(svc.s.NormStd) == 3 {
		copy(p.Std[:], svc.s.NormStd)
	}
	return p
}

func (svc *settingsService) GetRegionParameters() RegionParameters {
	return RegionParameters{
		CascadePath: svc.s.FaceCascadePath,
		Margin:      svc.s.FaceMargin,
		MinSize:     svc.s.FaceMinSize,
	}
}

func (svc *settingsService) GetThumbnailParameters() ThumbnailParameters {
	return ThumbnailParameters{
		Width:   svc.s.ThumbWidth,
		Height:  svc.s.ThumbHeight,
		Quality: svc.s.ThumbQuality,
	}
}

func (svc *settingsService) GetConfidentThreshold() float64 { return svc.s.ConfidentThreshold }

func (svc *settingsService) GetScorerParameters(name string) ScorerParameters {
	switch name {
	case FastScorerName:
		return ScorerParameters{
			ModelPath:      svc.s.FastModelPath,
			OutputsLogits:  svc.s.OutputsLogits,
			PreferableCUDA: svc.s.PreferCUDA,
		}
	case SlowScorerName:
		return ScorerParameters{
			ModelPath:      svc.s.SlowModelPath,
			OutputsLogits:  svc.s.OutputsLogits,
			PreferableCUDA: svc.s.PreferCUDA,
		}
	}

	return ScorerParameters{}
}

func (svc *settingsService) GetFlaggedFramesLimit() int {
	if svc.s.FlaggedLimit < 1 {
		return 10
	}
	return svc.s.FlaggedLimit
}
