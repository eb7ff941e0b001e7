package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// NewFile reads a YAML configuration file. Environment variables with the
// same (upper-cased) key override file values.
func NewFile(path string) (IService, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Start from the hardcoded defaults so a partial file is valid
	defaults := NewHardCoded().(*settingsService).s
	setDefaults(v, defaults)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	s := settings{}
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}

	return &settingsService{s: s}, nil
}

func setDefaults(v *viper.Viper, s settings) {
	v.SetDefault("mode_max_shutdown", s.ModeMaxShutdownTime)
	v.SetDefault("input_folder", s.InputFolder)
	v.SetDefault("stats_folder", s.StatsFolder)
	v.SetDefault("detections_log", s.DetectionsLog)
	v.SetDefault("max_concurrent_runs", s.MaxConcurrentRuns)
	v.SetDefault("metrics_port", s.MetricsPort)
	v.SetDefault("target_fps", s.TargetFPS)
	v.SetDefault("default_fps", s.DefaultFPS)
	v.SetDefault("decoder", s.DecoderStrategy)
	v.SetDefault("decode_chunk", s.DecodeChunkSize)
	v.SetDefault("batch_size", s.BatchSize)
	v.SetDefault("frame_queue_size", s.FrameQueueSize)
	v.SetDefault("batch_queue_size", s.BatchQueueSize)
	v.SetDefault("pin_batches", s.PinBatches)
	v.SetDefault("input_size", s.InputSize)
	v.SetDefault("norm_mean", s.NormMean)
	v.SetDefault("norm_std", s.NormStd)
	v.SetDefault("face_cascade_path", s.FaceCascadePath)
	v.SetDefault("face_margin", s.FaceMargin)
	v.SetDefault("face_min_size", s.FaceMinSize)
	v.SetDefault("thumb_width", s.ThumbWidth)
	v.SetDefault("thumb_height", s.ThumbHeight)
	v.SetDefault("thumb_quality", s.ThumbQuality)
	v.SetDefault("confident_threshold", s.ConfidentThreshold)
	v.SetDefault("fast_model_path", s.FastModelPath)
	v.SetDefault("slow_model_path", s.SlowModelPath)
	v.SetDefault("model_outputs_logits", s.OutputsLogits)
	v.SetDefault("model_prefer_cuda", s.PreferCUDA)
	v.SetDefault("flagged_limit", s.FlaggedLimit)
}
