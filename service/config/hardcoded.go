package config

// NewHardCoded returns the built-in defaults. Nothing is read from the
// environment, which makes it the service of choice for tests.
func NewHardCoded() IService {
	return &settingsService{
		s: settings{
			ModeMaxShutdownTime: 5,
			InputFolder:         "./videos",
			StatsFolder:         "./stats",
			DetectionsLog:       "detections.log",
			MaxConcurrentRuns:   2,
			MetricsPort:         9090,
			TargetFPS:           5,
			DefaultFPS:          30,
			DecoderStrategy:     SequentialDecoder,
			DecodeChunkSize:     32,
			BatchSize:           8,
			FrameQueueSize:      128,
			PinBatches:          true,
			InputSize:           256,
			NormMean:            []float64{0.485, 0.456, 0.406},
			NormStd:             []float64{0.229, 0.224, 0.225},
			FaceMargin:          0.2,
			FaceMinSize:         60,
			ThumbWidth:          160,
			ThumbHeight:         90,
			ThumbQuality:        70,
			ConfidentThreshold:  0.8,
			OutputsLogits:       true,
			FlaggedLimit:        10,
		},
	}
}
