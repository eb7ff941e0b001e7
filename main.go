package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-verdict/mode"
	"github.com/khaledhikmat/vs-verdict/pipeline"
	"github.com/khaledhikmat/vs-verdict/service/config"
	"github.com/khaledhikmat/vs-verdict/service/data"
	"github.com/khaledhikmat/vs-verdict/service/inference"
	"github.com/khaledhikmat/vs-verdict/service/lgr"
	"github.com/khaledhikmat/vs-verdict/service/metrics"
	"github.com/khaledhikmat/vs-verdict/service/opencv"
	"github.com/khaledhikmat/vs-verdict/service/vision"
)

const (
	// WARNING: this has to be bigger that the mode processor shutdown time
	waitOnShutdown = 8 * time.Second
)

var modeProcessors = map[string]mode.Processor{
	"analyze": mode.Analyze,
	"scan":    mode.Scan,
}

func main() {
	rootCtx := context.Background()
	canxCtx, canxFn := context.WithCancel(rootCtx)

	// Hook up a signal handler to cancel the context
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		lgr.Logger.Info(
			"received kill signal",
			slog.Any("signal", sig),
		)
		canxFn()
	}()

	// Load env vars if we are in DEV mode
	if os.Getenv("RUN_TIME_ENV") == "dev" || os.Getenv("RUN_TIME_ENV") == "" {
		lgr.Logger.Info("loading env vars from .env file")
		err := godotenv.Load()
		if err != nil {
			lgr.Logger.Warn("no .env file loaded", slog.Any("error", xerrors.New(err.Error())))
		}
	}

	modeType := "analyze"
	args := os.Args[1:]
	if len(args) > 0 {
		modeType = args[0]
		args = args[1:]
	}

	modeProc, ok := modeProcessors[modeType]
	if !ok {
		lgr.Logger.Error("invalid mode", slog.String("mode", modeType))
		panic("invalid mode")
	}

	// Create the services needed for the mode processor
	// Config service
	cfgSvc, err := newConfig()
	if err != nil {
		lgr.Logger.Error("error loading config", slog.Any("error", xerrors.New(err.Error())))
		panic("error loading config")
	}

	// Data service
	dataSvc := data.NewFilesDB(cfgSvc)

	// Region detector is optional
	var detector vision.RegionDetector
	if params := cfgSvc.GetRegionParameters(); params.CascadePath != "" {
		d, closeFn, err := opencv.NewCascadeDetector(params)
		if err != nil {
			lgr.Logger.Error("error loading region detector", slog.Any("error", xerrors.New(err.Error())))
			panic("error loading region detector")
		}
		defer closeFn()
		detector = d
	}

	// Scorers: the fast one is required, the slow one is optional
	fastScorer, closeFast, err := opencv.NewDNNScorer(config.FastScorerName, cfgSvc.GetScorerParameters(config.FastScorerName))
	if err != nil {
		lgr.Logger.Error("error loading fast scorer", slog.Any("error", xerrors.New(err.Error())))
		panic("error loading fast scorer")
	}
	defer closeFast()

	var slowScorer inference.IService
	if params := cfgSvc.GetScorerParameters(config.SlowScorerName); params.ModelPath != "" {
		s, closeSlow, err := opencv.NewDNNScorer(config.SlowScorerName, params)
		if err != nil {
			lgr.Logger.Error("error loading slow scorer", slog.Any("error", xerrors.New(err.Error())))
			panic("error loading slow scorer")
		}
		defer closeSlow()
		slowScorer = s
	}

	// Rolling detections log
	detectionLog := pipeline.NewDetectionLog(cfgSvc.GetDetectionsLogPath())
	defer detectionLog.Close()

	svcs := pipeline.ServicesFactory{
		CfgSvc:       cfgSvc,
		DataSvc:      dataSvc,
		VideoSvc:     opencv.NewCapture(),
		Transformer:  opencv.NewTransformer(cfgSvc.GetTransformParameters()),
		Detector:     detector,
		Thumbnailer:  opencv.NewThumbnailer(cfgSvc.GetThumbnailParameters()),
		FastScorer:   fastScorer,
		SlowScorer:   slowScorer,
		DetectionLog: detectionLog,
	}

	if port := cfgSvc.GetMetricsPort(); port > 0 {
		metrics.StartMetricsServer(canxCtx, port)
	}

	// Create mode processor result
	modeProcResult := make(chan error, 1)

	// Start the mode processor
	go func() {
		modeProcResult <- modeProc(canxCtx, svcs, args)
	}()

	// Wait for cancellation or mode proc
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"vs-verdict context cancelled",
			)
			goto resume

		case err := <-modeProcResult:
			if err != nil {
				lgr.Logger.Error(
					"vs-verdict mode processor exited",
					slog.String("mode", modeType),
					slog.Any("error", xerrors.New(err.Error())),
				)
			}
			// Stops the metrics server
			canxFn()
			return
		}
	}

	// Wait in a non-blocking way for `waitOnShutdown` for all the go routines to exit
	// This is needed because the go routines may need to report errors as they are existing
resume:
	lgr.Logger.Info(
		"vs-verdict is waiting for all go routines to exit",
	)

	// The only way to exit the main function is to wait for the shutdown
	// duration or for the mode processor to return
	timer := time.NewTimer(waitOnShutdown)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			// Timer expired, proceed with shutdown
			lgr.Logger.Info(
				"vs-verdict shutdown waiting period expired. Exiting now",
				slog.Duration("period", waitOnShutdown),
			)
			return

		case err := <-modeProcResult:
			if err != nil {
				lgr.Logger.Info(
					"vs-verdict mode processor exited",
					slog.Any("error", xerrors.New(err.Error())),
				)
			}
			return
		}
	}
}

// newConfig reads CONFIG_FILE when set, the environment otherwise.
func newConfig() (config.IService, error) {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return config.NewFile(path)
	}
	return config.NewEnv()
}
