package mode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/khaledhikmat/vs-verdict/model"
	"github.com/khaledhikmat/vs-verdict/pipeline"
	"github.com/khaledhikmat/vs-verdict/service/lgr"
)

type runOutcome struct {
	Video  string
	Result model.PipelineResult
	Err    error
}

// Analyze runs the pipeline on the video given as the first argument and
// prints the result as JSON.
func Analyze(canxCtx context.Context, svcs pipeline.ServicesFactory, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("analyze mode requires a video path")
	}
	path := args[0]

	// Create a stats stream
	statsStream := make(chan interface{})

	// Buffered so the run goroutine never blocks on it
	resultStream := make(chan runOutcome, 1)

	go func() {
		result, err := pipeline.NewOrchestrator(svcs, statsStream).Run(canxCtx, path)
		resultStream <- runOutcome{Video: path, Result: result, Err: err}
	}()

	// Wait for cancellation, stats or the result
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"analyze context cancelled",
			)
			goto resume

		case stats := <-statsStream:
			procStats(svcs.DataSvc, stats)

		case outcome := <-resultStream:
			if outcome.Err != nil {
				procError(svcs.DataSvc, model.GenError("analyze",
					outcome.Err,
					map[string]interface{}{"video": path},
					"error analyzing video"))
				return outcome.Err
			}

			return writeResult(outcome.Result)
		}
	}

	// Wait in a non-blocking way for the run to exit
resume:
	lgr.Logger.Info(
		"analyze is waiting for the pipeline to exit",
	)

	timer := time.NewTimer(time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime()) * time.Second)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			// Timer expired, proceed with shutdown
			lgr.Logger.Info(
				"analyze shutdown waiting period expired. Exiting now",
				slog.Duration("period", time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime())*time.Second),
			)
			return nil

		case stats := <-statsStream:
			procStats(svcs.DataSvc, stats)

		case outcome := <-resultStream:
			lgr.Logger.Info(
				"analyze pipeline exited",
				slog.Any("error", outcome.Err),
			)
			return nil
		}
	}
}

func writeResult(result interface{}) error {
	enc := json.NewEncoder(resultWriter)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
