package mode

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/khaledhikmat/vs-verdict/model"
	"github.com/khaledhikmat/vs-verdict/pipeline"
	"github.com/khaledhikmat/vs-verdict/service/data"
	"github.com/khaledhikmat/vs-verdict/service/lgr"
)

// Processor runs one mode until it completes or canxCtx is cancelled.
// args are the command line arguments that follow the mode name.
type Processor func(canxCtx context.Context, svcs pipeline.ServicesFactory, args []string) error

// Results are printed here as JSON
var resultWriter io.Writer = os.Stdout

func procStats(datasvc data.IService, stats interface{}) {
	if datasvc == nil {
		return
	}

	var err error
	switch stats := stats.(type) {
	case model.SourceStats:
		err = datasvc.NewSourceStats(stats)
	case model.BatcherStats:
		err = datasvc.NewBatcherStats(stats)
	case model.ScorerStats:
		err = datasvc.NewScorerStats(stats)
	case model.RunStats:
		err = datasvc.NewRunStats(stats)
	default:
		lgr.Logger.Error(
			"unknown stats type",
			slog.Any("stats", stats),
		)
		return
	}

	if err != nil {
		lgr.Logger.Error(
			"failed to store stats",
			slog.Any("stats", stats),
			slog.Any("error", err),
		)
	}
}

func procError(datasvc data.IService, err interface{}) {
	if datasvc == nil {
		return
	}

	errTemp := datasvc.NewError(err)
	if errTemp != nil {
		lgr.Logger.Error(
			"failed to store error",
			slog.Any("error", errTemp),
		)
	}
}
