package mode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/khaledhikmat/vs-verdict/model"
	"github.com/khaledhikmat/vs-verdict/pipeline"
	"github.com/khaledhikmat/vs-verdict/service/lgr"
	"golang.org/x/sync/errgroup"
)

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
}

// ScanSummary is one line of the scan report.
type ScanSummary struct {
	Video           string        `json:"video"`
	RunID           string        `json:"runId,omitempty"`
	Verdict         model.Verdict `json:"verdict,omitempty"`
	Confidence      float64       `json:"confidence,omitempty"`
	ProcessedFrames int           `json:"processedFrames,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// Scan analyses every video in the input folder (or the folder given as the
// first argument), running at most MAX_CONCURRENT_RUNS pipelines at once.
func Scan(canxCtx context.Context, svcs pipeline.ServicesFactory, args []string) error {
	folder := svcs.CfgSvc.GetInputFolder()
	if len(args) > 0 {
		folder = args[0]
	}

	videos, err := listVideos(folder)
	if err != nil {
		return err
	}

	lgr.Logger.Info("scan starting....",
		slog.String("folder", folder),
		slog.Int("videos", len(videos)),
		slog.Int("maxConcurrentRuns", svcs.CfgSvc.GetMaxConcurrentRuns()),
	)

	if len(videos) == 0 {
		return writeResult([]ScanSummary{})
	}

	// Create a stats stream shared by all runs
	statsStream := make(chan interface{})

	// Create an outcome stream
	outcomeStream := make(chan runOutcome)

	// Dispatch runs; Go blocks while the limit is reached
	go func() {
		group := errgroup.Group{}
		group.SetLimit(svcs.CfgSvc.GetMaxConcurrentRuns())

		for _, path := range videos {
			if canxCtx.Err() != nil {
				break
			}

			group.Go(func() error {
				result, err := pipeline.NewOrchestrator(svcs, statsStream).Run(canxCtx, path)

				// WARNING: the scan loop stops reading once cancelled
				select {
				case <-canxCtx.Done():
				case outcomeStream <- runOutcome{Video: path, Result: result, Err: err}:
				}
				return nil
			})
		}

		_ = group.Wait()
	}()

	summaries := make([]ScanSummary, 0, len(videos))

	// Wait for cancellation, stats or run outcomes
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"scan context cancelled",
			)
			goto resume

		case stats := <-statsStream:
			procStats(svcs.DataSvc, stats)

		case outcome := <-outcomeStream:
			summary := ScanSummary{Video: outcome.Video}
			if outcome.Err != nil {
				summary.Error = outcome.Err.Error()
				procError(svcs.DataSvc, model.GenError("scan",
					outcome.Err,
					map[string]interface{}{"video": outcome.Video},
					"error analyzing video"))
			} else {
				summary.RunID = outcome.Result.RunID
				summary.Verdict = outcome.Result.Verdict
				summary.Confidence = outcome.Result.OverallConfidence
				summary.ProcessedFrames = outcome.Result.ProcessedFrameCount
			}
			summaries = append(summaries, summary)

			if len(summaries) == len(videos) {
				sort.Slice(summaries, func(i, j int) bool {
					return summaries[i].Video < summaries[j].Video
				})
				return writeResult(summaries)
			}
		}
	}

	// Wait in a non-blocking way for the runs to exit
resume:
	lgr.Logger.Info(
		"scan is waiting for all pipelines to exit",
		slog.Int("completed", len(summaries)),
		slog.Int("videos", len(videos)),
	)

	timer := time.NewTimer(time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime()) * time.Second)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			// Timer expired, proceed with shutdown
			lgr.Logger.Info(
				"scan shutdown waiting period expired. Exiting now",
				slog.Duration("period", time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime())*time.Second),
			)
			return nil

		case stats := <-statsStream:
			procStats(svcs.DataSvc, stats)
		}
	}
}

func listVideos(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("read input folder %s: %w", folder, err)
	}

	videos := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if videoExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			videos = append(videos, filepath.Join(folder, entry.Name()))
		}
	}

	sort.Strings(videos)
	return videos, nil
}
