package pipeline

import (
	"math"
	"sort"

	"github.com/khaledhikmat/vs-verdict/model"
)

const (
	positiveFrameThreshold = 0.6
	flaggedFrameThreshold  = 0.5

	meanTrigger      = 0.65
	ratioTrigger     = 0.15
	ratioPeakTrigger = 0.7
	peakTrigger      = 0.95

	minPositiveConfidence = 0.6
)

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// Aggregate reduces the index-ordered scores of a run to a verdict, timeline
// and the flaggedLimit most suspicious frames. RunID and DroppedFrameCount are
// left for the caller.
func Aggregate(scores []ScoredFrame, info model.StreamInfo, flaggedLimit int) (model.PipelineResult, error) {
	n := len(scores)
	if n == 0 {
		return model.PipelineResult{}, ErrNoFrames
	}

	var sum, peak float64
	positives, slow := 0, 0
	for _, s := range scores {
		sum += s.Probability
		if s.Probability > peak {
			peak = s.Probability
		}
		if s.Probability > positiveFrameThreshold {
			positives++
		}
		if s.Slow {
			slow++
		}
	}

	mean := sum / float64(n)
	ratio := float64(positives) / float64(n)

	verdict, confidence := model.VerdictNegative, 1-mean
	if mean > meanTrigger || (ratio > ratioTrigger && peak > ratioPeakTrigger) || peak > peakTrigger {
		verdict, confidence = model.VerdictPositive, math.Max(peak, minPositiveConfidence)
	}

	fps := info.NativeFPS
	if fps <= 0 {
		fps = 1
	}

	timeline := make([]model.TimelineEntry, 0, n)
	candidates := []ScoredFrame{}
	for _, s := range scores {
		timeline = append(timeline, model.TimelineEntry{
			TimeSeconds: round(float64(s.Index)/fps, 2),
			Probability: round(s.Probability, 3),
			Thumbnail:   s.Thumbnail,
		})

		if s.Probability > flaggedFrameThreshold {
			candidates = append(candidates, s)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Probability != candidates[j].Probability {
			return candidates[i].Probability > candidates[j].Probability
		}
		return candidates[i].Index < candidates[j].Index
	})

	if flaggedLimit >= 0 && len(candidates) > flaggedLimit {
		candidates = candidates[:flaggedLimit]
	}

	flagged := make([]model.FlaggedFrame, 0, len(candidates))
	for _, s := range candidates {
		flagged = append(flagged, model.FlaggedFrame{
			Index:       s.Index,
			TimeSeconds: round(float64(s.Index)/fps, 2),
			Probability: round(s.Probability, 4),
			Thumbnail:   s.Thumbnail,
		})
	}

	return model.PipelineResult{
		Verdict:              verdict,
		OverallConfidence:    confidence,
		MeanProbability:      mean,
		PeakProbability:      peak,
		PositiveFrameRatio:   ratio,
		ProcessedFrameCount:  n,
		SlowScoredFrameCount: slow,
		DurationSeconds:      info.DurationSeconds,
		Timeline:             timeline,
		FlaggedFrames:        flagged,
	}, nil
}
