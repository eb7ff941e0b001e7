package pipeline

import (
	"context"
	"math"

	"github.com/khaledhikmat/vs-verdict/model"
	"github.com/khaledhikmat/vs-verdict/service/inference"
	"github.com/khaledhikmat/vs-verdict/service/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/xerrors"
)

const tracerName = "github.com/khaledhikmat/vs-verdict/pipeline"

// Cascade scores a batch with the fast scorer and re-scores the frames it is
// not confident about with the slow scorer, once per batch.
type Cascade struct {
	fast      inference.IService
	slow      inference.IService
	threshold float64
}

// NewCascade builds a cascade. A nil slow scorer degrades to fast-only scoring.
func NewCascade(fast, slow inference.IService, threshold float64) *Cascade {
	return &Cascade{
		fast:      fast,
		slow:      slow,
		threshold: threshold,
	}
}

// Score returns one FrameScore per batch index, in batch order.
func (c *Cascade) Score(ctx context.Context, batch Batch) ([]model.FrameScore, error) {
	n := len(batch.Indices)
	if n == 0 {
		return []model.FrameScore{}, nil
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "cascade.score",
		trace.WithAttributes(
			attribute.Int("batch.size", n),
			attribute.Int("batch.first", batch.Indices[0]),
		),
	)
	defer span.End()

	fast, err := c.invoke(ctx, c.fast, batch.Tensor, n)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	scores := make([]model.FrameScore, n)
	uncertain := []int{}
	for i, p := range fast {
		contrast := model.Contrast(p)
		scores[i] = model.FrameScore{
			Index:       batch.Indices[i],
			Probability: p,
			Confidence:  contrast,
		}

		if c.slow != nil && contrast <= c.threshold {
			uncertain = append(uncertain, i)
		}
	}

	span.SetAttributes(attribute.Int("cascade.uncertain", len(uncertain)))
	if len(uncertain) == 0 {
		return scores, nil
	}

	slow, err := c.invoke(ctx, c.slow, batch.Tensor.Select(uncertain), len(uncertain))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	for j, i := range uncertain {
		scores[i].Probability = slow[j]
		scores[i].Confidence = model.Contrast(slow[j])
		scores[i].Slow = true
	}
	metrics.SlowFramesTotal.Add(float64(len(uncertain)))

	return scores, nil
}

// invoke calls one scorer and validates its output. Every failure other than
// cancellation is reported as ErrScorer.
func (c *Cascade) invoke(ctx context.Context, scorer inference.IService, tensor model.Tensor, n int) ([]float64, error) {
	probs, err := scorer.Score(ctx, tensor)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, xerrors.Errorf("%s scorer: %v: %w", scorer.Name(), err, ErrScorer)
	}

	if len(probs) != n {
		return nil, xerrors.Errorf("%s scorer returned %d probabilities for %d frames: %w", scorer.Name(), len(probs), n, ErrScorer)
	}

	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > 1 {
			return nil, xerrors.Errorf("%s scorer returned invalid probability %v at %d: %w", scorer.Name(), p, i, ErrScorer)
		}
	}

	return probs, nil
}
