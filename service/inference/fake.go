package inference

import (
	"context"
	"sync/atomic"

	"github.com/khaledhikmat/vs-verdict/model"
)

// SampleFunc maps one C×H×W sample to a probability.
type SampleFunc func(sample []float32) (float64, error)

type fakeService struct {
	name  string
	fn    SampleFunc
	calls atomic.Int64
}

// NewFake returns a scorer that evaluates fn on every sample of the batch.
func NewFake(name string, fn SampleFunc) *fakeService {
	return &fakeService{name: name, fn: fn}
}

// NewConstant returns a scorer that scores every sample with p.
func NewConstant(name string, p float64) *fakeService {
	return NewFake(name, func(_ []float32) (float64, error) {
		return p, nil
	})
}

func (svc *fakeService) Name() string {
	return svc.name
}

func (svc *fakeService) Score(ctx context.Context, batch model.Tensor) ([]float64, error) {
	svc.calls.Add(1)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	probs := make([]float64, batch.Len())
	for i := range probs {
		p, err := svc.fn(batch.Sample(i))
		if err != nil {
			return nil, err
		}
		probs[i] = p
	}
	return probs, nil
}

// Calls reports how many times Score was invoked.
func (svc *fakeService) Calls() int {
	return int(svc.calls.Load())
}
