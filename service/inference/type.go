package inference

import (
	"context"

	"github.com/khaledhikmat/vs-verdict/model"
)

// IService scores a batch tensor (N×C×H×W) and returns N probabilities in
// [0,1]. Implementations are stateless across calls.
type IService interface {
	Name() string
	Score(ctx context.Context, batch model.Tensor) ([]float64, error)
}
