package opencv

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"

	"github.com/khaledhikmat/vs-verdict/model"
	"github.com/khaledhikmat/vs-verdict/service/config"
	"github.com/khaledhikmat/vs-verdict/service/inference"
	"github.com/khaledhikmat/vs-verdict/service/lgr"
	"gocv.io/x/gocv"
)

type dnnScorer struct {
	name   string
	params config.ScorerParameters

	// WARNING: net is not thread-safe!!!
	mu  sync.Mutex
	net gocv.Net
}

// NewDNNScorer loads an ONNX binary classifier with OpenCV's DNN module. The
// model must take N×C×H×W input and produce one value per sample.
func NewDNNScorer(name string, params config.ScorerParameters) (inference.IService, func(), error) {
	if _, err := os.Stat(params.ModelPath); err != nil {
		return nil, nil, fmt.Errorf("scorer %s model %s: %w", name, params.ModelPath, err)
	}

	net := gocv.ReadNet(params.ModelPath, "")
	if net.Empty() {
		return nil, nil, fmt.Errorf("scorer %s: error reading model %s", name, params.ModelPath)
	}

	backend, target := gocv.NetBackendDefault, gocv.NetTargetCPU
	if params.PreferableCUDA {
		backend, target = gocv.NetBackendCUDA, gocv.NetTargetCUDA
	}

	if err := net.SetPreferableBackend(backend); err != nil {
		net.Close()
		return nil, nil, fmt.Errorf("scorer %s: set backend: %w", name, err)
	}

	if err := net.SetPreferableTarget(target); err != nil {
		net.Close()
		return nil, nil, fmt.Errorf("scorer %s: set target: %w", name, err)
	}

	lgr.Logger.Info("dnn scorer loaded",
		slog.String("name", name),
		slog.String("model", params.ModelPath),
		slog.String("openCV", gocv.Version()),
	)

	s := &dnnScorer{name: name, params: params, net: net}
	return s, func() { s.net.Close() }, nil
}

func (s *dnnScorer) Name() string {
	return s.name
}

func (s *dnnScorer) Score(ctx context.Context, batch model.Tensor) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := batch.Len()
	if n == 0 {
		return []float64{}, nil
	}

	blob := gocv.NewMatWithSizes(batch.Shape, gocv.MatTypeCV32F)
	defer blob.Close()

	in, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("scorer %s: input blob: %w", s.name, err)
	}
	copy(in, batch.Data)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	defer output.Close()

	out, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("scorer %s: output: %w", s.name, err)
	}

	// Output is (N,1) or (N,); anything else is a model mismatch
	if len(out) != n {
		return nil, fmt.Errorf("scorer %s: expected %d outputs, got %d", s.name, n, len(out))
	}

	probs := make([]float64, n)
	for i, v := range out {
		p := float64(v)
		if s.params.OutputsLogits {
			p = 1.0 / (1.0 + math.Exp(-p))
		}
		probs[i] = p
	}
	return probs, nil
}
