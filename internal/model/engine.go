package model

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phuslu/log"
	"gorgonia.org/tensor"
)

// Timings accumulates forward pass statistics.
type Timings struct {
	NumCalls uint64
	TotalNS  uint64
}

// Engine runs forward passes against a loaded Handle. Passes are serialized
// because the runtime session reuses its input and output buffers.
type Engine struct {
	mu      sync.Mutex
	timings Timings
}

func NewEngine() *Engine {
	return &Engine{}
}

// Infer runs the model on t, which must have shape [1, H, W, C] matching the
// handle. ctx is only consulted before the pass starts: once the runtime has
// the input, Infer blocks until the output vector exists or the pass fails.
func (e *Engine) Infer(ctx context.Context, h *Handle, t *tensor.Dense) ([]float32, error) {
	if h == nil || h.runner == nil {
		return nil, fmt.Errorf("%w: no model loaded", ErrInference)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: nil tensor", ErrShapeMismatch)
	}
	want := tensor.Shape(h.BatchShape())
	if !t.Shape().Eq(want) {
		return nil, fmt.Errorf("%w: got %v, want %v", ErrShapeMismatch, t.Shape(), want)
	}
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("%w: dtype %v, want float32", ErrShapeMismatch, t.Dtype())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	vec, err := h.runner.Run(data)
	took := time.Since(start)
	atomic.AddUint64(&e.timings.NumCalls, 1)
	atomic.AddUint64(&e.timings.TotalNS, uint64(took))

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	log.Debug().Dur("took", took).Msg("forward pass complete")
	return vec, nil
}

// Stats returns the accumulated call count and the mean pass duration.
func (e *Engine) Stats() (calls uint64, mean time.Duration) {
	calls = atomic.LoadUint64(&e.timings.NumCalls)
	total := atomic.LoadUint64(&e.timings.TotalNS)
	return calls, time.Duration(float64(total) / math.Max(1, float64(calls)))
}
