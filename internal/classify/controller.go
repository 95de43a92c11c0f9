// Package classify coordinates model loading, preprocessing, inference and
// ranking behind a single state machine.
package classify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/phuslu/log"
	"gorgonia.org/tensor"

	"github.com/Brownie44l1/plantid/internal/model"
	"github.com/Brownie44l1/plantid/internal/preprocess"
	"github.com/Brownie44l1/plantid/internal/rank"
)

// ModelStore provides the session's model handle.
type ModelStore interface {
	Load(ctx context.Context) (*model.Handle, error)
}

// Inferencer runs the model on a preprocessed tensor.
type Inferencer interface {
	Infer(ctx context.Context, h *model.Handle, t *tensor.Dense) ([]float32, error)
}

const subscriberBuffer = 16

// Controller owns the session State. All transitions happen under mu, so a
// snapshot never mixes the flags of two phases.
type Controller struct {
	store  ModelStore
	engine Inferencer

	mu      sync.Mutex
	state   State
	handle  *model.Handle
	loaded  chan struct{} // closed once the load settles
	loadErr error
	subs    map[chan State]struct{}
}

func NewController(store ModelStore, engine Inferencer) *Controller {
	return &Controller{
		store:  store,
		engine: engine,
		subs:   make(map[chan State]struct{}),
	}
}

// Start loads the model: Idle -> LoadingModel -> Ready, or Failed on error.
// The load runs to completion even if ctx ends first; a later Start waits
// on the same load and reports its outcome.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.loaded == nil {
		c.loaded = make(chan struct{})
		c.setLocked(State{Phase: PhaseLoadingModel})
		go c.load(context.WithoutCancel(ctx), c.loaded)
	}
	loaded := c.loaded
	c.mu.Unlock()

	select {
	case <-loaded:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadErr
}

func (c *Controller) load(ctx context.Context, done chan struct{}) {
	defer close(done)
	h, err := c.store.Load(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.loadErr = err
		c.setLocked(failed(err))
		return
	}
	c.handle = h
	c.setLocked(State{Phase: PhaseReady})
}

// Classify runs one image through the pipeline. It is rejected with
// ErrNotReady, without touching the state, while the model is loading,
// while another classification is running, or if no model was loaded.
// Once accepted the call runs to completion even if ctx ends, so the
// controller never has two classifications in flight. Pipeline errors are
// returned and also recorded as PhaseFailed.
func (c *Controller) Classify(ctx context.Context, image io.Reader) (rank.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return rank.Prediction{}, err
	}

	c.mu.Lock()
	phase, h := c.state.Phase, c.handle
	switch {
	case phase == PhaseIdle, phase == PhaseLoadingModel:
		c.mu.Unlock()
		return rank.Prediction{}, fmt.Errorf("%w: model is %s", ErrNotReady, phase)
	case phase == PhaseClassifying:
		c.mu.Unlock()
		return rank.Prediction{}, fmt.Errorf("%w: a classification is already running", ErrNotReady)
	case h == nil && c.loadErr != nil:
		err := c.loadErr
		c.mu.Unlock()
		return rank.Prediction{}, fmt.Errorf("%w: %w", ErrNotReady, err)
	case h == nil:
		c.mu.Unlock()
		return rank.Prediction{}, fmt.Errorf("%w: no model loaded", ErrNotReady)
	}
	c.setLocked(State{Phase: PhaseClassifying})
	c.mu.Unlock()

	start := time.Now()
	pred, err := c.run(context.WithoutCancel(ctx), h, image)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		st := failed(err)
		log.Warn().Err(err).Str("kind", st.Kind.String()).Dur("took", time.Since(start)).Msg("classification failed")
		c.setLocked(st)
		return rank.Prediction{}, err
	}
	log.Info().Str("label", pred.Label).Float32("probability", pred.Probability).
		Dur("took", time.Since(start)).Msg("classification complete")
	c.setLocked(succeeded(pred))
	return pred, nil
}

func (c *Controller) run(ctx context.Context, h *model.Handle, image io.Reader) (rank.Prediction, error) {
	t, err := preprocess.Preprocess(image, h.InputShape())
	if err != nil {
		return rank.Prediction{}, err
	}
	vec, err := c.engine.Infer(ctx, h, t)
	if err != nil {
		return rank.Prediction{}, err
	}
	return rank.Top(vec, h.Labels())
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe returns a channel that receives every state change, starting
// with the current state, and a function that ends the subscription. Slow
// subscribers lose their oldest pending snapshots.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, subscriberBuffer)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	ch <- c.state
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			close(ch)
			c.mu.Unlock()
		})
	}
}

func (c *Controller) setLocked(s State) {
	prev := c.state.Phase
	c.state = s
	log.Debug().Str("from", prev.String()).Str("to", s.Phase.String()).Msg("state transition")
	for ch := range c.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}
