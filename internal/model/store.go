package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/sync/singleflight"
)

// Loader produces a Handle from a model artifact.
type Loader interface {
	Load(ctx context.Context) (*Handle, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (*Handle, error)

func (f LoaderFunc) Load(ctx context.Context) (*Handle, error) { return f(ctx) }

// Store loads the classifier once per session and caches the outcome.
// Concurrent Load calls share a single in-flight load; once it settles every
// later call returns the same handle or the same error.
type Store struct {
	loader Loader
	group  singleflight.Group

	mu     sync.Mutex
	done   bool
	handle *Handle
	err    error
}

func NewStore(loader Loader) *Store {
	return &Store{loader: loader}
}

// Load returns the cached handle, starting the load on first use. A caller
// whose ctx ends stops waiting, but the shared load keeps running.
func (s *Store) Load(ctx context.Context) (*Handle, error) {
	if h, ok, err := s.cached(); ok {
		return h, err
	}

	ch := s.group.DoChan("model", func() (any, error) {
		if h, ok, err := s.cached(); ok {
			return h, err
		}

		start := time.Now()
		h, err := s.loader.Load(context.WithoutCancel(ctx))
		if err == nil && h == nil {
			err = errors.New("loader returned no model")
		}
		if err != nil {
			h = nil
			err = fmt.Errorf("%w: %w", ErrModelLoad, err)
			log.Error().Err(err).Dur("took", time.Since(start)).Msg("model load failed")
		} else {
			log.Info().Str("input_shape", fmt.Sprint(h.inputShape)).Strs("labels", h.labels).
				Dur("took", time.Since(start)).Msg("model loaded")
		}

		s.mu.Lock()
		s.done, s.handle, s.err = true, h, err
		s.mu.Unlock()
		return h, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Handle), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close releases the cached handle, if any.
func (s *Store) Close() error {
	s.mu.Lock()
	h := s.handle
	s.done, s.handle, s.err = true, nil, fmt.Errorf("%w: store closed", ErrModelLoad)
	s.mu.Unlock()
	return h.Close()
}

func (s *Store) cached() (*Handle, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle, s.done, s.err
}
