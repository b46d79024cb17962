// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package storage

import (
	"context"
	"errors"
)

// Pool is a bounded set of preconstructed storage handles. Acquisition
// blocks while the pool is saturated; release must happen on every exit
// path, which With guarantees.
type Pool struct {
	handles chan Backend
}

// NewPool builds a pool from size handles produced by factory.
func NewPool(size int, factory func() Backend) *Pool {
	if size < 1 {
		size = 1
	}
	ch := make(chan Backend, size)
	for i := 0; i < size; i++ {
		ch <- factory()
	}
	return &Pool{handles: ch}
}

// Acquire takes a handle out of the pool. The returned release function
// must be called exactly once.
func (p *Pool) Acquire(ctx context.Context) (Backend, func(), error) {
	select {
	case b := <-p.handles:
		var released bool
		release := func() {
			if released {
				return
			}
			released = true
			p.handles <- b
		}
		return b, release, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// With runs fn with an acquired handle, returning the handle on all exit
// paths including panics.
func (p *Pool) With(ctx context.Context, fn func(Backend) error) error {
	b, release, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	if fn == nil {
		return errors.New("storage: nil pool callback")
	}
	return fn(b)
}
