// Copyright (C) The Traitassoc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package traitassoc

import (
	"context"
	"sync"
	"sync/atomic"
)

// throttle runs at most Max concurrent tasks and remembers the first
// error any of them reports.
type throttle struct {
	Max       int
	wg        sync.WaitGroup
	ch        chan bool
	err       atomic.Value
	setupOnce sync.Once
	errorOnce sync.Once
}

// Acquire blocks until a slot is free or ctx is done.
func (t *throttle) Acquire(ctx context.Context) error {
	t.setupOnce.Do(func() { t.ch = make(chan bool, t.Max) })
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case t.ch <- true:
		t.wg.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *throttle) Release() {
	t.wg.Done()
	<-t.ch
}

// Go runs f on its own goroutine once a slot is free.
func (t *throttle) Go(ctx context.Context, f func() error) error {
	if err := t.Acquire(ctx); err != nil {
		return err
	}
	go func() {
		defer t.Release()
		t.Report(f())
	}()
	return nil
}

func (t *throttle) Report(err error) {
	if err != nil {
		t.errorOnce.Do(func() { t.err.Store(err) })
	}
}

func (t *throttle) Err() error {
	err, _ := t.err.Load().(error)
	return err
}

func (t *throttle) Wait() error {
	t.wg.Wait()
	return t.Err()
}
