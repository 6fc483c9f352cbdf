package scheduler

import (
	"context"
	"time"
)

// Synchronous runs every job inline on the calling goroutine, ignoring
// delays. Deterministic replacement for Background in tests.
type Synchronous struct {
	ctx    context.Context
	cancel context.CancelFunc

	// Names of jobs run, in order.
	Ran []string
}

func NewSynchronous() *Synchronous {
	ctx, cancel := context.WithCancel(context.Background())

	return &Synchronous{ctx: ctx, cancel: cancel}
}

func (s *Synchronous) Schedule(name string, _ time.Duration, job Job) {
	if s.ctx.Err() != nil {
		return
	}

	s.Ran = append(s.Ran, name)
	job(s.ctx)
}

func (s *Synchronous) Close() {
	s.cancel()
}
