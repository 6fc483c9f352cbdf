package scheduler

import "time"

// Noop drops every job. Processes that publish events but must not run the
// processing pipeline use it in place of Background: the API inserts rows
// and leaves claiming to the engine's sweep.
type Noop struct{}

func NewNoop() Noop {
	return Noop{}
}

func (Noop) Schedule(_ string, _ time.Duration, _ Job) {}

func (Noop) Close() {}
