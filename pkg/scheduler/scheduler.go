// Package scheduler runs deferred units of work. Event processing never
// blocks in long-lived loops: each continuation (next batch, delayed retry,
// automation run) is scheduled as a discrete job, optionally delayed.
package scheduler

import (
	"context"
	"time"
)

// Job is a scheduled unit of work. The context is cancelled when the
// scheduler shuts down.
type Job func(ctx context.Context)

type Scheduler interface {
	// Schedule queues job to run after delay. A zero delay runs it as soon
	// as possible. Jobs scheduled after Close are dropped.
	Schedule(name string, delay time.Duration, job Job)

	// Close cancels pending jobs and waits for running ones to finish.
	Close()
}
