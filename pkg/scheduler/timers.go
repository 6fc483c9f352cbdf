package scheduler

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Background schedules jobs on timers and runs them on their own goroutines.
type Background struct {
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	seq    int
	timers map[int]*time.Timer
	closed bool

	wg sync.WaitGroup
}

func NewBackground(logger *slog.Logger) *Background {
	ctx, cancel := context.WithCancel(context.Background())

	return &Background{
		logger: logger.With("module", "scheduler"),
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[int]*time.Timer),
	}
}

func (s *Background) Schedule(name string, delay time.Duration, job Job) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("Dropping job scheduled after close", "job", name)

		return
	}

	s.seq++
	id := s.seq
	s.wg.Add(1)

	timer := time.AfterFunc(delay, func() {
		defer s.wg.Done()
		defer s.forget(id)

		if s.ctx.Err() != nil {
			return
		}

		s.run(name, job)
	})

	s.timers[id] = timer
	s.mu.Unlock()
}

func (s *Background) run(name string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Scheduled job panicked",
				"job", name,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	job(s.ctx)
}

func (s *Background) forget(id int) {
	s.mu.Lock()
	delete(s.timers, id)
	s.mu.Unlock()
}

// Close stops pending timers, cancels the job context and waits for
// in-flight jobs.
func (s *Background) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return
	}

	s.closed = true
	s.cancel()

	for id, timer := range s.timers {
		if timer.Stop() {
			// Timer had not fired; release its wait slot.
			s.wg.Done()
			delete(s.timers, id)
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
}
