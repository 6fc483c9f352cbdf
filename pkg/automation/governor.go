package automation

import (
	"context"
	"slices"
	"time"

	"github.com/statusflowhq/statusflow/pkg/persistence"
)

const (
	// DefaultMaxRecursionDepth bounds how many cascade hops a chain may
	// make before further triggering is suppressed.
	DefaultMaxRecursionDepth = 5

	// Per-organization execution rate limit: at most
	// DefaultMaxExecutionsPerWindow executions triggered within any
	// trailing DefaultRateLimitWindow.
	DefaultRateLimitWindow        = time.Minute
	DefaultMaxExecutionsPerWindow = 100
)

// GuardConfig tunes the safety governor. Guard state is never held in
// memory: recursion depth travels in event metadata, chains live on the
// execution rows, and the rate count is a query over persisted history, so
// guards stay correct across restarts and concurrent engines.
type GuardConfig struct {
	MaxRecursionDepth      int
	RateLimitWindow        time.Duration
	MaxExecutionsPerWindow int64
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MaxRecursionDepth:      DefaultMaxRecursionDepth,
		RateLimitWindow:        DefaultRateLimitWindow,
		MaxExecutionsPerWindow: DefaultMaxExecutionsPerWindow,
	}
}

func (g GuardConfig) withDefaults() GuardConfig {
	if g.MaxRecursionDepth <= 0 {
		g.MaxRecursionDepth = DefaultMaxRecursionDepth
	}

	if g.RateLimitWindow <= 0 {
		g.RateLimitWindow = DefaultRateLimitWindow
	}

	if g.MaxExecutionsPerWindow <= 0 {
		g.MaxExecutionsPerWindow = DefaultMaxExecutionsPerWindow
	}

	return g
}

// recursionExceeded reports whether a chain at the given depth may not
// trigger further automations.
func (g GuardConfig) recursionExceeded(depth int) bool {
	return depth >= g.MaxRecursionDepth
}

// rateExceeded counts the org's executions in the trailing window against
// the limit. The count reads persisted rows at decision time.
func (g GuardConfig) rateExceeded(ctx context.Context, executions persistence.ExecutionRepository, orgID string, now time.Time) (bool, error) {
	count, err := executions.CountExecutionsSince(ctx, orgID, now.Add(-g.RateLimitWindow))
	if err != nil {
		return false, err
	}

	return count >= g.MaxExecutionsPerWindow, nil
}

// loopDetected reports whether the automation already ran in this cascade
// chain.
func loopDetected(chain []string, automationID string) bool {
	return slices.Contains(chain, automationID)
}
