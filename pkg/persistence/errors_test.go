package persistence_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/statusflowhq/statusflow/pkg/persistence"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		eventErr := persistence.NewEventError("Complete", "event-123", persistence.ErrEventNotFound)
		automationErr := persistence.NewAutomationError("GetByID", "auto-456", persistence.ErrAutomationNotFound)

		assert.True(t, persistence.IsEventNotFound(eventErr))
		assert.True(t, persistence.IsAutomationNotFound(automationErr))
		assert.False(t, persistence.IsAutomationNotFound(eventErr))

		assert.True(t, errors.Is(eventErr, persistence.ErrEventNotFound))
		assert.True(t, errors.Is(automationErr, persistence.ErrAutomationNotFound))
	})

	t.Run("event error contains context", func(t *testing.T) {
		err := persistence.NewEventError("Release", "event-123", persistence.ErrEventNotClaimed)

		assert.Contains(t, err.Error(), "Release")
		assert.Contains(t, err.Error(), "event-123")
		assert.Contains(t, err.Error(), "event not claimed")
	})

	t.Run("execution error contains context", func(t *testing.T) {
		err := persistence.NewExecutionError("Update", "exec-789", persistence.ErrExecutionNotFound)

		assert.Contains(t, err.Error(), "Update")
		assert.Contains(t, err.Error(), "exec-789")
		assert.Contains(t, err.Error(), "execution not found")
		assert.True(t, persistence.IsExecutionNotFound(err))
	})

	t.Run("entity error without id omits it", func(t *testing.T) {
		err := persistence.NewEntityError("Count", "", persistence.ErrEntityNotFound)

		assert.Contains(t, err.Error(), "Count")
		assert.Contains(t, err.Error(), "entities")
		assert.True(t, persistence.IsEntityNotFound(err))
	})

	t.Run("unwrap exposes the sentinel", func(t *testing.T) {
		err := persistence.NewEventError("Fail", "event-1", persistence.ErrEventNotFound)

		assert.Equal(t, persistence.ErrEventNotFound, errors.Unwrap(err))
	})
}
