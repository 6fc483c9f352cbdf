// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrEventNotFound indicates a domain event was not found by the given identifier.
	ErrEventNotFound = errors.New("event not found")

	// ErrAutomationNotFound indicates an automation was not found by the given identifier.
	ErrAutomationNotFound = errors.New("automation not found")

	// ErrExecutionNotFound indicates a workflow execution was not found.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrEntityNotFound indicates an entity was not found by the given identifier.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrEventNotClaimed indicates a completion or release was attempted on an
	// event that is not in the processing state.
	ErrEventNotClaimed = errors.New("event not claimed")
)

// EventError wraps event store errors with additional context.
type EventError struct {
	Op      string // Operation being performed (e.g., "Insert", "Claim", "Complete")
	EventID string // Event ID if applicable
	Err     error  // Underlying error
}

func (e *EventError) Error() string {
	if e.EventID == "" {
		return fmt.Sprintf("%s operation failed for events: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s operation failed for event %s: %v", e.Op, e.EventID, e.Err)
}

func (e *EventError) Unwrap() error {
	return e.Err
}

func (e *EventError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewEventError creates a new event error with context.
func NewEventError(op, eventID string, err error) *EventError {
	return &EventError{Op: op, EventID: eventID, Err: err}
}

// AutomationError wraps automation store errors with additional context.
type AutomationError struct {
	Op           string // Operation being performed
	AutomationID string // Automation ID if applicable
	Err          error  // Underlying error
}

func (e *AutomationError) Error() string {
	if e.AutomationID == "" {
		return fmt.Sprintf("%s operation failed for automations: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s operation failed for automation %s: %v", e.Op, e.AutomationID, e.Err)
}

func (e *AutomationError) Unwrap() error {
	return e.Err
}

func (e *AutomationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewAutomationError creates a new automation error with context.
func NewAutomationError(op, automationID string, err error) *AutomationError {
	return &AutomationError{Op: op, AutomationID: automationID, Err: err}
}

// ExecutionError wraps execution store errors with additional context.
type ExecutionError struct {
	Op          string // Operation being performed
	ExecutionID string // Execution ID if applicable
	Err         error  // Underlying error
}

func (e *ExecutionError) Error() string {
	if e.ExecutionID == "" {
		return fmt.Sprintf("%s operation failed for executions: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, Err: err}
}

// EntityError wraps entity store errors with additional context.
type EntityError struct {
	Op       string // Operation being performed
	EntityID string // Entity ID if applicable
	Err      error  // Underlying error
}

func (e *EntityError) Error() string {
	if e.EntityID == "" {
		return fmt.Sprintf("%s operation failed for entities: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s operation failed for entity %s: %v", e.Op, e.EntityID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewEntityError creates a new entity error with context.
func NewEntityError(op, entityID string, err error) *EntityError {
	return &EntityError{Op: op, EntityID: entityID, Err: err}
}

// IsEventNotFound checks if an error indicates a domain event was not found.
func IsEventNotFound(err error) bool {
	return errors.Is(err, ErrEventNotFound)
}

// IsAutomationNotFound checks if an error indicates an automation was not found.
func IsAutomationNotFound(err error) bool {
	return errors.Is(err, ErrAutomationNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsEntityNotFound checks if an error indicates an entity was not found.
func IsEntityNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}
