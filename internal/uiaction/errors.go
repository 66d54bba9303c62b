package uiaction

import (
	"errors"
	"fmt"
	"time"
)

// ErrWaitTimeout is returned by WaitUntil when the condition never held.
var ErrWaitTimeout = errors.New("wait timed out")

// NotFoundError means no alternative of a locator rendered within the
// timeout.
type NotFoundError struct {
	Locator Locator
	Timeout time.Duration
	Cause   error
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("element %s not found within %s", e.Locator.Name, e.Timeout)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *NotFoundError) Unwrap() error { return e.Cause }

// InteractionError means the element was found but rejected the action.
type InteractionError struct {
	Action  string
	Locator Locator
	Cause   error
}

func (e *InteractionError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Action, e.Locator.Name, e.Cause)
}

func (e *InteractionError) Unwrap() error { return e.Cause }

// ErrDisabled is the cause recorded when a control is disabled.
var ErrDisabled = errors.New("element is disabled")
