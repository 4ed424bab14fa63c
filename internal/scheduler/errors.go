package scheduler

import (
	"errors"
	"fmt"

	"github.com/notifyhub/gyre/internal/domain"
)

// ErrReentrantRun is returned when RunOnce is called from inside a callback.
var ErrReentrantRun = errors.New("scheduler: RunOnce called from within a callback")

// CallbackError reports a listener callback, or one step of the task it
// returned, failing during RunOnce. The item that failed has already been
// dropped from the queue.
type CallbackError struct {
	Handle       domain.Handle
	Listener     string
	ProjectionID string

	// Resumed is true when the failure came from a continuation step
	// rather than the initial callback invocation.
	Resumed bool

	Err error
}

func (e *CallbackError) Error() string {
	stage := "callback"
	if e.Resumed {
		stage = "continuation"
	}
	return fmt.Sprintf("%s failed (listener=%s handle=%d projection=%s): %v",
		stage, e.Listener, e.Handle, e.ProjectionID, e.Err)
}

func (e *CallbackError) Unwrap() error { return e.Err }

// IsCallbackError returns true if err is or wraps a *CallbackError.
func IsCallbackError(err error) bool {
	var ce *CallbackError
	return errors.As(err, &ce)
}
