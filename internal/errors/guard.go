package errors

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// PanicError carries a recovered panic value and the stack at the point of recovery.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Guard runs fn and contains whatever goes wrong inside it.
//
// A panic is recovered and converted into a *PanicError. An error caused by
// context cancellation is treated as a normal exit. Any other error is logged
// at error level. When allowCrash is set, unexpected errors and panics are
// re-raised so the process terminates; this is meant for debug builds only.
func Guard(logger zerolog.Logger, allowCrash bool, name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
		if err == nil {
			return
		}
		if IsCancellation(err) {
			logger.Trace().Err(err).Str("task", name).Msg("Task cancelled")
			err = nil
			return
		}

		logger.Error().Err(err).Str("task", name).Msg("Unexpected failure")
		if allowCrash {
			panic(fmt.Sprintf("%s: %v", name, err))
		}
	}()

	return fn()
}

// IsCancellation reports whether err is a context cancellation or deadline.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
