package errors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_Success(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	err := Guard(logger, false, "ok", func() error { return nil })

	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestGuard_ErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	boom := errors.New("boom")

	err := Guard(logger, false, "loop", func() error { return boom })

	require.ErrorIs(t, err, boom)
	assert.Contains(t, buf.String(), "Unexpected failure")
	assert.Contains(t, buf.String(), `"task":"loop"`)
}

func TestGuard_CancellationIsSwallowed(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.InfoLevel)

	err := Guard(logger, true, "loop", func() error {
		return fmt.Errorf("sleep: %w", context.Canceled)
	})

	require.NoError(t, err)
	assert.Empty(t, buf.String(), "cancellation is logged at trace level only")
}

func TestGuard_RecoversPanic(t *testing.T) {
	logger := zerolog.Nop()

	err := Guard(logger, false, "panicky", func() error {
		panic("kaboom")
	})

	var perr *PanicError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "kaboom", perr.Value)
	assert.NotEmpty(t, perr.Stack)
}

func TestGuard_AllowCrashRepanics(t *testing.T) {
	logger := zerolog.Nop()

	assert.Panics(t, func() {
		_ = Guard(logger, true, "fatal", func() error { return errors.New("unexpected") })
	})
	assert.Panics(t, func() {
		_ = Guard(logger, true, "fatal", func() error { panic("again") })
	})
}

func TestIsCancellation(t *testing.T) {
	assert.True(t, IsCancellation(context.Canceled))
	assert.True(t, IsCancellation(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.False(t, IsCancellation(errors.New("other")))
	assert.False(t, IsCancellation(nil))
}

type failingCloser struct{ err error }

func (f failingCloser) Close() error { return f.err }

func TestDeferClose(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	DeferClose(logger, nil, "nil closer")
	DeferClose(logger, failingCloser{}, "fine")
	assert.Empty(t, buf.String())

	DeferClose(logger, failingCloser{err: errors.New("close failed")}, "failed to close journal")
	assert.Contains(t, buf.String(), "failed to close journal")
}
