// Package testutil provides testing utilities shared by the agent packages.
package testutil

import (
	"context"
	"testing"
	"time"
)

// NewTestContext creates a context bounded by a 30-second timeout that is
// cancelled when the test finishes.
func NewTestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// Eventually polls cond every few milliseconds until it returns true or the
// timeout elapses, and reports whether it succeeded.
func Eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
