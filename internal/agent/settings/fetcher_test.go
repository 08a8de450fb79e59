package settings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/coral-autoprof/internal/config"
	"github.com/coral-mesh/coral-autoprof/internal/retry"
)

func newTestFetcher(url string) *HTTPFetcher {
	f := NewHTTPFetcher(url, "agent-1", time.Second, FromConfig(config.Default()), zerolog.Nop())
	f.retry = retry.Config{MaxAttempts: 3, InitialBackoff: time.Millisecond}
	return f
}

func TestHTTPFetcher_ChangedThenUnchanged(t *testing.T) {
	var body atomic.Value
	body.Store(`{"profilerEnabled": false}`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "agent-1", r.Header.Get("X-Agent-Id"))
		_, _ = w.Write([]byte(body.Load().(string)))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL)
	ctx := context.Background()

	snap, changed, err := f.Fetch(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, snap.ProfilerEnabled)

	_, changed, err = f.Fetch(ctx)
	require.NoError(t, err)
	assert.False(t, changed, "identical payload is unchanged")

	body.Store(`{"profilerEnabled": true}`)
	snap, changed, err = f.Fetch(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, snap.ProfilerEnabled)
}

func TestHTTPFetcher_NotModified(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) > 1 {
			assert.Equal(t, `"v1"`, r.Header.Get("If-None-Match"))
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL)

	_, changed, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)

	_, changed, err = f.Fetch(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestHTTPFetcher_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"agentEnabled": false}`))
	}))
	defer srv.Close()

	snap, changed, err := newTestFetcher(srv.URL).Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, snap.AgentEnabled)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcher_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unknown agent", http.StatusNotFound)
	}))
	defer srv.Close()

	_, _, err := newTestFetcher(srv.URL).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPFetcher_InvalidDocumentIsNotRemembered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sampling": {"overhead": 7}}`))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL)
	for i := 0; i < 2; i++ {
		_, changed, err := f.Fetch(context.Background())
		require.Error(t, err)
		assert.False(t, changed)
	}
}
