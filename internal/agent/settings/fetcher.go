package settings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"

	"github.com/coral-mesh/coral-autoprof/internal/retry"
	"github.com/coral-mesh/coral-autoprof/pkg/version"
)

// maxSettingsBytes bounds the settings document.
const maxSettingsBytes = 1 << 20

// Fetcher retrieves settings from the control plane.
// changed is false when the control plane has nothing new.
type Fetcher interface {
	Fetch(ctx context.Context) (snap Snapshot, changed bool, err error)
}

// statusError is returned for non-2xx answers.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("control plane returned status %d: %s", e.code, e.body)
}

// HTTPFetcher polls a JSON settings endpoint.
//
// The payload is fingerprinted with xxh3 so that an identical document is
// reported as unchanged even when the server ignores conditional requests.
type HTTPFetcher struct {
	endpoint string
	agentID  string
	client   *http.Client
	base     Snapshot
	retry    retry.Config
	logger   zerolog.Logger

	mu       sync.Mutex
	lastHash uint64
	hasHash  bool
	etag     string
}

// NewHTTPFetcher creates a fetcher. base supplies the values for fields the
// control plane leaves out.
func NewHTTPFetcher(endpoint, agentID string, timeout time.Duration, base Snapshot, logger zerolog.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		endpoint: endpoint,
		agentID:  agentID,
		client:   &http.Client{Timeout: timeout},
		base:     base,
		retry:    retry.DefaultConfig(),
		logger:   logger.With().Str("component", "settings_fetcher").Logger(),
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context) (Snapshot, bool, error) {
	var body []byte
	var notModified bool

	err := retry.Do(ctx, f.retry, func(ctx context.Context) error {
		var err error
		body, notModified, err = f.get(ctx)
		return err
	}, isTransient)
	if err != nil {
		return Snapshot{}, false, err
	}
	if notModified {
		return Snapshot{}, false, nil
	}

	hash := xxh3.Hash(body)

	f.mu.Lock()
	same := f.hasHash && hash == f.lastHash
	f.mu.Unlock()
	if same {
		f.logger.Trace().Uint64("fingerprint", hash).Msg("Settings unchanged")
		return Snapshot{}, false, nil
	}

	snap, err := Decode(body, f.base)
	if err != nil {
		return Snapshot{}, false, err
	}

	f.mu.Lock()
	f.lastHash = hash
	f.hasHash = true
	f.mu.Unlock()

	f.logger.Debug().Uint64("fingerprint", hash).Msg("Received new settings")
	return snap, true, nil
}

func (f *HTTPFetcher) get(ctx context.Context) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build settings request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if f.agentID != "" {
		req.Header.Set("X-Agent-Id", f.agentID)
	}

	f.mu.Lock()
	if f.etag != "" {
		req.Header.Set("If-None-Match", f.etag)
	}
	f.mu.Unlock()

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch settings: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotModified {
		return nil, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, false, &statusError{code: resp.StatusCode, body: string(body)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSettingsBytes))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read settings: %w", err)
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		f.mu.Lock()
		f.etag = etag
		f.mu.Unlock()
	}
	return body, false, nil
}

// isTransient retries network failures and server-side errors.
func isTransient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return true
}
