package status

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/coral-autoprof/internal/retry"
	"github.com/coral-mesh/coral-autoprof/pkg/version"
)

// Reason explains why a report was sent.
type Reason string

const (
	ReasonStartup         Reason = "startup"
	ReasonHeartbeat       Reason = "heartbeat"
	ReasonSettingsUpdated Reason = "settings_updated"
	ReasonShutdown        Reason = "shutdown"
)

// Report is the status snapshot sent upstream.
type Report struct {
	AgentID   string    `json:"agentId"`
	Status    string    `json:"status"`
	Reason    Reason    `json:"reason"`
	Version   string    `json:"version"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Reporter delivers status reports to the control plane.
type Reporter interface {
	Send(ctx context.Context, report Report, reason Reason) error
}

// NopReporter drops reports. It is used when no status endpoint is configured.
type NopReporter struct {
	Logger zerolog.Logger
}

// Send implements Reporter.
func (r NopReporter) Send(_ context.Context, report Report, reason Reason) error {
	r.Logger.Trace().
		Str("status", report.Status).
		Str("reason", string(reason)).
		Msg("Status report dropped, no status endpoint configured")
	return nil
}

// HTTPReporter POSTs reports as JSON.
type HTTPReporter struct {
	endpoint string
	client   *http.Client
	retry    retry.Config
}

// NewHTTPReporter creates a reporter for endpoint.
func NewHTTPReporter(endpoint string, timeout time.Duration) *HTTPReporter {
	return &HTTPReporter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		retry:    retry.DefaultConfig(),
	}
}

type rejectedError struct {
	code int
}

func (e *rejectedError) Error() string {
	return fmt.Sprintf("status endpoint returned %d", e.code)
}

// Send implements Reporter.
func (r *HTTPReporter) Send(ctx context.Context, report Report, reason Reason) error {
	report.Reason = reason
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode status report: %w", err)
	}

	return retry.Do(ctx, r.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to build status request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", version.UserAgent())

		resp, err := r.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send status report: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		if resp.StatusCode >= 300 {
			return &rejectedError{code: resp.StatusCode}
		}
		return nil
	}, func(err error) bool {
		var re *rejectedError
		if errors.As(err, &re) {
			return re.code >= 500
		}
		return true
	})
}
