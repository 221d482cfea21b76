package vertex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sitechat/relay/internal/config"
	"github.com/sitechat/relay/internal/domain"
	"github.com/sitechat/relay/internal/logging"
)

const (
	maxAttempts       = 3
	attemptTimeout    = 25 * time.Second
	defaultRetryDelay = time.Second
)

// unavailableMsg is the caller-facing message for any upstream failure.
const unavailableMsg = "AI service unavailable"

// Caller opens SSE streams against the Vertex endpoint with bounded retries.
// The per-attempt timeout covers connection and response headers only; once
// a stream is open, reading it is not time-bounded here.
type Caller struct {
	endpoint   string
	client     *http.Client
	retryDelay time.Duration
	log        *logging.Logger
}

// NewCaller builds a Caller for the configured project and model.
func NewCaller(cfg config.GoogleConfig, log *logging.Logger) *Caller {
	return &Caller{
		endpoint:   StreamEndpoint(cfg),
		client:     &http.Client{},
		retryDelay: defaultRetryDelay,
		log:        log.Sub("vertex"),
	}
}

// StreamEndpoint computes the streamGenerateContent URL, honoring an
// explicit endpoint override.
func StreamEndpoint(cfg config.GoogleConfig) string {
	if cfg.Endpoint != "" {
		return cfg.Endpoint
	}
	return fmt.Sprintf(
		"https://aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:streamGenerateContent?alt=sse",
		cfg.ProjectID, cfg.Location, cfg.Model)
}

// Open performs the upstream call, retrying 429 and 5xx responses and
// network failures up to maxAttempts with a linearly growing delay. The
// returned body is the raw SSE stream; the caller must close it. The
// RetryOutcome is valid on both paths and feeds the metrics record.
func (c *Caller) Open(ctx context.Context, token string, greq *GenerateRequest) (io.ReadCloser, domain.RetryOutcome, error) {
	payload, err := json.Marshal(greq)
	if err != nil {
		return nil, domain.RetryOutcome{}, domain.Errf(domain.KindInternal, err, unavailableMsg)
	}

	var outcome domain.RetryOutcome
	var last *attemptError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		outcome.Attempts = attempt
		body, status, ae := c.attempt(ctx, token, payload)
		if ae == nil {
			outcome.FinalStatus = status
			return body, outcome, nil
		}
		outcome.FinalStatus = ae.status
		last = ae

		if !ae.retryable() {
			c.log.Warn().Int("status", ae.status).Str("body", ae.body).Msg("upstream rejected request")
			return nil, outcome, domain.Errf(domain.KindUpstreamNonRetryable, ae, unavailableMsg)
		}
		c.log.Warn().Int("attempt", attempt).Int("status", ae.status).Err(ae).Msg("upstream attempt failed")

		if attempt < maxAttempts {
			select {
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				relErr := domain.Errf(domain.KindUpstreamExhausted, ctx.Err(), unavailableMsg)
				return nil, outcome, relErr
			}
		}
	}

	relErr := domain.Errf(domain.KindUpstreamExhausted, last, unavailableMsg)
	relErr.Timeout = last.timeout
	return nil, outcome, relErr
}

// attemptError is one failed upstream attempt. status is 0 when no HTTP
// response was observed.
type attemptError struct {
	status  int
	timeout bool
	body    string
	cause   error
}

func (e *attemptError) Error() string {
	switch {
	case e.cause != nil:
		return e.cause.Error()
	case e.body != "":
		return fmt.Sprintf("upstream status %d: %s", e.status, e.body)
	default:
		return fmt.Sprintf("upstream status %d", e.status)
	}
}

func (e *attemptError) Unwrap() error { return e.cause }

// retryable: network failures, timeouts, 429, and 5xx. Other 4xx are final.
func (e *attemptError) retryable() bool {
	return e.status == 0 || e.status == http.StatusTooManyRequests || e.status >= 500
}

func (c *Caller) attempt(ctx context.Context, token string, payload []byte) (io.ReadCloser, int, *attemptError) {
	attemptCtx, cancel := context.WithCancel(ctx)
	var timedOut atomic.Bool
	timer := time.AfterFunc(attemptTimeout, func() {
		timedOut.Store(true)
		cancel()
	})
	fail := func(status int, body string, cause error) (io.ReadCloser, int, *attemptError) {
		timer.Stop()
		cancel()
		return nil, 0, &attemptError{status: status, timeout: timedOut.Load(), body: body, cause: cause}
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fail(0, "", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fail(0, "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		return fail(resp.StatusCode, string(bytes.TrimSpace(body)), nil)
	}

	// Headers arrived in time; the stream itself is unbounded. The timer is
	// disarmed and the attempt context lives until the body is closed.
	timer.Stop()
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, resp.StatusCode, nil
}

// cancelOnClose releases the attempt context together with the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// ErrorType classifies a failed upstream call for the metrics record.
func ErrorType(err error, outcome domain.RetryOutcome) string {
	var relErr *domain.RelayError
	if !errors.As(err, &relErr) {
		return "unknown"
	}
	switch {
	case relErr.Timeout:
		return "timeout"
	case relErr.Kind == domain.KindAuth:
		return "auth_error"
	case relErr.Kind == domain.KindStreamInterrupted:
		return "stream_error"
	case outcome.FinalStatus >= 500:
		return "vertex_5xx"
	case outcome.FinalStatus > 0 && outcome.FinalStatus != http.StatusOK:
		return fmt.Sprintf("vertex_%d", outcome.FinalStatus)
	default:
		return "network_error"
	}
}
