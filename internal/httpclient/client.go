// Package httpclient wraps the standard http.Client with the resilience the
// external service calls depend on: a circuit breaker, retries with
// exponential backoff, and transparent response decompression (gzip,
// deflate, brotli).
package httpclient

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
)

var (
	// ErrCircuitOpen is returned while the breaker is rejecting requests.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrMaxRetries is returned when every attempt failed.
	ErrMaxRetries = errors.New("max retries exceeded")
)

const (
	DefaultTimeout          = 30 * time.Second
	DefaultRetryAttempts    = 3
	DefaultRetryDelay       = 1 * time.Second
	DefaultRetryMaxDelay    = 30 * time.Second
	DefaultCircuitThreshold = 5
	DefaultCircuitTimeout   = 30 * time.Second

	acceptEncodings  = "gzip, deflate, br"
	defaultUserAgent = "enliterate/1.0"
)

// Config tunes one client. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	// Timeout bounds each individual attempt.
	Timeout time.Duration

	// RetryAttempts is the number of retries after the first attempt.
	RetryAttempts int

	// RetryDelay is the delay before the first retry; it doubles per
	// attempt up to RetryMaxDelay.
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration

	// CircuitThreshold is the consecutive-failure count that opens the
	// breaker; CircuitTimeout is how long it stays open before trying again.
	CircuitThreshold int
	CircuitTimeout   time.Duration

	UserAgent string
	Logger    *slog.Logger

	// BaseClient overrides the underlying http.Client when set.
	BaseClient *http.Client
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:          DefaultTimeout,
		RetryAttempts:    DefaultRetryAttempts,
		RetryDelay:       DefaultRetryDelay,
		RetryMaxDelay:    DefaultRetryMaxDelay,
		CircuitThreshold: DefaultCircuitThreshold,
		CircuitTimeout:   DefaultCircuitTimeout,
		UserAgent:        defaultUserAgent,
		Logger:           slog.Default(),
	}
}

// Client executes HTTP requests with retry and circuit breaker protection.
type Client struct {
	cfg     Config
	client  *http.Client
	breaker *breaker
	logger  *slog.Logger
}

// New creates a client from the configuration.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	base := cfg.BaseClient
	if base == nil {
		base = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:     cfg,
		client:  base,
		breaker: newBreaker(cfg.CircuitThreshold, cfg.CircuitTimeout),
		logger:  cfg.Logger,
	}
}

// Do executes the request, retrying transport failures and retryable status
// codes under the request's context. The returned body is already
// decompressed when the server applied a known Content-Encoding.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if req.Header.Get("User-Agent") == "" && c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", acceptEncodings)
	}

	var lastErr error
	delay := c.cfg.RetryDelay

	for attempt := 0; attempt <= c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.cfg.RetryMaxDelay {
				delay = c.cfg.RetryMaxDelay
			}
		}

		if !c.breaker.allow() {
			lastErr = ErrCircuitOpen
			c.logger.Warn("circuit open, skipping attempt",
				slog.String("url", redactURL(req.URL)),
				slog.Int("attempt", attempt))
			continue
		}

		start := time.Now()
		resp, err := c.client.Do(req)
		duration := time.Since(start)

		if err != nil {
			c.breaker.recordFailure()
			lastErr = err
			c.logger.Warn("request failed",
				slog.String("url", redactURL(req.URL)),
				slog.String("method", req.Method),
				slog.Duration("duration", duration),
				slog.String("error", err.Error()),
				slog.Int("attempt", attempt))
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			continue
		}

		if isRetryableStatus(resp.StatusCode) {
			c.breaker.recordFailure()
			lastErr = fmt.Errorf("retryable status code: %d", resp.StatusCode)
			c.logger.Warn("retryable status code",
				slog.String("url", redactURL(req.URL)),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt))
			resp.Body.Close()
			continue
		}

		c.breaker.recordSuccess()
		c.logger.Debug("request completed",
			slog.String("url", redactURL(req.URL)),
			slog.String("method", req.Method),
			slog.Int("status", resp.StatusCode),
			slog.Duration("duration", duration))

		resp.Body = decompress(resp, c.logger)
		return resp, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrMaxRetries, lastErr)
}

// isRetryableStatus limits retries to statuses a later attempt can plausibly
// clear. Plain 5xx application errors are the caller's to classify.
func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// decompress wraps the response body according to its Content-Encoding.
// Unknown encodings pass through untouched.
func decompress(resp *http.Response, logger *slog.Logger) io.ReadCloser {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "":
		return resp.Body
	case "gzip":
		reader, err := gzip.NewReader(resp.Body)
		if err != nil {
			logger.Warn("corrupt gzip body, returning raw",
				slog.String("error", err.Error()))
			return resp.Body
		}
		return &decompressReader{reader: reader, closer: resp.Body}
	case "deflate":
		return &decompressReader{reader: flate.NewReader(resp.Body), closer: resp.Body}
	case "br":
		return &decompressReader{reader: brotli.NewReader(resp.Body), closer: resp.Body}
	default:
		return resp.Body
	}
}

// decompressReader pairs a decompression reader with the network body so
// Close releases both.
type decompressReader struct {
	reader io.Reader
	closer io.Closer
}

func (d *decompressReader) Read(p []byte) (int, error) {
	return d.reader.Read(p)
}

func (d *decompressReader) Close() error {
	if closer, ok := d.reader.(io.Closer); ok {
		closer.Close()
	}
	return d.closer.Close()
}

// redactURL masks credential-looking query parameters before logging.
func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	masked := *u
	query := masked.Query()
	for _, param := range []string{
		"password", "passwd", "pass", "pwd",
		"token", "api_key", "apikey", "key",
		"secret", "auth", "authorization",
		"credential", "credentials",
	} {
		if query.Has(param) {
			query.Set(param, "***")
		}
	}
	masked.RawQuery = query.Encode()
	return masked.String()
}

const (
	circuitClosed = iota
	circuitOpen
	circuitHalfOpen
)

// breaker is a consecutive-failure circuit breaker. After the open timeout
// it admits a single trial request whose outcome decides the next state.
type breaker struct {
	mu            sync.Mutex
	state         int
	failures      int
	threshold     int
	timeout       time.Duration
	trialInFlight bool
	lastFailure   time.Time
}

func newBreaker(threshold int, timeout time.Duration) *breaker {
	return &breaker{state: circuitClosed, threshold: threshold, timeout: timeout}
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case circuitClosed:
		return true
	case circuitOpen:
		if time.Since(b.lastFailure) >= b.timeout {
			b.state = circuitHalfOpen
			b.trialInFlight = true
			return true
		}
		return false
	case circuitHalfOpen:
		if !b.trialInFlight {
			b.trialInFlight = true
			return true
		}
		return false
	default:
		return false
	}
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == circuitHalfOpen {
		b.state = circuitClosed
	}
	b.failures = 0
	b.trialInFlight = false
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()
	b.trialInFlight = false

	switch b.state {
	case circuitClosed:
		if b.failures >= b.threshold {
			b.state = circuitOpen
		}
	case circuitHalfOpen:
		b.state = circuitOpen
	}
}
