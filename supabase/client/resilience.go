package client

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// RetryConfig configures retries of idempotent failures. The zero value
// disables retries.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// Jitter is the fraction (0..1) of the backoff randomized per attempt.
	Jitter float64
	// RetryableStatusCodes lists gateway statuses worth another attempt.
	RetryableStatusCodes []int
}

// DefaultRetryConfig returns the retry configuration used by the API: no
// retries, so a failed store call surfaces to the caller immediately. The
// backoff values apply when MaxRetries is raised.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryableStatusCodes: []int{
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

func (c RetryConfig) backoff(attempt int) time.Duration {
	d := float64(c.InitialBackoff) * math.Pow(c.BackoffMultiplier, float64(attempt-1))
	if c.MaxBackoff > 0 {
		d = math.Min(d, float64(c.MaxBackoff))
	}
	if c.Jitter > 0 {
		d += d * c.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}

func (c RetryConfig) retryableStatus(code int) bool {
	return slices.Contains(c.RetryableStatusCodes, code)
}

// CircuitState is the state of the store circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the breaker. OnStateChange runs in its own
// goroutine.
type CircuitBreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	// Timeout is how long the circuit stays open before a trial request.
	Timeout       time.Duration
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig opens after 5 consecutive failures and lets a
// trial request through after 30s.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// ErrCircuitOpen is returned without contacting the store while the circuit
// is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops calls to a failing store.
type CircuitBreaker struct {
	mu     sync.Mutex
	config CircuitBreakerConfig
	now    func() time.Time

	state     CircuitState
	failures  int
	successes int
	openedAt  time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	config.FailureThreshold = max(config.FailureThreshold, 1)
	config.SuccessThreshold = max(config.SuccessThreshold, 1)
	return &CircuitBreaker{config: config, now: time.Now}
}

// Allow reports ErrCircuitOpen while the circuit is open and its timeout has
// not elapsed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return nil
	}
	if cb.now().Sub(cb.openedAt) <= cb.config.Timeout {
		return ErrCircuitOpen
	}
	cb.setState(CircuitHalfOpen)
	return nil
}

// Record feeds the outcome of one call into the breaker.
func (cb *CircuitBreaker) Record(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case ok && cb.state == CircuitClosed:
		cb.failures = 0
	case ok && cb.state == CircuitHalfOpen:
		if cb.successes++; cb.successes >= cb.config.SuccessThreshold {
			cb.setState(CircuitClosed)
		}
	case !ok && cb.state == CircuitClosed:
		if cb.failures++; cb.failures >= cb.config.FailureThreshold {
			cb.setState(CircuitOpen)
		}
	case !ok && cb.state == CircuitHalfOpen:
		cb.setState(CircuitOpen)
	}
}

func (cb *CircuitBreaker) setState(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	if to == CircuitOpen {
		cb.openedAt = cb.now()
	}
	if cb.config.OnStateChange != nil && from != to {
		go cb.config.OnStateChange(from, to)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ResilientConfig configures the resilient transport. A pooled transport is
// used when Base is nil.
type ResilientConfig struct {
	Base                 http.RoundTripper
	RetryConfig          RetryConfig
	CircuitBreakerConfig CircuitBreakerConfig
}

// ResilientTransport is an http.RoundTripper guarding store calls with a
// circuit breaker and, when configured, bounded retries.
type ResilientTransport struct {
	base    http.RoundTripper
	retry   RetryConfig
	breaker *CircuitBreaker

	requests atomic.Int64
	failures atomic.Int64
	retries  atomic.Int64
}

// NewResilientTransport creates a transport.
func NewResilientTransport(config ResilientConfig) *ResilientTransport {
	base := config.Base
	if base == nil {
		base = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		}
	}
	return &ResilientTransport{
		base:    base,
		retry:   config.RetryConfig,
		breaker: NewCircuitBreaker(config.CircuitBreakerConfig),
	}
}

// NewResilientHTTPClient wraps a resilient transport in an *http.Client
// suitable for Config.HTTPClient.
func NewResilientHTTPClient(config ResilientConfig, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Transport: NewResilientTransport(config),
		Timeout:   timeout,
	}
}

// RoundTrip implements http.RoundTripper. When retries run out on a
// retryable status the last response is returned so the store's error body
// reaches the caller.
func (rt *ResilientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.requests.Add(1)

	if err := rt.breaker.Allow(); err != nil {
		rt.failures.Add(1)
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			rt.retries.Add(1)
			next, err := rt.wait(req, attempt)
			if err != nil {
				rt.fail()
				return nil, err
			}
			req = next
		}

		last := attempt >= rt.retry.MaxRetries
		resp, err := rt.base.RoundTrip(req)
		switch {
		case err != nil:
			if !last && retryableError(err) {
				continue
			}
			rt.fail()
			return nil, err
		case rt.retry.retryableStatus(resp.StatusCode):
			if !last {
				resp.Body.Close()
				continue
			}
			rt.fail()
			return resp, nil
		default:
			rt.breaker.Record(true)
			return resp, nil
		}
	}
}

func (rt *ResilientTransport) fail() {
	rt.breaker.Record(false)
	rt.failures.Add(1)
}

// wait sleeps for the attempt's backoff and returns a replayable copy of req.
func (rt *ResilientTransport) wait(req *http.Request, attempt int) (*http.Request, error) {
	timer := time.NewTimer(rt.retry.backoff(attempt))
	defer timer.Stop()
	select {
	case <-req.Context().Done():
		return nil, req.Context().Err()
	case <-timer.C:
	}

	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}

func retryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Stats returns request, failure and retry counts.
func (rt *ResilientTransport) Stats() (requests, failures, retries int64) {
	return rt.requests.Load(), rt.failures.Load(), rt.retries.Load()
}

// CircuitState returns the breaker state.
func (rt *ResilientTransport) CircuitState() CircuitState {
	return rt.breaker.State()
}
