// Package dispatch executes API requests through sticky proxy endpoints with
// bounded retries and kind-dependent backoff. All failures are returned as
// typed results; a failed request never terminates the run.
package dispatch

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/aluiziolira/go-scrape-tickets/config"
	"github.com/aluiziolira/go-scrape-tickets/proxy"
)

// FetchRequest identifies one page or listing to retrieve. Immutable once
// issued.
type FetchRequest struct {
	Method  string
	URL     string
	Query   url.Values
	Header  map[string]string
	Timeout time.Duration // zero means the configured default
}

// FetchResult carries either a successful payload or a typed failure.
// Exactly one of Body/Err is meaningful.
type FetchResult struct {
	Body       []byte
	StatusCode int
	Attempts   int
	Proxy      string
	Duration   time.Duration
	Err        error
}

// Ok reports whether the request ultimately succeeded.
func (r FetchResult) Ok() bool {
	return r.Err == nil
}

// Attempt describes a single attempt for observability. Backoff is the delay
// scheduled before the next attempt, zero when none follows.
type Attempt struct {
	URL     string
	Proxy   string
	Number  int
	Status  int
	Err     error
	Backoff time.Duration
}

// Observer receives every attempt the dispatcher makes. Implementations must
// be safe for concurrent use.
type Observer interface {
	ObserveAttempt(Attempt)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Attempt)

// ObserveAttempt calls f(a).
func (f ObserverFunc) ObserveAttempt(a Attempt) {
	f(a)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithObserver installs an attempt observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

// WithMetrics installs Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// Dispatcher issues requests through the proxy pool. One HTTP client is built
// per endpoint so a sticky session always travels the same proxy with the
// same connection pool.
type Dispatcher struct {
	cfg      *config.Config
	pool     *proxy.Pool
	clients  map[string]*resty.Client
	observer Observer
	metrics  *Metrics
}

// NewDispatcher builds a dispatcher over an immutable proxy pool.
func NewDispatcher(cfg *config.Config, pool *proxy.Pool, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:     cfg,
		pool:    pool,
		clients: make(map[string]*resty.Client, pool.Size()),
	}
	for _, opt := range opts {
		opt(d)
	}

	for _, endpoint := range pool.Endpoints() {
		client := resty.New()
		client.SetProxy(endpoint.URL().String())
		client.SetHeader("User-Agent", cfg.UserAgent)
		if cfg.InsecureTLS {
			client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
		}
		d.clients[endpoint.Addr()] = client
	}
	return d
}

// WithTransport swaps the HTTP transport of every client. Used by tests to
// inject stubbed round trippers.
func (d *Dispatcher) WithTransport(rt http.RoundTripper) {
	for _, client := range d.clients {
		client.GetClient().Transport = rt
	}
}

// attemptState is the retry loop state. The loop is a bounded machine:
// pending -> attempting -> {success, retryScheduled, failed}, with
// retryScheduled returning to attempting once the backoff elapses.
type attemptState int

const (
	statePending attemptState = iota
	stateAttempting
	stateRetryScheduled
	stateSuccess
	stateFailed
)

// Dispatch executes req through the endpoint bound to sessionID. Transient
// failures and rate limits are retried up to the configured cap; client
// errors fail immediately. The returned result is always populated; failures
// surface as typed errors, never panics.
func (d *Dispatcher) Dispatch(ctx context.Context, req FetchRequest, sessionID string) FetchResult {
	start := time.Now()

	endpoint, err := d.pool.Acquire(sessionID)
	if err != nil {
		exhausted := ErrProxyExhausted{Err: err}
		d.metrics.IncError(KindLabel(exhausted))
		d.observe(Attempt{URL: req.URL, Err: exhausted})
		return FetchResult{Err: exhausted, Duration: time.Since(start)}
	}
	client := d.clients[endpoint.Addr()]

	maxAttempts := d.cfg.MaxRetries + 1
	state := statePending

	var (
		attempt int
		body    []byte
		status  int
		lastErr error
		backoff time.Duration
	)

	for state != stateSuccess && state != stateFailed {
		switch state {
		case statePending:
			state = stateAttempting

		case stateAttempting:
			attempt++
			attemptStart := time.Now()
			body, status, lastErr = d.attempt(ctx, client, req)
			d.metrics.IncAttempt(endpoint.Addr())
			d.metrics.ObserveDuration(time.Since(attemptStart))

			lastErr = classify(lastErr, status)
			backoff = 0
			switch {
			case lastErr == nil:
				state = stateSuccess
			case !retryable(lastErr) || attempt >= maxAttempts:
				state = stateFailed
			default:
				backoff = d.backoffFor(lastErr, attempt)
				state = stateRetryScheduled
			}
			d.observe(Attempt{
				URL:     req.URL,
				Proxy:   endpoint.Addr(),
				Number:  attempt,
				Status:  status,
				Err:     lastErr,
				Backoff: backoff,
			})

		case stateRetryScheduled:
			d.metrics.IncRetries()
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				lastErr = classify(ctx.Err(), 0)
				state = stateFailed
			case <-timer.C:
				state = stateAttempting
			}
		}
	}

	result := FetchResult{
		StatusCode: status,
		Attempts:   attempt,
		Proxy:      endpoint.Addr(),
		Duration:   time.Since(start),
	}
	if state == stateFailed {
		result.Err = lastErr
		d.metrics.IncError(KindLabel(lastErr))
		return result
	}
	result.Body = body
	return result
}

func (d *Dispatcher) attempt(ctx context.Context, client *resty.Client, req FetchRequest) ([]byte, int, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = d.cfg.Timeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r := client.R().SetContext(attemptCtx)
	if len(req.Query) > 0 {
		r.SetQueryParamsFromValues(req.Query)
	}
	for key, value := range req.Header {
		r.SetHeader(key, value)
	}

	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		return nil, 0, err
	}
	return resp.Body(), resp.StatusCode(), nil
}

// backoffFor computes the delay before the next attempt. Rate-limit waits use
// a longer schedule than transient failures at every attempt index.
func (d *Dispatcher) backoffFor(err error, attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := d.cfg.RetryBackoff
	max := d.cfg.RetryBackoffMax
	if IsRateLimited(err) {
		base = d.cfg.RateLimitBackoff
		max = d.cfg.RateLimitBackoffMax
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max > 0 && delay > max {
		delay = max
	}
	return delay
}

func (d *Dispatcher) observe(a Attempt) {
	if d.observer == nil {
		return
	}
	d.observer.ObserveAttempt(a)
}
