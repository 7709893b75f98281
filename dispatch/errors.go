package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrServer indicates a 5xx response from the target.
type ErrServer struct {
	Err error
}

func (e ErrServer) Error() string {
	return fmt.Errorf("server: %w", e.Err).Error()
}

func (e ErrServer) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the target rate-limited the request (HTTP 429).
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited: %w", e.Err).Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// ErrClient indicates a non-retryable 4xx response.
type ErrClient struct {
	Err error
}

func (e ErrClient) Error() string {
	return fmt.Errorf("client: %w", e.Err).Error()
}

func (e ErrClient) Unwrap() error {
	return e.Err
}

// ErrProxyExhausted indicates the pool could not service the session.
type ErrProxyExhausted struct {
	Err error
}

func (e ErrProxyExhausted) Error() string {
	return fmt.Errorf("proxy_exhausted: %w", e.Err).Error()
}

func (e ErrProxyExhausted) Unwrap() error {
	return e.Err
}

// classify maps a transport error and HTTP status to the typed taxonomy.
// A nil return means the attempt succeeded.
func classify(err error, statusCode int) error {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout{Err: err}
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrTimeout{Err: err}
		}
		return ErrConnection{Err: err}
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrRateLimited{Err: fmt.Errorf("http status %d", statusCode)}
	case statusCode >= http.StatusInternalServerError:
		return ErrServer{Err: fmt.Errorf("http status %d", statusCode)}
	case statusCode >= http.StatusBadRequest:
		return ErrClient{Err: fmt.Errorf("http status %d", statusCode)}
	}
	return nil
}

// IsTransient reports whether the error is expected to resolve on retry.
func IsTransient(err error) bool {
	var timeout ErrTimeout
	var conn ErrConnection
	var server ErrServer
	return errors.As(err, &timeout) || errors.As(err, &conn) || errors.As(err, &server)
}

// IsRateLimited reports whether the error is a rate-limit response.
func IsRateLimited(err error) bool {
	var rateLimited ErrRateLimited
	return errors.As(err, &rateLimited)
}

// retryable reports whether the dispatcher may schedule another attempt.
func retryable(err error) bool {
	return IsTransient(err) || IsRateLimited(err)
}

// KindLabel converts a typed error to a stable label for logs and metrics.
func KindLabel(err error) string {
	if err == nil {
		return "none"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var server ErrServer
	if errors.As(err, &server) {
		return "server"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var client ErrClient
	if errors.As(err, &client) {
		return "client"
	}
	var exhausted ErrProxyExhausted
	if errors.As(err, &exhausted) {
		return "proxy_exhausted"
	}
	return "other"
}
