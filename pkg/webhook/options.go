package webhook

import (
	"net/http"
	"time"
)

// Option configures a Sender.
type Option func(*Sender)

// WithHTTPClient replaces the default client, e.g. for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sender) {
		if c != nil {
			s.client = c
		}
	}
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(s *Sender) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxRetries sets how many times a failed attempt is retried. Zero disables retries.
func WithMaxRetries(n int) Option {
	return func(s *Sender) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

func WithBackoff(b BackoffStrategy) Option {
	return func(s *Sender) {
		if b != nil {
			s.backoff = b
		}
	}
}

// WithSecret signs every request body with secret.
func WithSecret(secret string) Option {
	return func(s *Sender) { s.secret = secret }
}

// WithCircuitBreaker keeps one breaker per destination host with the given settings.
func WithCircuitBreaker(failureThreshold, successThreshold int, cooldown time.Duration) Option {
	return func(s *Sender) {
		s.breaker = func() *CircuitBreaker {
			return NewCircuitBreaker(failureThreshold, successThreshold, cooldown)
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *Sender) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}
