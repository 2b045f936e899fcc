package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Sender posts signed JSON payloads with retries and an optional per-host
// circuit breaker.
type Sender struct {
	client     *http.Client
	timeout    time.Duration
	maxRetries int
	backoff    BackoffStrategy
	secret     string
	userAgent  string

	breaker  func() *CircuitBreaker
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

func NewSender(opts ...Option) *Sender {
	s := &Sender{
		client: &http.Client{Transport: &http.Transport{
			MaxIdleConns:        50,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     90 * time.Second,
		}},
		timeout:    10 * time.Second,
		maxRetries: 2,
		backoff:    DefaultBackoff(),
		userAgent:  "courier-webhook/1.0",
		breakers:   make(map[string]*CircuitBreaker),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result describes the final attempt of a Send call.
type Result struct {
	StatusCode int
	Attempts   int
	Body       []byte
}

// Send marshals data and POSTs it to target. 4xx answers other than 408,
// 425 and 429 are not retried and wrap ErrPermanent.
func (s *Sender) Send(ctx context.Context, target string, data any) (Result, error) {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidURL, target)
	}

	payload, err := json.Marshal(data)
	if err != nil || len(payload) == 0 {
		return Result{}, errors.Join(ErrInvalidPayload, err)
	}

	cb := s.circuit(u.Host)
	if cb != nil && !cb.Allow() {
		return Result{}, ErrCircuitOpen
	}

	var (
		res     Result
		lastErr error
	)
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(s.backoff.NextInterval(attempt)):
			}
		}

		res, lastErr = s.attempt(ctx, target, payload)
		res.Attempts = attempt + 1

		if cb != nil {
			if lastErr == nil {
				cb.RecordSuccess()
			} else {
				cb.RecordFailure()
			}
		}
		if lastErr == nil {
			return res, nil
		}
		if permanent(res.StatusCode) {
			return res, errors.Join(ErrPermanent, lastErr)
		}
	}

	return res, errors.Join(ErrDeliveryFailed, lastErr)
}

func (s *Sender) attempt(ctx context.Context, target string, payload []byte) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	if s.secret != "" {
		sig, err := SignPayload(s.secret, payload, time.Now())
		if err != nil {
			return Result{}, err
		}
		sig.Apply(req.Header)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	res := Result{StatusCode: resp.StatusCode, Body: body}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := strings.ReplaceAll(string(body), "\n", " ")
		if len(snippet) > 200 {
			snippet = snippet[:200] + "..."
		}
		return res, fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, snippet)
	}
	return res, nil
}

func (s *Sender) circuit(host string) *CircuitBreaker {
	if s.breaker == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.breakers[host]
	if !ok {
		cb = s.breaker()
		s.breakers[host] = cb
	}
	return cb
}

func permanent(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return true
}
