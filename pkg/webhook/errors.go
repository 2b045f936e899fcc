package webhook

import "errors"

var (
	ErrDeliveryFailed = errors.New("webhook delivery failed")
	ErrPermanent      = errors.New("permanent webhook failure")
	ErrCircuitOpen    = errors.New("webhook circuit breaker is open")
	ErrInvalidURL     = errors.New("invalid webhook URL")
	ErrInvalidPayload = errors.New("invalid webhook payload")
	ErrMissingSecret  = errors.New("webhook secret is required")
	ErrInvalidHeaders = errors.New("missing or malformed webhook signature headers")
	ErrSignature      = errors.New("webhook signature mismatch")
	ErrStaleSignature = errors.New("webhook signature timestamp outside tolerance")
)
