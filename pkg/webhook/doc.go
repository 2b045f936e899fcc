// Package webhook signs, verifies and delivers JSON webhooks.
//
// Outbound delivery retries transient failures with backoff, gives up
// immediately on permanent 4xx answers and can trip a per-host circuit
// breaker:
//
//	sender := webhook.NewSender(webhook.WithSecret(secret), webhook.WithCircuitBreaker(5, 1, time.Minute))
//	res, err := sender.Send(ctx, "https://example.com/hooks", payload)
//
// Inbound requests are authenticated with FromHeaders and VerifySignature,
// which use the same "<unix-ts>.<body>" HMAC-SHA256 scheme.
package webhook
