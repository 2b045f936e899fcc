package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderID        = "X-Webhook-ID"
)

// Signature is the set of headers attached to a signed payload.
type Signature struct {
	Value     string
	Timestamp int64
	ID        string
}

// Apply writes the signature headers to h.
func (s Signature) Apply(h http.Header) {
	h.Set(HeaderSignature, s.Value)
	h.Set(HeaderTimestamp, strconv.FormatInt(s.Timestamp, 10))
	h.Set(HeaderID, s.ID)
}

// SignPayload computes hex(HMAC-SHA256(secret, "<unix-ts>.<payload>")).
// Binding the timestamp lets receivers reject replays.
func SignPayload(secret string, payload []byte, now time.Time) (Signature, error) {
	if secret == "" {
		return Signature{}, ErrMissingSecret
	}
	if len(payload) == 0 {
		return Signature{}, ErrInvalidPayload
	}
	ts := now.Unix()
	return Signature{Value: compute(secret, ts, payload), Timestamp: ts, ID: uuid.NewString()}, nil
}

// VerifySignature checks sig against payload. A positive maxAge also bounds
// the timestamp to [now-maxAge, now+1m].
func VerifySignature(secret string, payload []byte, sig Signature, maxAge time.Duration, now time.Time) error {
	if secret == "" {
		return ErrMissingSecret
	}
	if sig.Value == "" || sig.Timestamp == 0 {
		return ErrInvalidHeaders
	}
	if maxAge > 0 {
		age := now.Sub(time.Unix(sig.Timestamp, 0))
		if age > maxAge || age < -time.Minute {
			return ErrStaleSignature
		}
	}
	if !hmac.Equal([]byte(compute(secret, sig.Timestamp, payload)), []byte(sig.Value)) {
		return ErrSignature
	}
	return nil
}

// FromHeaders reads a Signature from request headers.
func FromHeaders(h http.Header) (Signature, error) {
	sig := Signature{Value: h.Get(HeaderSignature), ID: h.Get(HeaderID)}
	raw := h.Get(HeaderTimestamp)
	if sig.Value == "" || raw == "" {
		return Signature{}, ErrInvalidHeaders
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Signature{}, ErrInvalidHeaders
	}
	sig.Timestamp = ts
	return sig, nil
}

func compute(secret string, ts int64, payload []byte) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(strconv.FormatInt(ts, 10)))
	m.Write([]byte{'.'})
	m.Write(payload)
	return hex.EncodeToString(m.Sum(nil))
}
