package token

import (
	"crypto/hmac"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Expirer is implemented by payloads that carry an expiry.
type Expirer interface {
	ExpiresAt() time.Time
}

// Parse verifies the signature with any of the secrets (newest first, to
// allow key rotation), decodes the payload and, if it implements Expirer,
// rejects it once now is past the expiry.
func Parse[T any](tok string, now time.Time, secrets ...string) (T, error) {
	var payload T

	encData, encSig, ok := strings.Cut(tok, ".")
	if !ok || encData == "" || encSig == "" || strings.Contains(encSig, ".") {
		return payload, ErrInvalidToken
	}
	data, err := base64.RawURLEncoding.DecodeString(encData)
	if err != nil {
		return payload, errors.Join(ErrInvalidToken, err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(encSig)
	if err != nil {
		return payload, errors.Join(ErrInvalidToken, err)
	}

	if !verify(data, sig, secrets) {
		return payload, ErrSignatureInvalid
	}

	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, errors.Join(ErrInvalidToken, err)
	}

	if e, ok := any(payload).(Expirer); ok {
		if exp := e.ExpiresAt(); !exp.IsZero() && !now.Before(exp) {
			return payload, ErrExpired
		}
	}
	return payload, nil
}

func verify(data, sig []byte, secrets []string) bool {
	for _, s := range secrets {
		if s != "" && hmac.Equal(sig, sign(data, s)) {
			return true
		}
	}
	return false
}
