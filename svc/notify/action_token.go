package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/courier/pkg/token"
)

// DefaultTokenTTL is how long an action link stays valid.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Claims is the verified content of an action token. Exactly one of
// NotificationID and BatchID is set.
type Claims struct {
	NotificationID uuid.UUID
	BatchID        uuid.UUID
	ActionType     string
	ExpiresAt      time.Time
	TokenID        string
}

// IsBatch reports whether the token targets a batch.
func (c Claims) IsBatch() bool {
	return c.BatchID != uuid.Nil
}

type tokenPayload struct {
	NotificationID string `json:"nid,omitempty"`
	BatchID        string `json:"bid,omitempty"`
	Action         string `json:"act"`
	Expiry         int64  `json:"exp"`
	ID             string `json:"jti"`
}

func (p tokenPayload) ExpiresAt() time.Time {
	return time.Unix(p.Expiry, 0)
}

// RevocationStore remembers token ids revoked before their expiry.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// ActionTokenService mints and verifies signed action tokens.
type ActionTokenService struct {
	secrets     []string
	ttl         time.Duration
	now         func() time.Time
	revocations RevocationStore
}

// TokenOption configures an ActionTokenService.
type TokenOption func(*ActionTokenService)

// WithTokenTTL overrides DefaultTokenTTL.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(s *ActionTokenService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithTokenClock overrides time.Now.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(s *ActionTokenService) {
		s.now = now
	}
}

// WithPreviousSecrets accepts tokens signed with rotated-out secrets.
func WithPreviousSecrets(secrets ...string) TokenOption {
	return func(s *ActionTokenService) {
		for _, sec := range secrets {
			if sec != "" {
				s.secrets = append(s.secrets, sec)
			}
		}
	}
}

// WithRevocationStore enables Revoke and revocation checks in Verify.
func WithRevocationStore(rs RevocationStore) TokenOption {
	return func(s *ActionTokenService) {
		s.revocations = rs
	}
}

// NewActionTokenService signs new tokens with secret.
func NewActionTokenService(secret string, opts ...TokenOption) (*ActionTokenService, error) {
	if secret == "" {
		return nil, token.ErrEmptySecret
	}
	s := &ActionTokenService{
		secrets: []string{secret},
		ttl:     DefaultTokenTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueForNotification mints a token for actionType on a notification.
// A zero ttl uses the service default.
func (s *ActionTokenService) IssueForNotification(notificationID uuid.UUID, actionType string, ttl time.Duration) (string, error) {
	return s.issue(tokenPayload{NotificationID: notificationID.String(), Action: actionType}, ttl)
}

// IssueForBatch mints a token for actionType on every member of a batch.
func (s *ActionTokenService) IssueForBatch(batchID uuid.UUID, actionType string, ttl time.Duration) (string, error) {
	return s.issue(tokenPayload{BatchID: batchID.String(), Action: actionType}, ttl)
}

func (s *ActionTokenService) issue(p tokenPayload, ttl time.Duration) (string, error) {
	if p.Action == "" {
		return "", fmt.Errorf("%w: action type is required", ErrValidation)
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	p.Expiry = s.now().Add(ttl).Unix()
	p.ID = uuid.NewString()
	return token.Generate(p, s.secrets[0])
}

// Verify checks signature, expiry and revocation, in that order.
func (s *ActionTokenService) Verify(ctx context.Context, tok string) (Claims, error) {
	p, err := token.Parse[tokenPayload](tok, s.now(), s.secrets...)
	switch {
	case errors.Is(err, token.ErrExpired):
		return Claims{}, ErrTokenExpired
	case err != nil:
		return Claims{}, ErrInvalidSignature
	}

	c := Claims{ActionType: p.Action, ExpiresAt: p.ExpiresAt(), TokenID: p.ID}
	switch {
	case p.NotificationID != "" && p.BatchID == "":
		c.NotificationID, err = uuid.Parse(p.NotificationID)
	case p.BatchID != "" && p.NotificationID == "":
		c.BatchID, err = uuid.Parse(p.BatchID)
	default:
		err = errors.New("token must target a notification or a batch")
	}
	if err != nil || c.ActionType == "" {
		return Claims{}, ErrInvalidSignature
	}

	if s.revocations != nil && c.TokenID != "" {
		revoked, err := s.revocations.IsRevoked(ctx, c.TokenID)
		if err != nil {
			return Claims{}, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return Claims{}, ErrTokenRevoked
		}
	}
	return c, nil
}

// Revoke invalidates tok until its natural expiry. The token must verify.
func (s *ActionTokenService) Revoke(ctx context.Context, tok string) error {
	if s.revocations == nil {
		return errors.New("revocation store not configured")
	}
	c, err := s.Verify(ctx, tok)
	if err != nil {
		return err
	}
	return s.revocations.Revoke(ctx, c.TokenID, c.ExpiresAt)
}
