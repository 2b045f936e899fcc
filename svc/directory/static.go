package directory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/courier/pkg/validator"
	"github.com/dmitrymomot/courier/svc/notify"
)

// StaticUser is a directory entry in the YAML file.
type StaticUser struct {
	notify.User `yaml:",inline"`

	// Addresses holds non-email channel addresses keyed by channel id.
	Addresses map[string]string `yaml:"addresses"`
	// Subscriptions lists the notification types the user opted into
	// outside of stored preferences.
	Subscriptions []string `yaml:"subscriptions"`
	// Access lists resource ids the user may see, keyed by access check key.
	Access map[string][]string `yaml:"access"`
}

// StaticTenant groups users of one tenant.
type StaticTenant struct {
	ID    uuid.UUID    `yaml:"id"`
	Users []StaticUser `yaml:"users"`
}

type staticFile struct {
	Tenants []StaticTenant `yaml:"tenants"`
}

type userKey struct {
	tenantID uuid.UUID
	userID   string
}

// Static is an immutable, file-backed notify.UserResolver.
type Static struct {
	users    map[userKey]StaticUser
	byTenant map[uuid.UUID][]string
}

// LoadStatic reads a directory YAML file.
func LoadStatic(path string) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadDirectory, err)
	}
	return ParseStatic(bytes.NewReader(raw))
}

// ParseStatic decodes a directory document. Unknown fields are rejected.
func ParseStatic(r io.Reader) (*Static, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f staticFile
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrInvalidDirectory, err)
	}
	return NewStatic(f.Tenants...)
}

// NewStatic builds a directory from tenants. User ids must be unique within
// a tenant and email addresses, when set, must be valid.
func NewStatic(tenants ...StaticTenant) (*Static, error) {
	s := &Static{
		users:    make(map[userKey]StaticUser),
		byTenant: make(map[uuid.UUID][]string),
	}
	for _, t := range tenants {
		if t.ID == uuid.Nil {
			return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidDirectory)
		}
		for _, u := range t.Users {
			if u.ID == "" {
				return nil, fmt.Errorf("%w: user id is required in tenant %s", ErrInvalidDirectory, t.ID)
			}
			if email := strings.TrimSpace(u.Email); email != "" {
				if err := validator.Apply(validator.ValidEmail("email", email)); err != nil {
					return nil, fmt.Errorf("%w: user %q in tenant %s: %w", ErrInvalidDirectory, u.ID, t.ID, err)
				}
			}
			key := userKey{t.ID, u.ID}
			if _, dup := s.users[key]; dup {
				return nil, fmt.Errorf("%w: duplicate user %q in tenant %s", ErrInvalidDirectory, u.ID, t.ID)
			}
			u.TenantID = t.ID
			s.users[key] = u
			s.byTenant[t.ID] = append(s.byTenant[t.ID], u.ID)
		}
		slices.Sort(s.byTenant[t.ID])
	}
	return s, nil
}

func (s *Static) lookup(tenantID uuid.UUID, userID string) (StaticUser, error) {
	u, ok := s.users[userKey{tenantID, userID}]
	if !ok {
		return StaticUser{}, notify.ErrUserNotFound
	}
	return u, nil
}

func (s *Static) GetUser(_ context.Context, tenantID uuid.UUID, userID string) (*notify.User, error) {
	u, err := s.lookup(tenantID, userID)
	if err != nil {
		return nil, err
	}
	user := u.User
	return &user, nil
}

func (s *Static) ListUsers(_ context.Context, tenantID uuid.UUID) ([]notify.User, error) {
	ids := s.byTenant[tenantID]
	out := make([]notify.User, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.users[userKey{tenantID, id}].User)
	}
	return out, nil
}

func (s *Static) GetUserChannelAddress(_ context.Context, tenantID uuid.UUID, userID, channel string) (string, error) {
	u, err := s.lookup(tenantID, userID)
	if err != nil {
		return "", err
	}
	if channel == notify.ChannelEmail {
		return strings.TrimSpace(u.Email), nil
	}
	return u.Addresses[channel], nil
}

func (s *Static) GetSubscribers(_ context.Context, tenantID uuid.UUID, typeID string) ([]string, error) {
	var out []string
	for _, id := range s.byTenant[tenantID] {
		if slices.Contains(s.users[userKey{tenantID, id}].Subscriptions, typeID) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *Static) UserMatchesConditions(_ context.Context, tenantID uuid.UUID, userID string, cond notify.SubscriptionConditions) (bool, error) {
	u, err := s.lookup(tenantID, userID)
	if err != nil {
		return false, err
	}
	return cond.Matches(u.User), nil
}

// CreateDataAccessChecker allows a value when it is listed under the key in
// the user's access map. Values are compared in their fmt.Sprint form.
func (s *Static) CreateDataAccessChecker(_ context.Context, tenantID uuid.UUID, userID string) (notify.AccessChecker, error) {
	u, err := s.lookup(tenantID, userID)
	if err != nil {
		return nil, err
	}
	access := u.Access
	return func(_ context.Context, key string, value any) (bool, error) {
		return slices.Contains(access[key], fmt.Sprint(value)), nil
	}, nil
}

var _ notify.UserResolver = (*Static)(nil)
