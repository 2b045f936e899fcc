package directory_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/courier/svc/directory"
	"github.com/dmitrymomot/courier/svc/notify"
)

const tenantID = "5f0c6a9e-2b1d-4a3c-9e7f-1a2b3c4d5e6f"

const directoryYAML = `
tenants:
  - id: ` + tenantID + `
    users:
      - id: alice
        name: Alice
        email: " alice@example.com "
        timezone: Europe/Berlin
        roles: [manager]
        customer_ids: [c-1]
        subscriptions: [task.assigned]
        access:
          project_id: [p-1, "42"]
      - id: bob
        name: Bob
        email: bob@example.com
        manager_id: alice
        addresses:
          sms: "+4915100000000"
`

func loadStatic(t *testing.T) *directory.Static {
	t.Helper()
	s, err := directory.ParseStatic(strings.NewReader(directoryYAML))
	require.NoError(t, err)
	return s
}

func TestStatic_Users(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := loadStatic(t)
	tenant := uuid.MustParse(tenantID)

	u, err := s.GetUser(ctx, tenant, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Name)
	assert.Equal(t, tenant, u.TenantID)
	assert.Equal(t, []string{"manager"}, u.Roles)

	_, err = s.GetUser(ctx, tenant, "zoe")
	assert.ErrorIs(t, err, notify.ErrUserNotFound)
	_, err = s.GetUser(ctx, uuid.New(), "alice")
	assert.ErrorIs(t, err, notify.ErrUserNotFound)

	users, err := s.ListUsers(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].ID)
	assert.Equal(t, "bob", users[1].ID)

	none, err := s.ListUsers(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStatic_ChannelAddress(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := loadStatic(t)
	tenant := uuid.MustParse(tenantID)

	tests := []struct {
		name    string
		userID  string
		channel string
		want    string
		wantErr error
	}{
		{name: "email is trimmed", userID: "alice", channel: notify.ChannelEmail, want: "alice@example.com"},
		{name: "extra channel", userID: "bob", channel: "sms", want: "+4915100000000"},
		{name: "no address", userID: "alice", channel: "sms", want: ""},
		{name: "unknown user", userID: "zoe", channel: notify.ChannelEmail, wantErr: notify.ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := s.GetUserChannelAddress(ctx, tenant, tt.userID, tt.channel)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatic_SubscribersAndConditions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := loadStatic(t)
	tenant := uuid.MustParse(tenantID)

	subs, err := s.GetSubscribers(ctx, tenant, "task.assigned")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, subs)

	tests := []struct {
		name   string
		userID string
		cond   notify.SubscriptionConditions
		want   bool
	}{
		{name: "role", userID: "alice", cond: notify.SubscriptionConditions{Roles: []string{"manager"}}, want: true},
		{name: "missing role", userID: "bob", cond: notify.SubscriptionConditions{Roles: []string{"manager"}}, want: false},
		{name: "has manager", userID: "bob", cond: notify.SubscriptionConditions{HasManager: true}, want: true},
		{name: "customer assignment", userID: "bob", cond: notify.SubscriptionConditions{HasCustomerAssignment: true}, want: false},
		{name: "no conditions", userID: "bob", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ok, err := s.UserMatchesConditions(ctx, tenant, tt.userID, tt.cond)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestStatic_DataAccessChecker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := loadStatic(t)
	tenant := uuid.MustParse(tenantID)

	check, err := s.CreateDataAccessChecker(ctx, tenant, "alice")
	require.NoError(t, err)

	ok, err := check(ctx, "project_id", "p-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = check(ctx, "project_id", 42)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = check(ctx, "project_id", "p-2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = check(ctx, "customer_id", "p-1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.CreateDataAccessChecker(ctx, tenant, "zoe")
	assert.ErrorIs(t, err, notify.ErrUserNotFound)
}

func TestParseStatic_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{name: "unknown field", doc: "tenants:\n  - id: " + tenantID + "\n    members: []\n"},
		{name: "missing tenant id", doc: "tenants:\n  - users:\n      - id: alice\n"},
		{name: "missing user id", doc: "tenants:\n  - id: " + tenantID + "\n    users:\n      - name: Alice\n"},
		{name: "invalid email", doc: "tenants:\n  - id: " + tenantID + "\n    users:\n      - id: alice\n        email: alice-at-example\n"},
		{name: "duplicate user", doc: "tenants:\n  - id: " + tenantID + "\n    users:\n      - id: alice\n      - id: alice\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := directory.ParseStatic(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, directory.ErrInvalidDirectory)
		})
	}

	empty, err := directory.ParseStatic(strings.NewReader(""))
	require.NoError(t, err)
	users, err := empty.ListUsers(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, users)
}
