package pgstore_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/courier/pkg/pg"
	"github.com/dmitrymomot/courier/svc/notify"
	"github.com/dmitrymomot/courier/svc/notify/pgstore"
)

var (
	poolOnce sync.Once
	testPool *pgxpool.Pool
	poolErr  error
)

// newStore connects to TEST_PG_CONN_URL and applies migrations once per run.
// Each test uses its own tenant id, so tests share the schema safely.
func newStore(t *testing.T) *pgstore.Store {
	t.Helper()

	url := os.Getenv("TEST_PG_CONN_URL")
	if url == "" {
		t.Skip("TEST_PG_CONN_URL is not set")
	}

	poolOnce.Do(func() {
		ctx := context.Background()
		cfg := pg.Config{
			ConnectionString: url,
			MaxOpenConns:     10,
			RetryAttempts:    1,
			RetryInterval:    time.Second,
			MigrationsTable:  "courier_test_migrations",
		}
		testPool, poolErr = pg.Connect(ctx, cfg)
		if poolErr != nil {
			return
		}
		poolErr = pg.Migrate(ctx, testPool, pgstore.Migrations, "migrations", cfg, slog.Default())
	})
	require.NoError(t, poolErr)
	return pgstore.New(testPool)
}

func TestStore_NotificationLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)
	n := &notify.Notification{
		TenantID: uuid.New(),
		UserID:   "alice",
		TypeID:   "task.assigned",
		EventID:  "evt-1",
		Payload:  map[string]any{"title": "Review"},
		Status:   notify.StatusPending,
		Channel:  notify.ChannelEmail,
	}
	require.NoError(t, s.CreateNotification(ctx, n))

	dup := *n
	dup.ID = uuid.Nil
	assert.ErrorIs(t, s.CreateNotification(ctx, &dup), notify.ErrDuplicateEvent)

	claimed, err := s.ClaimNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notify.StatusSending, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)
	assert.Equal(t, "Review", claimed.Payload["title"])

	_, err = s.ClaimNotification(ctx, n.ID)
	assert.ErrorIs(t, err, notify.ErrDeliveryInProgress)
	_, err = s.ClaimNotification(ctx, uuid.New())
	assert.ErrorIs(t, err, notify.ErrNotificationNotFound)

	msgID := "msg-" + n.ID.String()
	require.NoError(t, s.FinishNotification(ctx, n.ID, notify.DeliveryOutcome{
		Success:           true,
		ProviderMessageID: msgID,
		Address:           "alice@example.com",
		At:                time.Now(),
	}))
	assert.ErrorIs(t, s.FinishNotification(ctx, n.ID, notify.DeliveryOutcome{}), notify.ErrInvalidTransition)

	byMsg, err := s.ListByProviderMessageID(ctx, msgID)
	require.NoError(t, err)
	require.Len(t, byMsg, 1)
	assert.Equal(t, notify.StatusSent, byMsg[0].Status)
	assert.Equal(t, "alice@example.com", byMsg[0].Address)
	assert.NotNil(t, byMsg[0].SentAt)

	require.NoError(t, s.TransitionNotification(ctx, n.ID, notify.EventBounce))
	assert.ErrorIs(t, s.TransitionNotification(ctx, n.ID, notify.EventConfirm), notify.ErrInvalidTransition)

	require.NoError(t, s.MarkNotificationRead(ctx, n.ID, time.Now()))
	require.NoError(t, s.MarkNotificationRead(ctx, n.ID, time.Now()))
	assert.ErrorIs(t, s.MarkNotificationRead(ctx, uuid.New(), time.Now()), notify.ErrNotificationNotFound)

	unread, err := s.ListNotifications(ctx, n.TenantID, "alice", notify.ListOptions{OnlyUnread: true})
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestStore_ConcurrentClaimHasOneWinner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)
	n := &notify.Notification{TenantID: uuid.New(), UserID: "bob", TypeID: "t", Status: notify.StatusPending, Channel: notify.ChannelEmail}
	require.NoError(t, s.CreateNotification(ctx, n))

	var (
		mu   sync.Mutex
		wins int
	)
	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			_, err := s.ClaimNotification(ctx, n.ID)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return nil
			}
			if assert.ErrorIs(t, err, notify.ErrDeliveryInProgress) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 1, wins)
}

func TestStore_BatchFlow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)
	tenant := uuid.New()
	window := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	enqueue := func(eventID string) *notify.Batch {
		t.Helper()
		b, err := s.EnqueueNotification(ctx, &notify.Notification{
			TenantID: tenant, UserID: "carol", TypeID: "t", EventID: eventID, Channel: notify.ChannelEmail,
		}, window)
		require.NoError(t, err)
		return b
	}

	first := enqueue("e1")
	assert.Equal(t, first.ID, enqueue("e2").ID)

	_, err := s.EnqueueNotification(ctx, &notify.Notification{
		TenantID: tenant, UserID: "carol", TypeID: "t", EventID: "e1", Channel: notify.ChannelEmail,
	}, window)
	assert.ErrorIs(t, err, notify.ErrDuplicateEvent)

	claimed, err := s.ClaimBatch(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, notify.BatchSending, claimed.Status)
	_, err = s.ClaimBatch(ctx, first.ID)
	assert.ErrorIs(t, err, notify.ErrDeliveryInProgress)

	late := enqueue("e3")
	assert.NotEqual(t, first.ID, late.ID)

	released, err := s.ReleaseBatch(ctx, first.ID, "smtp down", 3)
	require.NoError(t, err)
	assert.Equal(t, notify.BatchPending, released.Status)
	assert.NotEqual(t, first.ID, enqueue("e4").ID)

	_, err = s.ClaimBatch(ctx, first.ID)
	require.NoError(t, err)
	require.NoError(t, s.CompleteBatch(ctx, first.ID, notify.DeliveryOutcome{
		Success: true, ProviderMessageID: "digest-1", Address: "carol@example.com", At: window,
	}))

	members, err := s.ListBatchMembers(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	for _, m := range members {
		assert.Equal(t, notify.StatusSent, m.Status)
		assert.Equal(t, "digest-1", m.ProviderMessageID)
	}

	_, err = s.ClaimBatch(ctx, late.ID)
	require.NoError(t, err)
	failed, err := s.ReleaseBatch(ctx, late.ID, "rejected", 1)
	require.NoError(t, err)
	assert.Equal(t, notify.BatchFailed, failed.Status)

	lateMembers, err := s.ListBatchMembers(ctx, late.ID)
	require.NoError(t, err)
	require.NotEmpty(t, lateMembers)
	for _, m := range lateMembers {
		assert.Equal(t, notify.StatusFailed, m.Status)
		assert.Equal(t, "rejected", m.LastError)

		_, err := s.ClaimNotification(ctx, m.ID)
		assert.ErrorIs(t, err, notify.ErrBatchedDelivery)
	}
}

func TestStore_ClaimAction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)
	n := &notify.Notification{TenantID: uuid.New(), UserID: "alice", TypeID: "t", Status: notify.StatusPending, Channel: notify.ChannelEmail}
	require.NoError(t, s.CreateNotification(ctx, n))

	now := time.Now().UTC().Truncate(time.Second)
	claim := notify.ActionClaim{
		TenantID:       n.TenantID,
		NotificationID: n.ID,
		ActionType:     "approve",
		StaleAfter:     time.Minute,
		At:             now,
	}

	a, owned, err := s.ClaimAction(ctx, claim)
	require.NoError(t, err)
	require.True(t, owned)

	_, owned, err = s.ClaimAction(ctx, claim)
	assert.ErrorIs(t, err, notify.ErrActionInProgress)
	assert.False(t, owned)

	stale := claim
	stale.At = now.Add(time.Minute)
	a2, owned, err := s.ClaimAction(ctx, stale)
	require.NoError(t, err)
	require.True(t, owned)
	assert.Equal(t, a.ID, a2.ID)
	assert.Equal(t, 2, a2.Attempts)

	require.NoError(t, s.FinishAction(ctx, a.ID, notify.ActionSucceeded, map[string]any{"ok": true}, "", stale.At))

	done, owned, err := s.ClaimAction(ctx, stale)
	require.NoError(t, err)
	assert.False(t, owned)
	assert.Equal(t, true, done.Result["ok"])

	again := stale
	again.ReclaimSucceeded = true
	_, owned, err = s.ClaimAction(ctx, again)
	require.NoError(t, err)
	assert.True(t, owned)
}

func TestStore_PreferencesAndTypes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)
	tenant := uuid.New()
	typeID := "pg.test." + tenant.String()[:8]

	p := &notify.Preference{
		TenantID:      tenant,
		UserID:        "alice",
		TypeID:        typeID,
		Enabled:       true,
		Channels:      []string{notify.ChannelEmail},
		Frequency:     notify.FrequencyBatched,
		BatchInterval: time.Hour,
		QuietHours:    &notify.QuietHours{Start: "22:00", End: "07:00"},
		Timezone:      "Europe/Berlin",
	}
	require.NoError(t, s.UpsertPreference(ctx, p))
	created := p.CreatedAt

	got, err := s.GetPreference(ctx, tenant, "alice", typeID)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, got.BatchInterval)
	assert.Equal(t, &notify.QuietHours{Start: "22:00", End: "07:00"}, got.QuietHours)

	p.Enabled = false
	p.QuietHours = nil
	require.NoError(t, s.UpsertPreference(ctx, p))
	assert.True(t, created.Equal(p.CreatedAt))

	subs, err := s.ListEnabledSubscribers(ctx, tenant, typeID)
	require.NoError(t, err)
	assert.Empty(t, subs)

	_, err = s.GetPreference(ctx, tenant, "bob", typeID)
	assert.ErrorIs(t, err, notify.ErrPreferenceNotFound)

	global := &notify.NotificationType{ID: typeID, Name: "Global", DefaultChannels: []string{notify.ChannelEmail}}
	require.NoError(t, s.UpsertType(ctx, global))
	own := &notify.NotificationType{ID: typeID, TenantID: tenant, Name: "Tenant", Conditions: notify.SubscriptionConditions{Roles: []string{"manager"}}}
	require.NoError(t, s.UpsertType(ctx, own))

	gotType, err := s.GetType(ctx, tenant, typeID)
	require.NoError(t, err)
	assert.Equal(t, "Tenant", gotType.Name)
	assert.Equal(t, []string{"manager"}, gotType.Conditions.Roles)

	other, err := s.GetType(ctx, uuid.New(), typeID)
	require.NoError(t, err)
	assert.Equal(t, "Global", other.Name)
}

func TestStore_RecordFeedback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)
	tenant := uuid.New()

	var g errgroup.Group
	for range 5 {
		g.Go(func() error {
			_, err := s.RecordFeedback(ctx, notify.AddressFeedback{
				TenantID:        tenant,
				UserID:          "alice",
				Channel:         notify.ChannelEmail,
				Address:         " Alice@Example.com ",
				Kind:            notify.FeedbackBounce,
				BounceThreshold: 3,
				At:              time.Now(),
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	a, err := s.GetAddress(ctx, tenant, "alice", notify.ChannelEmail, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 5, a.BounceCount)
	assert.True(t, a.IsDisabled)
	assert.NotNil(t, a.LastBounceAt)
}
