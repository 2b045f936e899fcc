package notify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage_EnqueueGroupsByWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStorage()
	tenant := uuid.New()
	ten := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	enqueue := func(userID, channel string, at time.Time) *Batch {
		t.Helper()
		b, err := s.EnqueueNotification(ctx, &Notification{TenantID: tenant, UserID: userID, TypeID: "t", Channel: channel}, at)
		require.NoError(t, err)
		return b
	}

	a := enqueue("alice", ChannelEmail, ten)
	assert.Equal(t, a.ID, enqueue("alice", ChannelEmail, ten).ID)
	assert.NotEqual(t, a.ID, enqueue("alice", ChannelEmail, ten.Add(time.Hour)).ID)
	assert.NotEqual(t, a.ID, enqueue("bob", ChannelEmail, ten).ID)
	assert.NotEqual(t, a.ID, enqueue("alice", "sms", ten).ID)

	members, err := s.ListBatchMembers(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	for _, n := range members {
		assert.Equal(t, StatusQueuedForBatch, n.Status)
	}

	due, err := s.ListDueBatches(ctx, ten, 0)
	require.NoError(t, err)
	assert.Len(t, due, 3)
}

func TestMemoryStorage_EnqueueRejectsDuplicateEvent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStorage()
	n := Notification{TenantID: uuid.New(), UserID: "alice", TypeID: "t", Channel: ChannelEmail, EventID: "evt-1"}

	first := n
	_, err := s.EnqueueNotification(ctx, &first, time.Now())
	require.NoError(t, err)
	second := n
	_, err = s.EnqueueNotification(ctx, &second, time.Now())
	assert.ErrorIs(t, err, ErrDuplicateEvent)

	third := n
	assert.ErrorIs(t, s.CreateNotification(ctx, &third), ErrDuplicateEvent)
}

func TestMemoryStorage_NotificationTransitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStorage()
	n := &Notification{TenantID: uuid.New(), UserID: "alice", Status: StatusPending, Channel: ChannelEmail}
	require.NoError(t, s.CreateNotification(ctx, n))

	_, err := s.ClaimNotification(ctx, n.ID)
	require.NoError(t, err)
	_, err = s.ClaimNotification(ctx, n.ID)
	assert.ErrorIs(t, err, ErrDeliveryInProgress)

	require.NoError(t, s.FinishNotification(ctx, n.ID, DeliveryOutcome{Success: true, ProviderMessageID: "m-1", At: time.Now()}))
	assert.ErrorIs(t, s.TransitionNotification(ctx, n.ID, EventClaim), ErrInvalidTransition)
	require.NoError(t, s.TransitionNotification(ctx, n.ID, EventConfirm))
	require.NoError(t, s.TransitionNotification(ctx, n.ID, EventBounce))
	assert.ErrorIs(t, s.TransitionNotification(ctx, n.ID, EventConfirm), ErrInvalidTransition)

	_, err = s.ClaimNotification(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotificationNotFound)
}

func TestMemoryStorage_ListNotifications(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStorage()
	tenant := uuid.New()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i := range 5 {
		n := &Notification{
			TenantID:  tenant,
			UserID:    "alice",
			TypeID:    []string{"a", "b"}[i%2],
			Status:    StatusPending,
			CreatedAt: start.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.CreateNotification(ctx, n))
		if i == 0 {
			require.NoError(t, s.MarkNotificationRead(ctx, n.ID, start))
		}
	}
	require.NoError(t, s.CreateNotification(ctx, &Notification{TenantID: tenant, UserID: "bob"}))

	all, err := s.ListNotifications(ctx, tenant, "alice", ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.True(t, all[0].CreatedAt.After(all[4].CreatedAt))

	page, err := s.ListNotifications(ctx, tenant, "alice", ListOptions{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	unread, err := s.ListNotifications(ctx, tenant, "alice", ListOptions{OnlyUnread: true})
	require.NoError(t, err)
	assert.Len(t, unread, 4)

	byType, err := s.ListNotifications(ctx, tenant, "alice", ListOptions{TypeID: "a"})
	require.NoError(t, err)
	assert.Len(t, byType, 3)

	since := start.Add(3 * time.Minute)
	recent, err := s.ListNotifications(ctx, tenant, "alice", ListOptions{Since: &since})
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestMemoryStorage_ClaimAction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStorage()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	claim := ActionClaim{TenantID: uuid.New(), NotificationID: uuid.New(), ActionType: "approve", StaleAfter: time.Minute, At: now}

	a, claimed, err := s.ClaimAction(ctx, claim)
	require.NoError(t, err)
	assert.True(t, claimed)

	_, _, err = s.ClaimAction(ctx, claim)
	assert.ErrorIs(t, err, ErrActionInProgress)

	require.NoError(t, s.FinishAction(ctx, a.ID, ActionSucceeded, map[string]any{"ok": true}, "", now))
	got, claimed, err := s.ClaimAction(ctx, claim)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, map[string]any{"ok": true}, got.Result)

	claim.ReclaimSucceeded = true
	got, claimed, err = s.ClaimAction(ctx, claim)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, ActionPending, got.Status)

	claim.At = now.Add(time.Minute)
	got, claimed, err = s.ClaimAction(ctx, claim)
	require.NoError(t, err)
	assert.True(t, claimed, "stale pending rows are reclaimed")
	assert.Equal(t, 3, got.Attempts)
}

func TestMemoryStorage_RecordFeedbackNormalizesAddress(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStorage()
	tenant := uuid.New()
	fb := AddressFeedback{TenantID: tenant, UserID: "alice", Channel: ChannelEmail, Kind: FeedbackBounce, BounceThreshold: 2}

	fb.Address = " Alice@Example.com "
	_, err := s.RecordFeedback(ctx, fb)
	require.NoError(t, err)
	fb.Address = "alice@example.com"
	rec, err := s.RecordFeedback(ctx, fb)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.BounceCount)
	assert.True(t, rec.IsDisabled)

	got, err := s.GetAddress(ctx, tenant, "alice", ChannelEmail, "ALICE@example.com")
	require.NoError(t, err)
	assert.True(t, got.IsDisabled)

	_, err = s.GetAddress(ctx, tenant, "alice", ChannelEmail, "other@example.com")
	assert.ErrorIs(t, err, ErrAddressNotFound)
}
