package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) pendingNotification(t *testing.T, userID string) *Notification {
	t.Helper()
	n := &Notification{
		TenantID: e.tenant,
		UserID:   userID,
		TypeID:   typeTaskAssigned,
		Payload:  map[string]any{"task_title": "Ship it"},
		Status:   StatusPending,
		Channel:  ChannelEmail,
	}
	require.NoError(t, e.store.CreateNotification(context.Background(), n))
	return n
}

func TestDelivery_ConcurrentDeliverSendsOnce(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, alice)
	n := e.pendingNotification(t, alice.ID)

	const workers = 16
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		inProgress int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.delivery.Deliver(context.Background(), n.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrDeliveryInProgress):
				inProgress++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, inProgress)
	assert.Equal(t, 1, e.provider.count())

	got, err := e.store.GetNotification(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, got.Status)
	assert.Equal(t, 1, got.Attempts)
}

func TestDelivery_ProviderFailureIsRecordedNotRetried(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t, alice)
	n := e.pendingNotification(t, alice.ID)

	e.provider.fail(errors.New("smtp 451"))
	res, err := e.delivery.Deliver(ctx, n.ID)
	require.ErrorIs(t, err, ErrProvider)
	assert.False(t, res.Success)
	assert.Zero(t, e.provider.count())

	got, err := e.store.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.LastError, "smtp 451")

	t.Run("caller may retry a failed delivery", func(t *testing.T) {
		e.provider.fail(nil)
		res, err := e.delivery.Deliver(ctx, n.ID)
		require.NoError(t, err)
		assert.True(t, res.Success)

		got, err := e.store.GetNotification(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusSent, got.Status)
		assert.Equal(t, 2, got.Attempts)
		assert.Empty(t, got.LastError)
	})
}

func TestDelivery_BouncesSuppressAddress(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t, alice)
	e.sendTask(t, alice.ID, "evt-1")
	require.Equal(t, 1, e.provider.count())

	for i := range 4 {
		res, err := e.delivery.RecordBounce(ctx, FeedbackEvent{MessageID: "msg-1"})
		require.NoError(t, err)
		require.NotNil(t, res.Address)
		assert.Equal(t, i+1, res.Address.BounceCount)
		assert.Equal(t, i+1 >= DefaultBounceThreshold, res.Address.IsDisabled)
	}

	ns := e.notifications(t, alice.ID)
	require.Len(t, ns, 1)
	assert.Equal(t, StatusBounced, ns[0].Status)

	n := e.pendingNotification(t, alice.ID)
	_, err := e.delivery.Deliver(ctx, n.ID)
	require.ErrorIs(t, err, ErrAddressSuppressed)
	assert.Equal(t, 1, e.provider.count())

	got, err := e.store.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
}

func TestDelivery_ComplaintDisablesButKeepsStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t, alice)
	e.sendTask(t, alice.ID, "evt-1")

	res, err := e.delivery.RecordComplaint(ctx, FeedbackEvent{MessageID: "msg-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Notifications)
	assert.True(t, res.Address.IsDisabled)
	assert.Equal(t, 1, res.Address.ComplaintCount)

	ns := e.notifications(t, alice.ID)
	assert.Equal(t, StatusSent, ns[0].Status)
}

func TestDelivery_RecordDelivered(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t, alice)
	e.sendTask(t, alice.ID, "evt-1")

	res, err := e.delivery.RecordDelivered(ctx, FeedbackEvent{MessageID: "msg-1"})
	require.NoError(t, err)
	assert.True(t, res.Address.IsVerified)
	assert.False(t, res.Address.IsDisabled)
	assert.Equal(t, StatusDelivered, e.notifications(t, alice.ID)[0].Status)

	t.Run("unknown message id", func(t *testing.T) {
		_, err := e.delivery.RecordDelivered(ctx, FeedbackEvent{MessageID: "msg-404"})
		assert.ErrorIs(t, err, ErrNotificationNotFound)
	})

	t.Run("missing message id", func(t *testing.T) {
		_, err := e.delivery.RecordBounce(ctx, FeedbackEvent{})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestDelivery_MarkRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t, alice, bob)
	e.sendTask(t, alice.ID, "evt-1")
	id := e.notifications(t, alice.ID)[0].ID

	_, err := e.delivery.MarkRead(ctx, e.tenant, bob.ID, id)
	assert.ErrorIs(t, err, ErrNotificationNotFound)

	n, err := e.delivery.MarkRead(ctx, e.tenant, alice.ID, id)
	require.NoError(t, err)
	assert.True(t, n.Read)
	require.NotNil(t, n.ReadAt)
	assert.Equal(t, e.clock.Now(), *n.ReadAt)

	unread, err := e.store.ListNotifications(ctx, e.tenant, alice.ID, ListOptions{OnlyUnread: true})
	require.NoError(t, err)
	assert.Empty(t, unread)

	t.Run("pending notification cannot be read", func(t *testing.T) {
		p := e.pendingNotification(t, alice.ID)
		_, err := e.delivery.MarkRead(ctx, e.tenant, alice.ID, p.ID)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestDelivery_EmailHeaders(t *testing.T) {
	t.Parallel()

	sender := &fakeEmailSender{}
	e := newTestEnv(t, alice)
	ch := NewEmailChannel(sender, ChannelDeps{
		Resolver:  e.resolver,
		Addresses: e.store,
		Renderer:  e.renderer,
	})
	n := &Notification{ID: uuid.New(), TenantID: e.tenant, UserID: alice.ID, TypeID: typeTaskAssigned, Channel: ChannelEmail}

	res := ch.Deliver(context.Background(), DeliveryRequest{
		User:         &alice,
		Notification: n,
		TemplateID:   typeTaskAssigned,
		Links:        map[string]string{ActionUnsubscribe: "https://app.test/actions/unsubscribe?token=abc"},
	})
	require.NoError(t, res.Err)
	assert.Equal(t, "email-1", res.ProviderMessageID)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "<https://app.test/actions/unsubscribe?token=abc>", sender.sent[0].Headers["List-Unsubscribe"])
	assert.Equal(t, "List-Unsubscribe=One-Click", sender.sent[0].Headers["List-Unsubscribe-Post"])
	assert.Equal(t, "<p>task.assigned</p>", sender.sent[0].HTML)
}

func TestRenderData_ReservedKeys(t *testing.T) {
	t.Parallel()

	n := &Notification{
		ID:     uuid.New(),
		TypeID: typeTaskAssigned,
		Payload: map[string]any{
			"title": "Ship it",
			"user":  "payload-user",
			"links": "payload-links",
		},
	}
	links := map[string]string{ActionUnsubscribe: "https://courier.test/actions/unsubscribe?token=t"}

	data := RenderData(DeliveryRequest{User: &User{ID: "alice", Name: "Alice"}, Notification: n, Links: links})
	assert.Equal(t, "Ship it", data["title"])
	assert.Equal(t, n.ID.String(), data[RenderKeyNotificationID])
	assert.Equal(t, links, data[RenderKeyLinks])
	assert.Equal(t, "alice", data[RenderKeyUser].(map[string]any)["id"])

	payload := data[RenderKeyPayload].(map[string]any)
	assert.Equal(t, "payload-user", payload["user"])
	assert.Equal(t, "payload-links", payload["links"])

	t.Run("no user leaves no payload user behind", func(t *testing.T) {
		t.Parallel()
		data := RenderData(DeliveryRequest{Notification: n})
		assert.NotContains(t, data, RenderKeyUser)
		assert.Equal(t, "payload-user", data[RenderKeyPayload].(map[string]any)["user"])
	})
}
