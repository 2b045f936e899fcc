package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/courier/pkg/async"
	"github.com/dmitrymomot/courier/pkg/logger"
)

type countingHandler struct {
	action     string
	idempotent bool
	failFirst  bool

	mu    sync.Mutex
	calls int
}

func (h *countingHandler) Type() string     { return h.action }
func (h *countingHandler) Idempotent() bool { return h.idempotent }

func (h *countingHandler) Handle(context.Context, ActionInput) (map[string]any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.failFirst && h.calls == 1 {
		return nil, errors.New("downstream unavailable")
	}
	return map[string]any{"calls": h.calls}, nil
}

func (h *countingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func TestActions_TokenUnsubscribeIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t, alice)
	e.sendTask(t, alice.ID, "evt-1")
	tok := e.renderer.last(t).linkToken(t, ActionUnsubscribe)
	id := e.notifications(t, alice.ID)[0].ID

	first, err := e.actions.PerformViaToken(ctx, tok, nil)
	require.NoError(t, err)
	second, err := e.actions.PerformViaToken(ctx, tok, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, first.Success)
	assert.Equal(t, false, first.Data["enabled"])

	rec, err := e.store.GetAction(ctx, id, ActionUnsubscribe)
	require.NoError(t, err)
	assert.Equal(t, ActionSucceeded, rec.Status)
	assert.Equal(t, 1, rec.Attempts)

	assert.Equal(t, SendResult{Skipped: 1}, e.sendTask(t, alice.ID, "evt-2"))
	assert.Equal(t, 1, e.provider.count())
}

func TestActions_NonIdempotentHandlerRunsEachTime(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t, alice)
	h := &countingHandler{action: "ping"}
	require.NoError(t, e.actions.Register(h))
	e.sendTask(t, alice.ID, "evt-1")
	id := e.notifications(t, alice.ID)[0].ID

	req := ActionRequest{TenantID: e.tenant, UserID: alice.ID, NotificationID: id, ActionType: "ping"}
	for range 2 {
		_, err := e.actions.Perform(ctx, req)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, h.count())

	rec, err := e.store.GetAction(ctx, id, "ping")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Attempts)
}

func TestActions_FailedActionCanBeRetried(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t, alice)
	h := &countingHandler{action: "approve", idempotent: true, failFirst: true}
	require.NoError(t, e.actions.Register(h))
	e.sendTask(t, alice.ID, "evt-1")
	id := e.notifications(t, alice.ID)[0].ID
	req := ActionRequest{TenantID: e.tenant, UserID: alice.ID, NotificationID: id, ActionType: "approve"}

	_, err := e.actions.Perform(ctx, req)
	require.Error(t, err)
	rec, err := e.store.GetAction(ctx, id, "approve")
	require.NoError(t, err)
	assert.Equal(t, ActionFailed, rec.Status)
	assert.Equal(t, "downstream unavailable", rec.Error)

	res, err := e.actions.Perform(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Data["calls"])

	res, err = e.actions.Perform(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Data["calls"])
	assert.Equal(t, 2, h.count())
}

func TestActions_PendingClaimBlocksUntilStale(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t, alice)
	h := &countingHandler{action: "approve", idempotent: true}
	require.NoError(t, e.actions.Register(h))
	e.sendTask(t, alice.ID, "evt-1")
	id := e.notifications(t, alice.ID)[0].ID

	_, claimed, err := e.store.ClaimAction(ctx, ActionClaim{
		TenantID:       e.tenant,
		NotificationID: id,
		ActionType:     "approve",
		At:             e.clock.Now(),
	})
	require.NoError(t, err)
	require.True(t, claimed)

	req := ActionRequest{TenantID: e.tenant, UserID: alice.ID, NotificationID: id, ActionType: "approve"}
	_, err = e.actions.Perform(ctx, req)
	assert.ErrorIs(t, err, ErrActionInProgress)
	assert.Zero(t, h.count())

	e.clock.Advance(DefaultActionStaleAfter)
	_, err = e.actions.Perform(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, h.count())
}

func TestActions_PerformChecksOwnership(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t, alice, bob)
	e.sendTask(t, alice.ID, "evt-1")
	id := e.notifications(t, alice.ID)[0].ID

	tests := []struct {
		name    string
		req     ActionRequest
		wantErr error
	}{
		{"other user", ActionRequest{TenantID: e.tenant, UserID: bob.ID, NotificationID: id, ActionType: ActionMarkRead}, ErrForbidden},
		{"other tenant", ActionRequest{TenantID: uuid.New(), UserID: alice.ID, NotificationID: id, ActionType: ActionMarkRead}, ErrNotificationNotFound},
		{"unknown notification", ActionRequest{TenantID: e.tenant, UserID: alice.ID, NotificationID: uuid.New(), ActionType: ActionMarkRead}, ErrNotificationNotFound},
		{"unknown action", ActionRequest{TenantID: e.tenant, UserID: alice.ID, NotificationID: id, ActionType: "launch"}, ErrUnknownAction},
		{"missing action", ActionRequest{TenantID: e.tenant, UserID: alice.ID, NotificationID: id}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.actions.Perform(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	res, err := e.actions.Perform(ctx, ActionRequest{TenantID: e.tenant, UserID: alice.ID, NotificationID: id, ActionType: ActionMarkRead})
	require.NoError(t, err)
	assert.Equal(t, true, res.Data["read"])
}

func TestActions_TokenActionMarksReadInBackground(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t, alice)
	runner := async.NewRunner(logger.Noop(), time.Second)
	h := &countingHandler{action: "approve", idempotent: true}
	actions := NewActionService(e.store, e.tokens, e.delivery,
		WithActionLogger(logger.Noop()),
		WithActionClock(e.clock.Now),
		WithBackgroundRunner(runner),
		WithActionHandlers(h),
	)

	e.sendTask(t, alice.ID, "evt-1")
	tok := e.renderer.last(t).linkToken(t, "approve")

	res, err := actions.PerformViaToken(ctx, tok, map[string]any{"comment": "lgtm"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NoError(t, runner.Wait(ctx))

	n := e.notifications(t, alice.ID)[0]
	assert.True(t, n.Read)
}

func TestActions_BatchViaToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t, alice, bob)
	e.batchHourly(t, alice.ID)
	e.sendTask(t, alice.ID, "evt-1")
	e.sendTask(t, alice.ID, "evt-2")

	_, err := e.flusher.Flush(ctx, e.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	digest := e.renderer.last(t)
	require.Equal(t, DigestTypeID, digest.templateID)
	tok := digest.linkToken(t, ActionMarkRead)

	_, err = e.actions.PerformViaToken(ctx, tok, nil)
	assert.ErrorIs(t, err, ErrValidation)

	res, err := e.actions.PerformBatchViaToken(ctx, tok, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Succeeded)
	assert.Zero(t, res.Failed)
	require.Len(t, res.Items, 2)

	for _, n := range e.notifications(t, alice.ID) {
		assert.True(t, n.Read)
	}
	assert.Len(t, e.store.batchActions, 1)

	batchID := *e.notifications(t, alice.ID)[0].BatchID
	_, err = e.actions.PerformBatch(ctx, BatchActionRequest{TenantID: e.tenant, UserID: bob.ID, BatchID: batchID, ActionType: ActionMarkRead})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestActions_TokenErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t, alice)
	e.sendTask(t, alice.ID, "evt-1")
	tok := e.renderer.last(t).linkToken(t, ActionMarkRead)

	_, err := e.actions.PerformViaToken(ctx, tok+"x", nil)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = e.actions.PerformBatchViaToken(ctx, tok, nil)
	assert.ErrorIs(t, err, ErrValidation)

	e.clock.Advance(DefaultTokenTTL)
	_, err = e.actions.PerformViaToken(ctx, tok, nil)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestActions_RegisterRejectsDuplicates(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	err := e.actions.Register(&countingHandler{action: ActionMarkRead})
	assert.ErrorIs(t, err, ErrHandlerRegistered)
}
