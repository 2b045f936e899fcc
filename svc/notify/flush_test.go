package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/courier/pkg/logger"
)

func TestFlusher_ReleasesAndGivesUp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t, alice)
	flusher := NewFlusher(e.store, e.delivery,
		WithFlusherLogger(logger.Noop()),
		WithMaxBatchAttempts(2),
	)
	e.batchHourly(t, alice.ID)
	e.sendTask(t, alice.ID, "evt-1")
	due := e.clock.Now().Add(time.Hour)

	e.provider.fail(errors.New("provider down"))
	res, err := flusher.Flush(ctx, due)
	require.NoError(t, err)
	assert.Equal(t, FlushResult{Failed: 1}, res)

	batchID := *e.notifications(t, alice.ID)[0].BatchID
	b, err := e.store.GetBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, BatchPending, b.Status)
	assert.Equal(t, 1, b.Attempts)
	assert.Contains(t, b.LastError, "provider down")

	res, err = flusher.Flush(ctx, due)
	require.NoError(t, err)
	assert.Equal(t, FlushResult{Failed: 1}, res)

	b, err = e.store.GetBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, BatchFailed, b.Status)
	assert.Equal(t, StatusFailed, e.notifications(t, alice.ID)[0].Status)

	res, err = flusher.Flush(ctx, due)
	require.NoError(t, err)
	assert.Equal(t, FlushResult{}, res)
}

func TestDeliver_RefusesMembersOfFailedBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t, alice)
	flusher := NewFlusher(e.store, e.delivery,
		WithFlusherLogger(logger.Noop()),
		WithMaxBatchAttempts(1),
	)
	e.batchHourly(t, alice.ID)
	e.sendTask(t, alice.ID, "evt-1")
	member := e.notifications(t, alice.ID)[0]

	e.provider.fail(errors.New("provider down"))
	_, err := flusher.Flush(ctx, e.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	b, err := e.store.GetBatch(ctx, *member.BatchID)
	require.NoError(t, err)
	require.Equal(t, BatchFailed, b.Status)

	e.provider.fail(nil)
	_, err = e.delivery.Deliver(ctx, member.ID)
	require.ErrorIs(t, err, ErrBatchedDelivery)
	assert.Equal(t, 0, e.provider.count())

	n, err := e.store.GetNotification(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, n.Status)
}

func TestFlusher_LateArrivalsStartNewBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t, alice)
	e.batchHourly(t, alice.ID)
	e.sendTask(t, alice.ID, "evt-1")
	first := *e.notifications(t, alice.ID)[0].BatchID

	claimed, err := e.store.ClaimBatch(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, BatchSending, claimed.Status)

	e.sendTask(t, alice.ID, "evt-2")
	var second uuid.UUID
	for _, n := range e.notifications(t, alice.ID) {
		if *n.BatchID != first {
			second = *n.BatchID
		}
	}
	require.NotEqual(t, uuid.Nil, second)

	err = e.flusher.FlushBatch(ctx, first)
	assert.ErrorIs(t, err, ErrDeliveryInProgress)
}

func TestComposeDigest(t *testing.T) {
	t.Parallel()

	members := make([]Notification, 12)
	for i := range members {
		members[i] = Notification{
			ID:      uuid.New(),
			TypeID:  typeTaskAssigned,
			Payload: map[string]any{"task_title": fmt.Sprintf("task %d", i)},
		}
	}

	digest := ComposeDigest(members, DefaultDigestLimit)
	items, ok := digest["items"].([]DigestItem)
	require.True(t, ok)
	assert.Len(t, items, DefaultDigestLimit)
	assert.Equal(t, 12, digest["total"])
	assert.Equal(t, 2, digest["more"])
	assert.Equal(t, "task 0", items[0].Payload["task_title"])

	digest = ComposeDigest(members[:3], 0)
	assert.Len(t, digest["items"], 3)
	assert.Equal(t, 0, digest["more"])
}
