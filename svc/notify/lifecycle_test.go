package notify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotificationLifecycle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from  Status
		event Event
		to    Status
		ok    bool
	}{
		{StatusPending, EventClaim, StatusSending, true},
		{StatusFailed, EventClaim, StatusSending, true},
		{StatusSent, EventClaim, "", false},
		{StatusSending, EventSucceed, StatusSent, true},
		{StatusSending, EventFail, StatusFailed, true},
		{StatusQueuedForBatch, EventBatchSent, StatusSent, true},
		{StatusQueuedForBatch, EventClaim, "", false},
		{StatusSent, EventConfirm, StatusDelivered, true},
		{StatusDelivered, EventBounce, StatusBounced, true},
		{StatusBounced, EventConfirm, "", false},
		{StatusDelivered, EventSucceed, "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			t.Parallel()
			to, err := NotificationLifecycle.Next(tt.from, tt.event)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestBatchLifecycle(t *testing.T) {
	t.Parallel()

	to, err := BatchLifecycle.Next(BatchSending, EventRelease)
	assert.NoError(t, err)
	assert.Equal(t, BatchPending, to)

	_, err = BatchLifecycle.Next(BatchSent, EventClaim)
	assert.Error(t, err)
	assert.True(t, BatchLifecycle.IsTerminal(BatchFailed))
}

func TestSourceStatuses(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []Status{StatusFailed, StatusPending}, SourceStatuses(EventClaim))
	assert.Equal(t, []Status{StatusDelivered, StatusSent}, SourceStatuses(EventBounce))
}

func TestTransitionError(t *testing.T) {
	t.Parallel()

	_, err := NotificationLifecycle.Next(StatusBounced, EventClaim)
	assert.ErrorIs(t, TransitionError(err, ErrDeliveryInProgress), ErrDeliveryInProgress)

	other := errors.New("boom")
	assert.Equal(t, other, TransitionError(other, ErrDeliveryInProgress))
}
