package notify

import (
	"slices"

	"github.com/dmitrymomot/courier/pkg/statemachine"
)

// Event drives Notification and Batch status transitions.
type Event string

const (
	EventClaim       Event = "claim"
	EventSucceed     Event = "succeed"
	EventFail        Event = "fail"
	EventBatchSent   Event = "batch_sent"
	EventBatchFailed Event = "batch_failed"
	EventConfirm     Event = "confirm"
	EventBounce      Event = "bounce"
	EventRelease     Event = "release"
)

// NotificationLifecycle moves notifications forward only. A failed delivery
// may be claimed again; bounced is final.
var NotificationLifecycle = statemachine.New[Status, Event]().
	Allow(EventClaim, StatusSending, StatusPending, StatusFailed).
	Allow(EventSucceed, StatusSent, StatusSending).
	Allow(EventFail, StatusFailed, StatusSending).
	Allow(EventBatchSent, StatusSent, StatusQueuedForBatch).
	Allow(EventBatchFailed, StatusFailed, StatusQueuedForBatch).
	Allow(EventConfirm, StatusDelivered, StatusSent).
	Allow(EventBounce, StatusBounced, StatusSent, StatusDelivered).
	Terminal(StatusBounced)

// BatchLifecycle guards digest batches; sending is the single-writer gate.
var BatchLifecycle = statemachine.New[BatchStatus, Event]().
	Allow(EventClaim, BatchSending, BatchPending).
	Allow(EventSucceed, BatchSent, BatchSending).
	Allow(EventRelease, BatchPending, BatchSending).
	Allow(EventFail, BatchFailed, BatchSending).
	Terminal(BatchSent, BatchFailed)

// TransitionError maps a lifecycle rejection to conflict. Other errors are
// returned unchanged.
func TransitionError(err, conflict error) error {
	if statemachine.IsNoTransitionAvailableError(err) {
		return conflict
	}
	return err
}

// SourceStatuses lists the notification statuses accepting e, sorted.
func SourceStatuses(e Event) []Status {
	s := NotificationLifecycle.Sources(e)
	slices.Sort(s)
	return s
}
