package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/courier/pkg/pg"
	"github.com/dmitrymomot/courier/svc/notify"
)

const actionColumns = `id, tenant_id, notification_id, action_type, action_data, status, result,
	error, attempts, performed_at`

func scanAction(row interface{ Scan(...any) error }) (*notify.Action, error) {
	var a notify.Action
	if err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.NotificationID,
		&a.ActionType,
		&a.ActionData,
		&a.Status,
		&a.Result,
		&a.Error,
		&a.Attempts,
		&a.PerformedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

// ClaimAction inserts the action row or takes over an existing one in a
// single statement. The update branch only fires for rows the caller may
// own: failed ones, succeeded ones when c.ReclaimSucceeded is set, and
// pending ones older than c.StaleAfter.
func (s *Store) ClaimAction(ctx context.Context, c notify.ActionClaim) (*notify.Action, bool, error) {
	a, err := scanAction(s.pool.QueryRow(ctx, `
		INSERT INTO notification_actions (id, tenant_id, notification_id, action_type, action_data, status, attempts, performed_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7)
		ON CONFLICT (notification_id, action_type) DO UPDATE
		SET status = EXCLUDED.status,
		    action_data = EXCLUDED.action_data,
		    error = '',
		    attempts = notification_actions.attempts + 1,
		    performed_at = EXCLUDED.performed_at
		WHERE notification_actions.status = 'failed'
		   OR (notification_actions.status = 'succeeded' AND $8::boolean)
		   OR (notification_actions.status = 'pending'
		       AND $9::interval > interval '0'
		       AND notification_actions.performed_at <= EXCLUDED.performed_at - $9::interval)
		RETURNING `+actionColumns,
		uuid.New(), c.TenantID, c.NotificationID, c.ActionType, c.ActionData, string(notify.ActionPending), c.At,
		c.ReclaimSucceeded, c.StaleAfter,
	))
	if err == nil {
		return a, true, nil
	}
	if pg.IsForeignKeyViolationError(err) {
		return nil, false, notify.ErrNotificationNotFound
	}
	if !pg.IsNotFoundError(err) {
		return nil, false, fmt.Errorf("claim action: %w", err)
	}

	existing, err := s.GetAction(ctx, c.NotificationID, c.ActionType)
	if err != nil {
		return nil, false, err
	}
	if existing.Status == notify.ActionSucceeded {
		return existing, false, nil
	}
	return existing, false, notify.ErrActionInProgress
}

func (s *Store) FinishAction(ctx context.Context, id uuid.UUID, status notify.ActionStatus, result map[string]any, errMsg string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notification_actions
		SET status = $2, result = $3, error = $4, performed_at = $5
		WHERE id = $1`,
		id, string(status), result, errMsg, at,
	)
	if err != nil {
		return fmt.Errorf("finish action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notify.ErrNotFound
	}
	return nil
}

func (s *Store) GetAction(ctx context.Context, notificationID uuid.UUID, actionType string) (*notify.Action, error) {
	a, err := scanAction(s.pool.QueryRow(ctx, `
		SELECT `+actionColumns+`
		FROM notification_actions
		WHERE notification_id = $1 AND action_type = $2`,
		notificationID, actionType,
	))
	if pg.IsNotFoundError(err) {
		return nil, notify.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get action: %w", err)
	}
	return a, nil
}

func (s *Store) CreateBatchAction(ctx context.Context, a *notify.BatchAction) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_batch_actions (
			id, tenant_id, batch_id, action_type, action_data, succeeded, failed, result, performed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.TenantID, a.BatchID, a.ActionType, a.ActionData, a.Succeeded, a.Failed, a.Result, a.PerformedAt,
	)
	if pg.IsForeignKeyViolationError(err) {
		return notify.ErrBatchNotFound
	}
	if err != nil {
		return fmt.Errorf("create batch action: %w", err)
	}
	return nil
}
