package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/courier/pkg/pg"
	"github.com/dmitrymomot/courier/svc/notify"
)

const batchColumns = `id, tenant_id, user_id, channel, scheduled_for, status, attempts,
	provider_message_id, last_error, created_at, sent_at`

func scanBatch(row interface{ Scan(...any) error }) (*notify.Batch, error) {
	var b notify.Batch
	if err := row.Scan(
		&b.ID,
		&b.TenantID,
		&b.UserID,
		&b.Channel,
		&b.ScheduledFor,
		&b.Status,
		&b.Attempts,
		&b.ProviderMessageID,
		&b.LastError,
		&b.CreatedAt,
		&b.SentAt,
	); err != nil {
		return nil, err
	}
	return &b, nil
}

// EnqueueNotification upserts the open batch and inserts n in one
// transaction. The upsert locks the batch row, so a concurrent ClaimBatch
// waits until the new member is committed.
func (s *Store) EnqueueNotification(ctx context.Context, n *notify.Notification, scheduledFor time.Time) (*notify.Batch, error) {
	var batch *notify.Batch
	err := pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		b, err := scanBatch(tx.QueryRow(ctx, `
			INSERT INTO notification_batches (id, tenant_id, user_id, channel, scheduled_for, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (tenant_id, user_id, channel, scheduled_for) WHERE status = 'pending' AND attempts = 0
			DO UPDATE SET status = notification_batches.status
			RETURNING `+batchColumns,
			uuid.New(), n.TenantID, n.UserID, n.Channel, scheduledFor, string(notify.BatchPending), s.now(),
		))
		if err != nil {
			return fmt.Errorf("upsert batch: %w", err)
		}

		member := *n
		member.BatchID = &b.ID
		member.Status = notify.StatusQueuedForBatch
		if err := s.insertNotification(ctx, tx, &member); err != nil {
			return err
		}
		*n = member
		batch = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *Store) GetBatch(ctx context.Context, id uuid.UUID) (*notify.Batch, error) {
	b, err := scanBatch(s.pool.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM notification_batches WHERE id = $1`, id))
	if pg.IsNotFoundError(err) {
		return nil, notify.ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return b, nil
}

func (s *Store) ListBatchMembers(ctx context.Context, batchID uuid.UUID) ([]notify.Notification, error) {
	out, err := s.queryNotifications(ctx, s.pool, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE batch_id = $1
		ORDER BY created_at, id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch members: %w", err)
	}
	return out, nil
}

func (s *Store) ListDueBatches(ctx context.Context, now time.Time, limit int) ([]notify.Batch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+batchColumns+`
		FROM notification_batches
		WHERE status = 'pending' AND scheduled_for <= $1
		ORDER BY scheduled_for, id
		LIMIT NULLIF($2::int, 0)`, now, max(limit, 0))
	if err != nil {
		return nil, fmt.Errorf("list due batches: %w", err)
	}
	defer rows.Close()

	var out []notify.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *Store) ClaimBatch(ctx context.Context, id uuid.UUID) (*notify.Batch, error) {
	b, err := scanBatch(s.pool.QueryRow(ctx, `
		UPDATE notification_batches
		SET status = $2, attempts = attempts + 1
		WHERE id = $1 AND status = $3
		RETURNING `+batchColumns,
		id, string(notify.BatchSending), string(notify.BatchPending),
	))
	if pg.IsNotFoundError(err) {
		return nil, s.missedBatch(ctx, s.pool, id, notify.ErrDeliveryInProgress)
	}
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	return b, nil
}

func (s *Store) CompleteBatch(ctx context.Context, id uuid.UUID, out notify.DeliveryOutcome) error {
	return pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE notification_batches
			SET status = $2, sent_at = $3, provider_message_id = $4, last_error = ''
			WHERE id = $1 AND status = $5`,
			id, string(notify.BatchSent), out.At, out.ProviderMessageID, string(notify.BatchSending),
		)
		if err != nil {
			return fmt.Errorf("complete batch: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return s.missedBatch(ctx, tx, id, notify.ErrInvalidTransition)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE notifications
			SET status = $2, sent_at = $3, provider_message_id = $4, address = $5
			WHERE batch_id = $1 AND status = $6`,
			id, string(notify.StatusSent), out.At, out.ProviderMessageID, out.Address, string(notify.StatusQueuedForBatch),
		); err != nil {
			return fmt.Errorf("mark batch members sent: %w", err)
		}
		return nil
	})
}

func (s *Store) ReleaseBatch(ctx context.Context, id uuid.UUID, errMsg string, maxAttempts int) (*notify.Batch, error) {
	var released *notify.Batch
	err := pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		b, err := scanBatch(tx.QueryRow(ctx,
			`SELECT `+batchColumns+` FROM notification_batches WHERE id = $1 FOR UPDATE`, id))
		if pg.IsNotFoundError(err) {
			return notify.ErrBatchNotFound
		}
		if err != nil {
			return fmt.Errorf("lock batch: %w", err)
		}

		event := notify.EventRelease
		if maxAttempts > 0 && b.Attempts >= maxAttempts {
			event = notify.EventFail
		}
		next, err := notify.BatchLifecycle.Next(b.Status, event)
		if err != nil {
			return notify.TransitionError(err, notify.ErrInvalidTransition)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE notification_batches SET status = $2, last_error = $3 WHERE id = $1`,
			id, string(next), errMsg,
		); err != nil {
			return fmt.Errorf("release batch: %w", err)
		}
		b.Status = next
		b.LastError = errMsg
		released = b

		if next == notify.BatchPending {
			return nil
		}
		if _, err := tx.Exec(ctx, `
			UPDATE notifications
			SET status = $2, last_error = $3
			WHERE batch_id = $1 AND status = $4`,
			id, string(notify.StatusFailed), errMsg, string(notify.StatusQueuedForBatch),
		); err != nil {
			return fmt.Errorf("fail batch members: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

func (s *Store) missedBatch(ctx context.Context, q querier, id uuid.UUID, conflict error) error {
	ok, err := exists(ctx, q, "notification_batches", id)
	if err != nil {
		return fmt.Errorf("check batch: %w", err)
	}
	if !ok {
		return notify.ErrBatchNotFound
	}
	return conflict
}
