package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/courier/pkg/pg"
	"github.com/dmitrymomot/courier/svc/notify"
)

const notificationColumns = `id, tenant_id, user_id, type_id, event_id, payload, status, channel,
	address, batch_id, provider_message_id, last_error, attempts, read, read_at, created_at, sent_at`

func scanNotification(row interface{ Scan(...any) error }) (*notify.Notification, error) {
	var n notify.Notification
	if err := row.Scan(
		&n.ID,
		&n.TenantID,
		&n.UserID,
		&n.TypeID,
		&n.EventID,
		&n.Payload,
		&n.Status,
		&n.Channel,
		&n.Address,
		&n.BatchID,
		&n.ProviderMessageID,
		&n.LastError,
		&n.Attempts,
		&n.Read,
		&n.ReadAt,
		&n.CreatedAt,
		&n.SentAt,
	); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Store) queryNotifications(ctx context.Context, q querier, sql string, args ...any) ([]notify.Notification, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notify.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *Store) insertNotification(ctx context.Context, q querier, n *notify.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}

	// type_tenant_id pins the catalog entry the row was created against, so
	// that type cannot be deleted underneath it.
	_, err := q.Exec(ctx, `
		INSERT INTO notifications (
			id, tenant_id, user_id, type_id, type_tenant_id, event_id, payload, status, channel,
			address, batch_id, provider_message_id, last_error, attempts, read, read_at, created_at, sent_at
		) VALUES (
			$1, $2, $3, $4,
			(SELECT tenant_id FROM notification_types
			 WHERE id = $4 AND tenant_id IN ($2, $18)
			 ORDER BY tenant_id = $18
			 LIMIT 1),
			$5, COALESCE($6::jsonb, '{}'), $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)`,
		n.ID, n.TenantID, n.UserID, n.TypeID, n.EventID, n.Payload, string(n.Status), n.Channel,
		n.Address, n.BatchID, n.ProviderMessageID, n.LastError, n.Attempts, n.Read, n.ReadAt, n.CreatedAt, n.SentAt,
		uuid.Nil,
	)
	if pg.IsDuplicateKeyError(err) {
		return notify.ErrDuplicateEvent
	}
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *Store) CreateNotification(ctx context.Context, n *notify.Notification) error {
	return s.insertNotification(ctx, s.pool, n)
}

func (s *Store) GetNotification(ctx context.Context, id uuid.UUID) (*notify.Notification, error) {
	n, err := scanNotification(s.pool.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if pg.IsNotFoundError(err) {
		return nil, notify.ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

func (s *Store) ListNotifications(ctx context.Context, tenantID uuid.UUID, userID string, opts notify.ListOptions) ([]notify.Notification, error) {
	out, err := s.queryNotifications(ctx, s.pool, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE tenant_id = $1
		  AND user_id = $2
		  AND (NOT $3::boolean OR NOT read)
		  AND ($4::text = '' OR type_id = $4)
		  AND (cardinality($5::text[]) = 0 OR status = ANY($5))
		  AND ($6::timestamptz IS NULL OR created_at >= $6)
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($7::int, 0) OFFSET $8`,
		tenantID, userID, opts.OnlyUnread, opts.TypeID, statusStrings(opts.Statuses), opts.Since,
		max(opts.Limit, 0), max(opts.Offset, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	if out == nil {
		out = []notify.Notification{}
	}
	return out, nil
}

func (s *Store) ClaimNotification(ctx context.Context, id uuid.UUID) (*notify.Notification, error) {
	n, err := scanNotification(s.pool.QueryRow(ctx, `
		UPDATE notifications
		SET status = $2, attempts = attempts + 1
		WHERE id = $1 AND status = ANY($3) AND batch_id IS NULL
		RETURNING `+notificationColumns,
		id, string(notify.StatusSending), statusStrings(notify.SourceStatuses(notify.EventClaim)),
	))
	if pg.IsNotFoundError(err) {
		return nil, s.missedClaim(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("claim notification: %w", err)
	}
	return n, nil
}

func (s *Store) FinishNotification(ctx context.Context, id uuid.UUID, out notify.DeliveryOutcome) error {
	event := notify.EventFail
	if out.Success {
		event = notify.EventSucceed
	}
	sources := notify.SourceStatuses(event)
	next, err := notify.NotificationLifecycle.Next(sources[0], event)
	if err != nil {
		return notify.TransitionError(err, notify.ErrInvalidTransition)
	}

	var sentAt *time.Time
	if out.Success {
		at := out.At
		sentAt = &at
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET status = $2,
		    address = COALESCE(NULLIF($3, ''), address),
		    sent_at = COALESCE($4, sent_at),
		    provider_message_id = CASE WHEN $5 THEN $6 ELSE provider_message_id END,
		    last_error = CASE WHEN $5 THEN '' ELSE $7 END
		WHERE id = $1 AND status = ANY($8)`,
		id, string(next), out.Address, sentAt, out.Success, out.ProviderMessageID, out.Error, statusStrings(sources),
	)
	if err != nil {
		return fmt.Errorf("finish notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missedNotification(ctx, id, notify.ErrInvalidTransition)
	}
	return nil
}

func (s *Store) TransitionNotification(ctx context.Context, id uuid.UUID, event notify.Event) error {
	sources := notify.SourceStatuses(event)
	if len(sources) == 0 {
		return notify.ErrInvalidTransition
	}
	next, err := notify.NotificationLifecycle.Next(sources[0], event)
	if err != nil {
		return notify.TransitionError(err, notify.ErrInvalidTransition)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET status = $2 WHERE id = $1 AND status = ANY($3)`,
		id, string(next), statusStrings(sources),
	)
	if err != nil {
		return fmt.Errorf("transition notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missedNotification(ctx, id, notify.ErrInvalidTransition)
	}
	return nil
}

// missedClaim explains why ClaimNotification matched no row.
func (s *Store) missedClaim(ctx context.Context, id uuid.UUID) error {
	var batched bool
	err := s.pool.QueryRow(ctx, `SELECT batch_id IS NOT NULL FROM notifications WHERE id = $1`, id).Scan(&batched)
	switch {
	case pg.IsNotFoundError(err):
		return notify.ErrNotificationNotFound
	case err != nil:
		return fmt.Errorf("check notification: %w", err)
	case batched:
		return notify.ErrBatchedDelivery
	}
	return notify.ErrDeliveryInProgress
}

// missedNotification resolves a conditional update that touched no rows.
func (s *Store) missedNotification(ctx context.Context, id uuid.UUID, conflict error) error {
	ok, err := exists(ctx, s.pool, "notifications", id)
	if err != nil {
		return fmt.Errorf("check notification: %w", err)
	}
	if !ok {
		return notify.ErrNotificationNotFound
	}
	return conflict
}

func (s *Store) ListByProviderMessageID(ctx context.Context, messageID string) ([]notify.Notification, error) {
	if messageID == "" {
		return nil, nil
	}
	out, err := s.queryNotifications(ctx, s.pool, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE provider_message_id = $1
		ORDER BY created_at, id`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list notifications by message id: %w", err)
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read = true, read_at = $2 WHERE id = $1 AND NOT read`, id, at)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missedNotification(ctx, id, nil)
	}
	return nil
}
