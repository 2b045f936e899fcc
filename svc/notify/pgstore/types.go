package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/courier/pkg/pg"
	"github.com/dmitrymomot/courier/svc/notify"
)

const typeColumns = `tenant_id, id, name, default_channels, template_id, subscribers,
	conditions, access_check_key, actions, created_at`

func scanType(row interface{ Scan(...any) error }) (*notify.NotificationType, error) {
	var t notify.NotificationType
	if err := row.Scan(
		&t.TenantID,
		&t.ID,
		&t.Name,
		&t.DefaultChannels,
		&t.TemplateID,
		&t.Subscribers,
		&t.Conditions,
		&t.AccessCheckKey,
		&t.Actions,
		&t.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetType prefers the tenant's own type over the global one with the same id.
func (s *Store) GetType(ctx context.Context, tenantID uuid.UUID, id string) (*notify.NotificationType, error) {
	t, err := scanType(s.pool.QueryRow(ctx, `
		SELECT `+typeColumns+`
		FROM notification_types
		WHERE id = $2 AND tenant_id IN ($1, $3)
		ORDER BY tenant_id = $3
		LIMIT 1`,
		tenantID, id, uuid.Nil,
	))
	if pg.IsNotFoundError(err) {
		return nil, notify.ErrTypeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification type: %w", err)
	}
	return t, nil
}

func (s *Store) ListTypes(ctx context.Context, tenantID uuid.UUID) ([]notify.NotificationType, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (id) `+typeColumns+`
		FROM notification_types
		WHERE tenant_id IN ($1, $2)
		ORDER BY id, tenant_id = $2`,
		tenantID, uuid.Nil,
	)
	if err != nil {
		return nil, fmt.Errorf("list notification types: %w", err)
	}
	defer rows.Close()

	out := []notify.NotificationType{}
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification type: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) UpsertType(ctx context.Context, t *notify.NotificationType) error {
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO notification_types (`+typeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, id) DO UPDATE
		SET name = EXCLUDED.name,
		    default_channels = EXCLUDED.default_channels,
		    template_id = EXCLUDED.template_id,
		    subscribers = EXCLUDED.subscribers,
		    conditions = EXCLUDED.conditions,
		    access_check_key = EXCLUDED.access_check_key,
		    actions = EXCLUDED.actions
		RETURNING created_at`,
		t.TenantID, t.ID, t.Name, nonNil(t.DefaultChannels), t.TemplateID, nonNil(t.Subscribers),
		t.Conditions, t.AccessCheckKey, nonNil(t.Actions), createdAt,
	).Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert notification type: %w", err)
	}
	return nil
}
