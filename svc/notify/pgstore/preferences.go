package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/courier/pkg/pg"
	"github.com/dmitrymomot/courier/svc/notify"
)

const preferenceColumns = `tenant_id, user_id, type_id, enabled, channels, frequency,
	batch_interval_seconds, quiet_start, quiet_end, timezone, created_at, updated_at`

func scanPreference(row interface{ Scan(...any) error }) (*notify.Preference, error) {
	var (
		p          notify.Preference
		interval   int64
		quietStart *string
		quietEnd   *string
	)
	if err := row.Scan(
		&p.TenantID,
		&p.UserID,
		&p.TypeID,
		&p.Enabled,
		&p.Channels,
		&p.Frequency,
		&interval,
		&quietStart,
		&quietEnd,
		&p.Timezone,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.BatchInterval = time.Duration(interval) * time.Second
	if quietStart != nil && quietEnd != nil {
		p.QuietHours = &notify.QuietHours{Start: *quietStart, End: *quietEnd}
	}
	return &p, nil
}

func (s *Store) GetPreference(ctx context.Context, tenantID uuid.UUID, userID, typeID string) (*notify.Preference, error) {
	p, err := scanPreference(s.pool.QueryRow(ctx, `
		SELECT `+preferenceColumns+`
		FROM notification_preferences
		WHERE tenant_id = $1 AND user_id = $2 AND type_id = $3`,
		tenantID, userID, typeID,
	))
	if pg.IsNotFoundError(err) {
		return nil, notify.ErrPreferenceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get preference: %w", err)
	}
	return p, nil
}

func (s *Store) ListPreferences(ctx context.Context, tenantID uuid.UUID, userID string) ([]notify.Preference, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+preferenceColumns+`
		FROM notification_preferences
		WHERE tenant_id = $1 AND user_id = $2
		ORDER BY type_id`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	defer rows.Close()

	var out []notify.Preference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) UpsertPreference(ctx context.Context, p *notify.Preference) error {
	var quietStart, quietEnd *string
	if p.QuietHours != nil {
		quietStart, quietEnd = &p.QuietHours.Start, &p.QuietHours.End
	}
	now := s.now()
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO notification_preferences (`+preferenceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (tenant_id, user_id, type_id) DO UPDATE
		SET enabled = EXCLUDED.enabled,
		    channels = EXCLUDED.channels,
		    frequency = EXCLUDED.frequency,
		    batch_interval_seconds = EXCLUDED.batch_interval_seconds,
		    quiet_start = EXCLUDED.quiet_start,
		    quiet_end = EXCLUDED.quiet_end,
		    timezone = EXCLUDED.timezone,
		    updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at`,
		p.TenantID, p.UserID, p.TypeID, p.Enabled, nonNil(p.Channels), string(p.Frequency),
		int64(p.BatchInterval/time.Second), quietStart, quietEnd, p.Timezone, createdAt, now,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert preference: %w", err)
	}
	return nil
}

func (s *Store) ListEnabledSubscribers(ctx context.Context, tenantID uuid.UUID, typeID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id
		FROM notification_preferences
		WHERE tenant_id = $1 AND type_id = $2 AND enabled
		ORDER BY user_id`, tenantID, typeID)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
