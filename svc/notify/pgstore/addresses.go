package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/courier/pkg/pg"
	"github.com/dmitrymomot/courier/svc/notify"
)

const addressColumns = `tenant_id, user_id, channel, address, is_verified, is_disabled,
	bounce_count, complaint_count, last_bounce_at, updated_at`

func scanAddress(row interface{ Scan(...any) error }) (*notify.ChannelAddress, error) {
	var a notify.ChannelAddress
	if err := row.Scan(
		&a.TenantID,
		&a.UserID,
		&a.Channel,
		&a.Address,
		&a.IsVerified,
		&a.IsDisabled,
		&a.BounceCount,
		&a.ComplaintCount,
		&a.LastBounceAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetAddress(ctx context.Context, tenantID uuid.UUID, userID, channel, address string) (*notify.ChannelAddress, error) {
	a, err := scanAddress(s.pool.QueryRow(ctx, `
		SELECT `+addressColumns+`
		FROM channel_addresses
		WHERE tenant_id = $1 AND user_id = $2 AND channel = $3 AND address = $4`,
		tenantID, userID, channel, notify.NormalizeAddress(address),
	))
	if pg.IsNotFoundError(err) {
		return nil, notify.ErrAddressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get address: %w", err)
	}
	return a, nil
}

// RecordFeedback locks the address row, applies fb and writes it back so
// concurrent webhooks for one address never lose a count.
func (s *Store) RecordFeedback(ctx context.Context, fb notify.AddressFeedback) (*notify.ChannelAddress, error) {
	address := notify.NormalizeAddress(fb.Address)

	var out *notify.ChannelAddress
	err := pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		// Seed the row first so FOR UPDATE always has something to lock.
		if _, err := tx.Exec(ctx, `
			INSERT INTO channel_addresses (tenant_id, user_id, channel, address, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT DO NOTHING`,
			fb.TenantID, fb.UserID, fb.Channel, address, fb.At,
		); err != nil {
			return fmt.Errorf("seed address: %w", err)
		}

		a, err := scanAddress(tx.QueryRow(ctx, `
			SELECT `+addressColumns+`
			FROM channel_addresses
			WHERE tenant_id = $1 AND user_id = $2 AND channel = $3 AND address = $4
			FOR UPDATE`,
			fb.TenantID, fb.UserID, fb.Channel, address,
		))
		if err != nil {
			return fmt.Errorf("lock address: %w", err)
		}

		a.ApplyFeedback(fb)
		if _, err := tx.Exec(ctx, `
			UPDATE channel_addresses
			SET is_verified = $5, is_disabled = $6, bounce_count = $7, complaint_count = $8,
			    last_bounce_at = $9, updated_at = $10
			WHERE tenant_id = $1 AND user_id = $2 AND channel = $3 AND address = $4`,
			a.TenantID, a.UserID, a.Channel, a.Address,
			a.IsVerified, a.IsDisabled, a.BounceCount, a.ComplaintCount, a.LastBounceAt, a.UpdatedAt,
		); err != nil {
			return fmt.Errorf("update address: %w", err)
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
