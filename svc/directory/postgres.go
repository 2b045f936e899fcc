package directory

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/courier/pkg/cache"
	"github.com/dmitrymomot/courier/pkg/pg"
	"github.com/dmitrymomot/courier/svc/notify"
)

// Migrations creates the directory tables under the "migrations" directory.
// Apply them with their own goose table, separate from the notification
// schema.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Postgres reads users from the directory tables. Users are cached for a
// short time since a fan-out looks the same user up several times.
type Postgres struct {
	pool  *pgxpool.Pool
	users *cache.LRU[userKey, notify.User]
}

// PostgresOption configures a Postgres resolver.
type PostgresOption func(*postgresOptions)

type postgresOptions struct {
	cacheSize int
	cacheTTL  time.Duration
}

// WithUserCache sets the user cache size and TTL. A size of zero disables it.
func WithUserCache(size int, ttl time.Duration) PostgresOption {
	return func(o *postgresOptions) {
		o.cacheSize = size
		o.cacheTTL = ttl
	}
}

// NewPostgres creates a resolver on an initialized pool.
func NewPostgres(pool *pgxpool.Pool, opts ...PostgresOption) *Postgres {
	o := postgresOptions{cacheSize: 1024, cacheTTL: 30 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	p := &Postgres{pool: pool}
	if o.cacheSize > 0 {
		p.users = cache.NewLRU[userKey, notify.User](o.cacheSize, cache.WithTTL(o.cacheTTL))
	}
	return p
}

const userColumns = `id, tenant_id, name, email, timezone, roles, manager_id, customer_ids`

func scanUser(row interface{ Scan(...any) error }) (*notify.User, error) {
	var u notify.User
	if err := row.Scan(&u.ID, &u.TenantID, &u.Name, &u.Email, &u.Timezone, &u.Roles, &u.ManagerID, &u.CustomerIDs); err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *Postgres) GetUser(ctx context.Context, tenantID uuid.UUID, userID string) (*notify.User, error) {
	key := userKey{tenantID, userID}
	if p.users != nil {
		if u, ok := p.users.Get(key); ok {
			return &u, nil
		}
	}

	u, err := scanUser(p.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM directory_users WHERE tenant_id = $1 AND id = $2`, tenantID, userID))
	if pg.IsNotFoundError(err) {
		return nil, notify.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if p.users != nil {
		p.users.Put(key, *u)
	}
	return u, nil
}

func (p *Postgres) ListUsers(ctx context.Context, tenantID uuid.UUID) ([]notify.User, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+userColumns+` FROM directory_users WHERE tenant_id = $1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := []notify.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (p *Postgres) GetUserChannelAddress(ctx context.Context, tenantID uuid.UUID, userID, channel string) (string, error) {
	if channel == notify.ChannelEmail {
		u, err := p.GetUser(ctx, tenantID, userID)
		if err != nil {
			return "", err
		}
		return u.Email, nil
	}

	var address string
	err := p.pool.QueryRow(ctx, `
		SELECT address FROM directory_user_addresses
		WHERE tenant_id = $1 AND user_id = $2 AND channel = $3`,
		tenantID, userID, channel,
	).Scan(&address)
	if pg.IsNotFoundError(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get channel address: %w", err)
	}
	return address, nil
}

func (p *Postgres) GetSubscribers(ctx context.Context, tenantID uuid.UUID, typeID string) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT user_id FROM directory_subscriptions
		WHERE tenant_id = $1 AND type_id = $2
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

func (p *Postgres) UserMatchesConditions(ctx context.Context, tenantID uuid.UUID, userID string, cond notify.SubscriptionConditions) (bool, error) {
	u, err := p.GetUser(ctx, tenantID, userID)
	if err != nil {
		return false, err
	}
	return cond.Matches(*u), nil
}

// CreateDataAccessChecker checks directory_resource_access for each value,
// compared in its fmt.Sprint form.
func (p *Postgres) CreateDataAccessChecker(ctx context.Context, tenantID uuid.UUID, userID string) (notify.AccessChecker, error) {
	if _, err := p.GetUser(ctx, tenantID, userID); err != nil {
		return nil, err
	}
	return func(ctx context.Context, key string, value any) (bool, error) {
		var ok bool
		err := p.pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM directory_resource_access
				WHERE tenant_id = $1 AND user_id = $2 AND resource_key = $3 AND resource_id = $4
			)`, tenantID, userID, key, fmt.Sprint(value),
		).Scan(&ok)
		if err != nil {
			return false, fmt.Errorf("check resource access: %w", err)
		}
		return ok, nil
	}, nil
}

var _ notify.UserResolver = (*Postgres)(nil)
