// Package pgstore implements notify.Storage on PostgreSQL with pgx.
//
// Status changes are single conditional statements guarded by the allowed
// source statuses of notify.NotificationLifecycle, so concurrent workers
// race on the row and exactly one wins. Batch enrolment and batch
// completion run inside one transaction each.
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations, "migrations", cfg.PG, log); err != nil {
//		return err
//	}
//	store := pgstore.New(pool)
package pgstore

import (
	"context"
	"embed"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/courier/svc/notify"
)

// Migrations holds the goose migrations for the notification tables under
// the "migrations" directory.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a notify.Storage backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for default timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Store on top of an initialized pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// exists reports whether a row with the given id is present in table.
// table is always a package constant.
func exists(ctx context.Context, q querier, table string, id any) (bool, error) {
	var ok bool
	err := q.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM "+table+" WHERE id = $1)", id).Scan(&ok)
	return ok, err
}

func statusStrings[S ~string](in []S) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

var _ notify.Storage = (*Store)(nil)
