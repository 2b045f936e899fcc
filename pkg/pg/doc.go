// Package pg bootstraps PostgreSQL access with github.com/jackc/pgx/v5:
// pool creation with retries (Connect), goose migrations from an embedded
// filesystem (Migrate), a transaction helper (WithTx), a readiness probe
// (Healthcheck) and SQLSTATE classification helpers.
//
//	pool, err := pg.Connect(ctx, cfg.PG)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations, "migrations", cfg.PG, log); err != nil {
//		return err
//	}
package pg
