// Package redis connects to Redis with github.com/redis/go-redis/v9.
//
// Connect retries the initial ping according to Config, and Healthcheck
// returns a probe suitable for the readiness endpoint:
//
//	client, err := redis.Connect(ctx, cfg.Redis)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	checks := []func(context.Context) error{redis.Healthcheck(client)}
//
// Config fields are read from REDIS_* environment variables.
package redis
