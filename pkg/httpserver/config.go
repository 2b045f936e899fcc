package httpserver

import "time"

type Config struct {
	Addr              string        `env:"HTTP_ADDR" envDefault:":8080"`             // Addr is the listen address.
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"` // ReadHeaderTimeout bounds reading request headers.
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`       // ReadTimeout bounds reading the whole request.
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`      // WriteTimeout bounds writing the response.
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`      // IdleTimeout is the keep-alive idle limit.
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`   // ShutdownTimeout is the grace period for in-flight requests.
}

// NewFromConfig builds a Server from cfg. Zero values keep package defaults;
// opts are applied after the config.
func NewFromConfig(cfg Config, opts ...Option) *Server {
	all := make([]Option, 0, len(opts)+6)
	if cfg.Addr != "" {
		all = append(all, WithAddr(cfg.Addr))
	}
	set := func(d time.Duration, f func(time.Duration) Option) {
		if d > 0 {
			all = append(all, f(d))
		}
	}
	set(cfg.ReadHeaderTimeout, WithReadHeaderTimeout)
	set(cfg.ReadTimeout, WithReadTimeout)
	set(cfg.WriteTimeout, WithWriteTimeout)
	set(cfg.IdleTimeout, WithIdleTimeout)
	set(cfg.ShutdownTimeout, WithShutdownTimeout)

	return New(append(all, opts...)...)
}
