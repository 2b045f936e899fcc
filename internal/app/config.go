package app

import (
	"time"

	"github.com/dmitrymomot/courier/pkg/email"
	"github.com/dmitrymomot/courier/pkg/httpserver"
	"github.com/dmitrymomot/courier/pkg/pg"
	"github.com/dmitrymomot/courier/pkg/redis"
)

// Config is the process configuration shared by every courier binary.
type Config struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL"`
	BaseURL  string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	TokenSecret          string        `env:"ACTION_TOKEN_SECRET,required,notEmpty"`
	PreviousTokenSecrets []string      `env:"ACTION_TOKEN_PREVIOUS_SECRETS"`
	TokenTTL             time.Duration `env:"ACTION_TOKEN_TTL" envDefault:"168h"`
	TokenRevocation      bool          `env:"ACTION_TOKEN_REVOCATION" envDefault:"true"`

	CatalogFile   string        `env:"CATALOG_FILE"`
	CatalogCache  int           `env:"CATALOG_CACHE_SIZE" envDefault:"512"`
	CatalogTTL    time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"1m"`
	DirectoryFile string        `env:"DIRECTORY_FILE"`
	TemplatesDir  string        `env:"TEMPLATES_DIR"`

	FanoutConcurrency  int           `env:"FANOUT_CONCURRENCY" envDefault:"16"`
	SubscriberTimeout  time.Duration `env:"FANOUT_SUBSCRIBER_TIMEOUT" envDefault:"30s"`
	SendTimeout        time.Duration `env:"EMAIL_SEND_TIMEOUT" envDefault:"5s"`
	SendRate           float64       `env:"EMAIL_SEND_RATE" envDefault:"0"`
	SendBurst          int           `env:"EMAIL_SEND_BURST" envDefault:"10"`
	BounceThreshold    int           `env:"BOUNCE_THRESHOLD" envDefault:"3"`
	ComplaintThreshold int           `env:"COMPLAINT_THRESHOLD" envDefault:"1"`
	ActionStaleAfter   time.Duration `env:"ACTION_STALE_AFTER" envDefault:"5m"`
	BackgroundTimeout  time.Duration `env:"BACKGROUND_TIMEOUT" envDefault:"30s"`

	// ActionWebhooks maps action types to URLs, e.g. "approve=https://app/hooks/approve".
	ActionWebhooks          map[string]string `env:"ACTION_WEBHOOKS" envKeyValSeparator:"="`
	ActionWebhookSecret     string            `env:"ACTION_WEBHOOK_SECRET"`
	ActionWebhookIdempotent bool              `env:"ACTION_WEBHOOK_IDEMPOTENT" envDefault:"true"`
	ActionWebhookRetries    int               `env:"ACTION_WEBHOOK_RETRIES" envDefault:"2"`
	// Retry delays double from ActionWebhookBackoff up to ActionWebhookBackoffMax.
	ActionWebhookBackoff    time.Duration `env:"ACTION_WEBHOOK_BACKOFF" envDefault:"500ms"`
	ActionWebhookBackoffMax time.Duration `env:"ACTION_WEBHOOK_BACKOFF_MAX" envDefault:"10s"`

	EmailWebhookSecret string        `env:"EMAIL_WEBHOOK_SECRET"`
	EmailWebhookMaxAge time.Duration `env:"EMAIL_WEBHOOK_MAX_AGE" envDefault:"5m"`
	OperationsToken    string        `env:"OPS_TOKEN"`

	FlushSchedule    string `env:"FLUSH_SCHEDULE" envDefault:"@every 1m"`
	FlushLimit       int    `env:"FLUSH_LIMIT" envDefault:"100"`
	DigestLimit      int    `env:"DIGEST_LIMIT" envDefault:"10"`
	MaxBatchAttempts int    `env:"MAX_BATCH_ATTEMPTS" envDefault:"5"`

	PG    pg.Config
	Redis redis.Config
	HTTP  httpserver.Config
	Email email.Config
}
