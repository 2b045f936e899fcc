package email

// Provider names accepted by Config.Provider.
const (
	ProviderPostmark = "postmark"
	ProviderResend   = "resend"
	ProviderDev      = "dev"
)

// Config selects and configures the outbound email provider.
// Provider credentials are only required for the provider in use.
type Config struct {
	Provider             string `env:"EMAIL_PROVIDER" envDefault:"dev"`
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	PostmarkStream       string `env:"POSTMARK_MESSAGE_STREAM" envDefault:"outbound"`
	ResendAPIKey         string `env:"RESEND_API_KEY"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"notifications@example.com"`
	SenderName           string `env:"SENDER_NAME" envDefault:"Courier"`
	ReplyTo              string `env:"REPLY_TO_EMAIL"`
	DevDir               string `env:"EMAIL_DEV_DIR" envDefault:"./tmp/emails"`
}

func (c Config) from() string {
	if c.SenderName == "" {
		return c.SenderEmail
	}
	return c.SenderName + " <" + c.SenderEmail + ">"
}
