package email

import "fmt"

// New builds the Sender selected by cfg.Provider.
func New(cfg Config) (Sender, error) {
	switch cfg.Provider {
	case ProviderPostmark:
		return NewPostmarkClient(cfg)
	case ProviderResend:
		return NewResendClient(cfg)
	case ProviderDev, "":
		return NewDevSender(cfg.DevDir), nil
	}
	return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
}
