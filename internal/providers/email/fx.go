package email

import (
	"github.com/smallbiznis/streamgate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	switch cfg.Email.Provider {
	case "smtp":
		return NewSMTP(Config{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.From,
		})
	case "noop", "none":
		log.Named("providers.email").Warn("email delivery disabled")
		return &NoOpProvider{}
	default:
		return NewSendGrid(cfg.Email.SendGridAPIKey, cfg.Email.SendGridURL, cfg.Email.From)
	}
}
