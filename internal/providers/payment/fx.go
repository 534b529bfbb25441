package payment

import (
	"github.com/smallbiznis/streamgate/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.payment",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Provider {
	return NewStripe(cfg.Stripe)
}
