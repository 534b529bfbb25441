package providers

import (
	"github.com/smallbiznis/streamgate/internal/config"
	"github.com/smallbiznis/streamgate/internal/providers/compute"
	"github.com/smallbiznis/streamgate/internal/providers/dns"
	"github.com/smallbiznis/streamgate/internal/providers/email"
	"github.com/smallbiznis/streamgate/internal/providers/payment"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	payment.Module,
	fx.Provide(NewCompute),
	fx.Provide(NewDNS),
)

func NewCompute(cfg config.Config) compute.Provider {
	return compute.NewLinode(cfg.Linode)
}

func NewDNS(cfg config.Config) (dns.Provider, error) {
	return dns.NewCloudflare(cfg.DNS)
}
