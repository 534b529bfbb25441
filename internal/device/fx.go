package device

import (
	"github.com/smallbiznis/streamgate/internal/device/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("device.repository",
	fx.Provide(repository.Provide),
)
