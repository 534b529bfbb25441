package stream

import (
	"github.com/smallbiznis/streamgate/internal/jobs"
	"github.com/smallbiznis/streamgate/internal/stream/domain"
	"github.com/smallbiznis/streamgate/internal/stream/service"
	"go.uber.org/fx"
)

var Module = fx.Module("stream.service",
	fx.Provide(service.New),
	fx.Invoke(registerJobs),
)

func registerJobs(registry *jobs.Registry, svc domain.Service) {
	registry.Register(domain.JobInvokeWebhook, svc.HandleWebhookJob)
}
