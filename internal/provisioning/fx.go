package provisioning

import (
	"github.com/smallbiznis/streamgate/internal/jobs"
	"github.com/smallbiznis/streamgate/internal/provisioning/domain"
	"github.com/smallbiznis/streamgate/internal/provisioning/service"
	"go.uber.org/fx"
)

var Module = fx.Module("provisioning.service",
	fx.Provide(service.New),
	fx.Invoke(registerJobs),
)

func registerJobs(registry *jobs.Registry, svc domain.Service) {
	registry.Register(domain.JobSetupStreamingInstance, svc.HandleJob)
}
