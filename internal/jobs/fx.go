package jobs

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/streamgate/internal/config"
	obsmetrics "github.com/smallbiznis/streamgate/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("jobs",
	fx.Provide(NewRegistry),
	fx.Provide(NewBroker),
	fx.Provide(NewDispatcher),
	fx.Invoke(runWorkers),
)

type Params struct {
	fx.In

	Config   config.Config
	Log      *zap.Logger
	Registry *Registry
	Broker   Broker
	Metrics  *obsmetrics.JobMetrics `optional:"true"`
}

// NewBroker picks the Redis broker when REDIS_URL is set and keeps its
// replica heartbeat alive for the life of the app.
func NewBroker(lc fx.Lifecycle, cfg config.Config, client *redis.Client, log *zap.Logger) Broker {
	if client == nil {
		log.Named("jobs").Warn("using in-memory job queue; pending jobs are lost on restart")
		return NewMemoryBroker()
	}
	broker := NewRedisBroker(client, cfg.Jobs.ReplicaID)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				broker.Heartbeat(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
	return broker
}

func NewDispatcher(p Params) Dispatcher {
	if p.Config.Jobs.Mode == config.JobModeInline {
		return NewInlineDispatcher(p.Registry, p.Log, p.Metrics)
	}
	return NewQueueDispatcher(p.Broker, p.Log, p.Metrics)
}

func runWorkers(lc fx.Lifecycle, p Params) {
	if p.Config.Jobs.Mode == config.JobModeInline {
		return
	}
	runner := NewRunner(p.Broker, p.Registry, p.Config.Jobs.Workers, p.Log, p.Metrics)
	lc.Append(fx.Hook{
		OnStart: runner.Start,
		OnStop:  runner.Stop,
	})
}
