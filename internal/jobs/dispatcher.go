package jobs

import (
	"context"

	obsmetrics "github.com/smallbiznis/streamgate/internal/observability/metrics"
	"go.uber.org/zap"
)

// QueueDispatcher pushes jobs onto a broker for the Runner.
type QueueDispatcher struct {
	broker  Broker
	log     *zap.Logger
	metrics *obsmetrics.JobMetrics
}

func NewQueueDispatcher(broker Broker, log *zap.Logger, metrics *obsmetrics.JobMetrics) *QueueDispatcher {
	return &QueueDispatcher{broker: broker, log: log.Named("jobs.dispatcher"), metrics: metrics}
}

func (d *QueueDispatcher) Submit(ctx context.Context, name string, args any) (Handle, error) {
	env, err := newEnvelope(ctx, name, args)
	if err != nil {
		return Handle{}, err
	}
	if err := d.broker.Push(ctx, env); err != nil {
		return Handle{}, err
	}
	d.metrics.IncSubmitted(name)
	d.log.Debug("job submitted",
		zap.String("job_id", env.ID),
		zap.String("job_name", env.Name),
		zap.String("correlation_id", env.CorrelationID),
	)
	return env.Handle(), nil
}

// InlineDispatcher runs the handler on the caller's goroutine before Submit
// returns. Handler errors are logged, never returned.
type InlineDispatcher struct {
	exec    *executor
	metrics *obsmetrics.JobMetrics
}

func NewInlineDispatcher(registry *Registry, log *zap.Logger, metrics *obsmetrics.JobMetrics) *InlineDispatcher {
	return &InlineDispatcher{
		exec:    &executor{registry: registry, log: log.Named("jobs.inline"), metrics: metrics},
		metrics: metrics,
	}
}

func (d *InlineDispatcher) Submit(ctx context.Context, name string, args any) (Handle, error) {
	env, err := newEnvelope(ctx, name, args)
	if err != nil {
		return Handle{}, err
	}
	d.metrics.IncSubmitted(name)
	_ = d.exec.run(context.WithoutCancel(ctx), env)
	return env.Handle(), nil
}
