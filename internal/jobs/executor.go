package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	obscontext "github.com/smallbiznis/streamgate/internal/observability/context"
	"github.com/smallbiznis/streamgate/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/streamgate/internal/observability/metrics"
	"github.com/smallbiznis/streamgate/internal/observability/tracing"
	"github.com/smallbiznis/streamgate/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const tracerName = "streamgate/jobs"

// executor runs a single envelope against the registry. Errors and panics
// end here.
type executor struct {
	registry *Registry
	log      *zap.Logger
	metrics  *obsmetrics.JobMetrics
}

func (e *executor) run(ctx context.Context, env Envelope) (err error) {
	ctx = correlation.ContextWithCorrelationID(ctx, env.CorrelationID)
	ctx = obscontext.WithJob(ctx, obscontext.JobInfo{ID: env.ID, Name: env.Name})
	log := logger.WithContext(ctx, e.log)

	handler, ok := e.registry.Lookup(env.Name)
	if !ok {
		log.Warn("dropping job with no handler")
		e.metrics.IncError(env.Name, ErrUnknownJob)
		return ErrUnknownJob
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "job."+env.Name,
		attribute.String("job.id", env.ID),
		attribute.String("job.name", env.Name),
	)

	start := time.Now()
	outcome := obsmetrics.JobOutcomeSuccess
	defer func() {
		if rec := recover(); rec != nil {
			outcome = obsmetrics.JobOutcomePanic
			err = fmt.Errorf("job %s panicked: %v", env.Name, rec)
			log.Error("job panicked", zap.Any("panic", rec), zap.ByteString("stack", debug.Stack()))
		}
		elapsed := time.Since(start)
		e.metrics.ObserveRun(env.Name, outcome, elapsed)
		tracing.End(span, err)
		if err != nil {
			e.metrics.IncError(env.Name, err)
			return
		}
		log.Info("job completed", zap.Duration("elapsed", elapsed))
	}()

	if err = handler(ctx, env.Args); err != nil {
		outcome = obsmetrics.JobOutcomeError
		log.Error("job failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
	}
	return err
}
