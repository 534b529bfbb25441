package jobs

import (
	"context"
	"sync"
	"time"

	obsmetrics "github.com/smallbiznis/streamgate/internal/observability/metrics"
	"go.uber.org/zap"
)

const popErrorBackoff = time.Second

// Runner pulls envelopes from a broker with a fixed pool of workers.
type Runner struct {
	broker  Broker
	exec    *executor
	log     *zap.Logger
	metrics *obsmetrics.JobMetrics
	workers int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(broker Broker, registry *Registry, workers int, log *zap.Logger, metrics *obsmetrics.JobMetrics) *Runner {
	if workers <= 0 {
		workers = 1
	}
	log = log.Named("jobs.runner")
	return &Runner{
		broker:  broker,
		exec:    &executor{registry: registry, log: log, metrics: metrics},
		log:     log,
		metrics: metrics,
		workers: workers,
	}
}

// Start requeues unacknowledged deliveries and launches the workers.
func (r *Runner) Start(ctx context.Context) error {
	moved, err := r.broker.Recover(ctx)
	if err != nil {
		return err
	}
	if moved > 0 {
		r.log.Warn("requeued unacknowledged jobs", zap.Int("count", moved))
		r.metrics.AddRedelivered(moved)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.work(runCtx, i)
	}
	r.log.Info("job workers started", zap.Int("workers", r.workers))
	return nil
}

// Stop signals the workers and waits for in-flight jobs until ctx expires.
func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel == nil {
		return nil
	}
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info("job workers stopped")
		return nil
	case <-ctx.Done():
		r.log.Warn("job workers still busy at shutdown")
		return ctx.Err()
	}
}

func (r *Runner) work(ctx context.Context, worker int) {
	defer r.wg.Done()
	log := r.log.With(zap.Int("worker", worker))

	for {
		if ctx.Err() != nil {
			return
		}

		delivery, err := r.broker.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("pop failed", zap.Error(err))
			select {
			case <-time.After(popErrorBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}
		if delivery == nil {
			if depth, err := r.broker.Len(ctx); err == nil {
				r.metrics.SetQueueDepth(depth)
			}
			continue
		}

		// In-flight jobs are not interrupted by Stop.
		_ = r.exec.run(context.WithoutCancel(ctx), delivery.Envelope)

		if err := r.broker.Ack(context.WithoutCancel(ctx), delivery); err != nil {
			log.Error("ack failed", zap.Error(err), zap.String("job_id", delivery.Envelope.ID))
		}
	}
}
