package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/relaypub/scheduler/internal/domain"
	"github.com/relaypub/scheduler/internal/metrics"
	"github.com/relaypub/scheduler/internal/notify"
	"github.com/relaypub/scheduler/internal/store"
)

// massRecoveryThreshold is the recovered-lease count past which a single
// sweep triggers an operator alert rather than just a log line.
const massRecoveryThreshold = 20

// Poller is the per-worker-process Polling Loop (spec §4.3, C3).
// Grounded on the teacher's dispatcher.go ticker+select shape, merged
// with worker.go's claim-and-dispatch-to-pool pattern: a single
// cooperative loop that recovers stale leases, claims up to the pool's
// idle capacity, and hands each claimed row to Pipeline.Execute without
// blocking on its completion.
type Poller struct {
	Store    store.Store
	Pipeline *Pipeline
	Logger   *slog.Logger
	Config   Config

	// WorkerID identifies this process's lease ownership. Defaults to
	// hostname-pid if empty.
	WorkerID string

	// Notifier, if set, receives an alert when one recovery sweep
	// reclaims an unusually large number of leases.
	Notifier notify.Notifier

	inFlight atomic.Int64
	sem      chan struct{}
}

// NewPoller fills unset Config fields with their spec defaults and
// prepares the bounded worker pool.
func NewPoller(st store.Store, pipeline *Pipeline, logger *slog.Logger, cfg Config, workerID string) *Poller {
	cfg = cfg.withDefaults()
	if workerID == "" {
		host, _ := os.Hostname()
		workerID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	return &Poller{
		Store:    st,
		Pipeline: pipeline,
		Logger:   logger.With("component", "poller", "worker_id", workerID),
		Config:   cfg,
		WorkerID: workerID,
		sem:      make(chan struct{}, cfg.MaxThreads),
	}
}

// Start runs the polling loop until ctx is cancelled. It blocks.
func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.Config.PollingInterval)
	defer ticker.Stop()

	p.Logger.Info("poller started", "polling_interval", p.Config.PollingInterval, "batch_size", p.Config.BatchSize, "max_threads", p.Config.MaxThreads)

	for {
		select {
		case <-ctx.Done():
			p.Logger.Info("poller shut down")
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

// cycle runs one iteration: recover stale leases, then claim and
// dispatch up to the pool's current idle capacity. It never blocks on
// task execution (spec §4.3 backpressure rule).
func (p *Poller) cycle(ctx context.Context) {
	cycleStart := time.Now()
	defer func() { metrics.PollCycleDuration.Observe(time.Since(cycleStart).Seconds()) }()

	now := time.Now().UTC()

	recoveryStart := time.Now()
	recovered, err := p.Store.RecoverLeases(ctx, now, p.Config.LeaseTimeout)
	metrics.LeaseRecoveryDuration.Observe(time.Since(recoveryStart).Seconds())
	if err != nil {
		p.Logger.Error("recover leases", "error", err)
	} else if recovered > 0 {
		metrics.LeasesRecoveredTotal.Add(float64(recovered))
		p.Logger.Warn("recovered stale leases", "count", recovered)
		if recovered > massRecoveryThreshold && p.Notifier != nil {
			subject, body := notify.MassLeaseRecoveryAlert(recovered, massRecoveryThreshold)
			if err := p.Notifier.Notify(ctx, subject, body); err != nil {
				p.Logger.Error("send mass lease recovery alert", "error", err)
			}
		}
	}

	idle := p.Config.MaxThreads - int(p.inFlight.Load())
	if idle <= 0 {
		return
	}

	claimSize := p.Config.BatchSize
	if idle < claimSize {
		claimSize = idle
	}

	tasks, err := p.Store.ClaimDue(ctx, now, p.WorkerID, claimSize)
	if err != nil {
		p.Logger.Error("claim due tasks", "error", err)
		return
	}
	metrics.ClaimBatchSize.Observe(float64(len(tasks)))
	if len(tasks) == 0 {
		return
	}
	p.Logger.Info("claimed tasks", "count", len(tasks))

	for _, task := range tasks {
		metrics.ClaimLatency.Observe(now.Sub(task.ExecutionTime).Seconds())
		p.dispatch(ctx, task)
	}
}

// dispatch submits task to the bounded pool without blocking the
// caller once a slot is available; it acquires a slot synchronously
// (the caller already verified idle capacity, so this never stalls the
// polling tick beyond a scheduling point).
func (p *Poller) dispatch(ctx context.Context, task *domain.Task) {
	p.sem <- struct{}{}
	p.inFlight.Add(1)
	metrics.TasksInFlight.Inc()
	go func() {
		defer func() {
			<-p.sem
			p.inFlight.Add(-1)
			metrics.TasksInFlight.Dec()
		}()
		p.Pipeline.Execute(ctx, task)
	}()
}
