package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/relaypub/scheduler/internal/domain"
	"github.com/relaypub/scheduler/internal/metrics"
	"github.com/relaypub/scheduler/internal/notify"
	"github.com/relaypub/scheduler/internal/payload"
	"github.com/relaypub/scheduler/internal/publish"
	"github.com/relaypub/scheduler/internal/recurrence"
	"github.com/relaypub/scheduler/internal/store"
)

// Pipeline runs one claimed task end-to-end (spec §4.4, C4): heartbeat,
// decode, publish, finalize. Grounded on the teacher's worker.go
// runJob/heartbeat pair, generalized from a fixed HTTP-200 success
// predicate to the decode/publish/finalize sequence this domain needs.
type Pipeline struct {
	Store     store.Store
	Publisher publish.Publisher
	Logger    *slog.Logger
	Config    Config

	// Now defaults to time.Now; overridable for deterministic tests.
	Now func() time.Time

	// OnFinalize, if set, is called after every finalize attempt
	// (including aborted-on-lease-lost) for metrics/testing.
	OnFinalize func(outcome string)

	// Notifier, if set, receives an alert whenever a task is poisoned.
	Notifier notify.Notifier
}

// NewPipeline fills any unset Config fields with their spec defaults
// before returning the pipeline.
func NewPipeline(st store.Store, pub publish.Publisher, logger *slog.Logger, cfg Config) *Pipeline {
	return &Pipeline{
		Store:     st,
		Publisher: pub,
		Logger:    logger,
		Config:    cfg.withDefaults(),
	}
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

// record reports a finalize outcome to both Prometheus and the
// OnFinalize test hook. start is the time Execute began, so the
// execution_duration_seconds histogram reflects the whole
// heartbeat/decode/publish/finalize span, not just the finalize call.
func (p *Pipeline) record(outcome string, start time.Time) {
	metrics.TasksFinishedTotal.WithLabelValues(outcome).Inc()
	metrics.ExecutionDuration.WithLabelValues(outcome).Observe(p.now().Sub(start).Seconds())
	if p.OnFinalize != nil {
		p.OnFinalize(outcome)
	}
}

// Execute runs task through the full pipeline. It never returns an
// error the caller must retry on — every failure mode is handled by
// mutating (or intentionally not mutating) the row, per spec §4.4.
func (p *Pipeline) Execute(ctx context.Context, task *domain.Task) {
	start := p.now()
	workerID := *task.PickedBy
	logger := p.Logger.With("task_name", task.TaskName, "task_instance", task.TaskInstance, "worker_id", workerID)

	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	leaseLost := make(chan struct{})
	go p.heartbeatLoop(heartbeatCtx, task.TaskName, task.TaskInstance, workerID, leaseLost)
	defer cancelHeartbeat()

	env, err := payload.Decode(task.Data)
	if err != nil {
		metrics.TaskAttemptFailuresTotal.WithLabelValues("decode").Inc()
		p.finalizeDecodeFailure(ctx, task, workerID, err, logger, start)
		return
	}

	messageID, err := p.Publisher.Publish(ctx, env.TargetTopic, env.Data, env.Attributes)
	cancelHeartbeat()

	select {
	case <-leaseLost:
		logger.Warn("lease lost during execution, aborting without finalizing")
		p.record("lease_lost", start)
		return
	default:
	}

	if err != nil {
		metrics.TaskAttemptFailuresTotal.WithLabelValues("publish").Inc()
		p.finalizeFailure(ctx, task, workerID, logger, start)
		return
	}
	logger.Info("published", "topic", env.TargetTopic, "message_id", messageID)
	p.finalizeSuccess(ctx, task, workerID, env, logger, start)
}

func (p *Pipeline) finalizeSuccess(ctx context.Context, task *domain.Task, workerID string, env payload.Envelope, logger *slog.Logger, start time.Time) {
	now := p.now()

	sched, err := env.Schedule.Schedule()
	if err != nil {
		metrics.TaskAttemptFailuresTotal.WithLabelValues("decode").Inc()
		p.finalizeDecodeFailure(ctx, task, workerID, err, logger, start)
		return
	}

	if sched.Kind() == recurrence.KindOneTime {
		if err := p.Store.Complete(ctx, task.TaskName, task.TaskInstance, workerID); err != nil && !errors.Is(err, domain.ErrLeaseLost) {
			logger.Error("complete task", "error", err)
		}
		p.record("completed", start)
		return
	}

	next, ok := sched.Next(now)
	if !ok {
		if err := p.Store.Complete(ctx, task.TaskName, task.TaskInstance, workerID); err != nil && !errors.Is(err, domain.ErrLeaseLost) {
			logger.Error("complete exhausted recurring task", "error", err)
		}
		p.record("completed", start)
		return
	}

	if err := p.Store.Reschedule(ctx, task.TaskName, task.TaskInstance, workerID, next, true); err != nil && !errors.Is(err, domain.ErrLeaseLost) {
		logger.Error("reschedule on success", "error", err)
	}
	p.record("rescheduled", start)
}

// finalizeDecodeFailure handles a PermanentDecodeError (spec §7): a task
// whose Data no longer decodes into a valid envelope/schedule. Below
// PoisonCeiling consecutive decode failures, the row is rescheduled with
// the same backoff a publish failure gets — covering a transient
// deploy-order issue where a new payload shape is briefly unreadable by
// an old worker binary. Once PoisonCeiling would be reached, the row is
// poisoned instead: decode failures do not resolve on their own, so
// retrying indefinitely is pointless.
func (p *Pipeline) finalizeDecodeFailure(ctx context.Context, task *domain.Task, workerID string, cause error, logger *slog.Logger, start time.Time) {
	failures := task.ConsecutiveFailures + 1
	if failures < p.Config.PoisonCeiling {
		now := p.now()
		b := backoff(p.Config, failures)
		next := now.Add(b)
		logger.Warn("decode error, rescheduling with backoff", "error", cause, "consecutive_failures", failures, "backoff", b, "next_execution_time", next)
		if err := p.Store.Reschedule(ctx, task.TaskName, task.TaskInstance, workerID, next, false); err != nil && !errors.Is(err, domain.ErrLeaseLost) {
			logger.Error("reschedule on decode failure", "error", err)
		}
		p.record("rescheduled_after_decode_failure", start)
		return
	}

	logger.Error("permanent decode error, poisoning task", "error", cause, "consecutive_failures", failures)
	if perr := p.Store.Poison(ctx, task.TaskName, task.TaskInstance, workerID); perr != nil && !errors.Is(perr, domain.ErrLeaseLost) {
		logger.Error("poison task", "error", perr)
	}
	p.record("poisoned", start)
	if p.Notifier != nil {
		subject, body := notify.PoisonedTaskAlert(task.TaskName, task.TaskInstance, cause)
		if err := p.Notifier.Notify(ctx, subject, body); err != nil {
			logger.Error("send poisoned task alert", "error", err)
		}
	}
}

func (p *Pipeline) finalizeFailure(ctx context.Context, task *domain.Task, workerID string, logger *slog.Logger, start time.Time) {
	now := p.now()
	b := backoff(p.Config, task.ConsecutiveFailures+1)
	next := now.Add(b)
	logger.Warn("publish failed, rescheduling with backoff", "consecutive_failures", task.ConsecutiveFailures+1, "backoff", b, "next_execution_time", next)
	if err := p.Store.Reschedule(ctx, task.TaskName, task.TaskInstance, workerID, next, false); err != nil && !errors.Is(err, domain.ErrLeaseLost) {
		logger.Error("reschedule on failure", "error", err)
	}
	p.record("rescheduled_after_failure", start)
}

// heartbeatLoop calls Store.Heartbeat every lease_heartbeat_interval
// until ctx is done. It closes leaseLost (once) the first time
// Heartbeat reports the lease has been reassigned.
func (p *Pipeline) heartbeatLoop(ctx context.Context, taskName, taskInstance, workerID string, leaseLost chan struct{}) {
	ticker := time.NewTicker(p.Config.LeaseHeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Store.Heartbeat(ctx, taskName, taskInstance, workerID, p.now()); errors.Is(err, domain.ErrLeaseLost) {
				select {
				case <-leaseLost:
				default:
					close(leaseLost)
				}
				return
			}
		}
	}
}
