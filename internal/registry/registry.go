// Package registry implements the Task Registry (spec §4.5, C5): the
// Submit pipeline that resolves an ingress request into a persisted
// task row.
//
// Per spec §9's design note, this core registers a single "publish-
// payload" task kind whose Data carries the schedule descriptor,
// instead of maintaining a mutable task_name -> execute-callback table
// that grows with every schedule request — the execution pipeline
// already knows the one thing every row means (decode, publish,
// finalize), so there is nothing left for a callback table to resolve.
package registry

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/relaypub/scheduler/internal/domain"
	"github.com/relaypub/scheduler/internal/payload"
	"github.com/relaypub/scheduler/internal/recurrence"
	"github.com/relaypub/scheduler/internal/store"
)

// PublishPayloadTask is the single built-in task kind this core ships:
// republish a payload to a broker topic, on whatever schedule the
// request describes.
const PublishPayloadTask = "publish-payload"

var (
	simpleTopicRE  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9._~+%-]{2,254}$`)
	qualifiedTopicRE = regexp.MustCompile(`^projects/[^/]+/topics/[^/]+$`)
)

// Registry resolves ingress requests into persisted task rows.
type Registry struct {
	store Store
	now   func() time.Time
}

// Store is the subset of store.Store the registry needs.
type Store interface {
	Insert(ctx context.Context, task *domain.Task) error
}

var _ Store = (store.Store)(nil)

// New creates a Registry backed by st. now defaults to time.Now.
func New(st Store) *Registry {
	return &Registry{
		store: st,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, for deterministic tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// ScheduleRequest is the canonical ingress JSON shape (spec §6), already
// parsed. Use ParseRequest to build one from raw bytes (accepting both
// the canonical and legacy flat shapes).
type ScheduleRequest struct {
	Type                 recurrence.Kind
	ExecutionTime        time.Time // one-time
	Expression           string    // cron
	DelaySeconds         int       // fixed-delay
	Hour, Minute         int       // daily
	InitialExecutionTime *time.Time // optional, recurring

	TargetTopic string
	PayloadData []byte
	Attributes  map[string]string

	TaskName string // optional; required for dedup of recurring
}

// ValidationError wraps a rejected request. It is never persisted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

func validationErr(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func validateTopic(topic string) error {
	if simpleTopicRE.MatchString(topic) || qualifiedTopicRE.MatchString(topic) {
		return nil
	}
	return validationErr("invalid target topic %q", topic)
}

// buildSchedule validates req's schedule fields and returns the
// corresponding recurrence.Schedule, per spec §4.5 step 1.
func buildSchedule(req ScheduleRequest, now time.Time) (*recurrence.Schedule, error) {
	switch req.Type {
	case recurrence.KindOneTime, "":
		if !req.ExecutionTime.After(now) {
			return nil, validationErr("one-time executionTime must be in the future")
		}
		return recurrence.NewOneTime(req.ExecutionTime)
	case recurrence.KindCron:
		sched, err := recurrence.NewCron(req.Expression, nil)
		if err != nil {
			return nil, validationErr("%v", err)
		}
		return sched, nil
	case recurrence.KindFixedDelay:
		sched, err := recurrence.NewFixedDelay(time.Duration(req.DelaySeconds) * time.Second)
		if err != nil {
			return nil, validationErr("%v", err)
		}
		return sched, nil
	case recurrence.KindDaily:
		sched, err := recurrence.NewDaily(req.Hour, req.Minute, nil)
		if err != nil {
			return nil, validationErr("%v", err)
		}
		return sched, nil
	default:
		return nil, validationErr("unknown schedule type %q", req.Type)
	}
}

// Submit validates req, serializes the payload envelope, computes the
// first execution_time, assigns a task_instance, and inserts the row
// (spec §4.5). It returns domain.ErrDuplicateInstance unmodified so the
// ingress layer decides whether that's an error or a no-op (spec §7).
func (r *Registry) Submit(ctx context.Context, req ScheduleRequest) (*domain.Task, error) {
	if err := validateTopic(req.TargetTopic); err != nil {
		return nil, err
	}
	if len(req.PayloadData) == 0 {
		return nil, validationErr("payload data must not be empty")
	}

	now := r.now()
	sched, err := buildSchedule(req, now)
	if err != nil {
		return nil, err
	}

	var executionTime time.Time
	switch sched.Kind() {
	case recurrence.KindOneTime:
		executionTime = sched.FireAt()
	default:
		if req.InitialExecutionTime != nil {
			// Open question (spec §9): an initial time in the past fires
			// immediately rather than being rejected.
			executionTime = *req.InitialExecutionTime
		} else {
			next, ok := sched.Next(now)
			if !ok {
				return nil, validationErr("recurring schedule has no future occurrence")
			}
			executionTime = next
		}
	}

	taskInstance := req.TaskName
	if taskInstance == "" {
		taskInstance = uuid.NewString()
	}

	env := payload.Envelope{
		TargetTopic: req.TargetTopic,
		Data:        req.PayloadData,
		Attributes:  req.Attributes,
		Schedule:    payload.FromSchedule(sched),
	}
	data, err := env.Encode()
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}

	task := &domain.Task{
		TaskName:      PublishPayloadTask,
		TaskInstance:  taskInstance,
		ExecutionTime: executionTime,
		Data:          data,
	}

	if err := r.store.Insert(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}
