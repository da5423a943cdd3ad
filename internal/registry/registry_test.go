package registry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relaypub/scheduler/internal/domain"
	"github.com/relaypub/scheduler/internal/payload"
	"github.com/relaypub/scheduler/internal/recurrence"
	"github.com/relaypub/scheduler/internal/registry"
	"github.com/relaypub/scheduler/internal/store/storetest"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSubmit_OneTime_HappyPath(t *testing.T) {
	st := storetest.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reg := registry.New(st).WithClock(fixedClock(now))

	req := registry.ScheduleRequest{
		Type:          recurrence.KindOneTime,
		ExecutionTime: now.Add(500 * time.Millisecond),
		TargetTopic:   "orders.created",
		PayloadData:   []byte("hello"),
	}

	task, err := reg.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if task.TaskName != registry.PublishPayloadTask {
		t.Errorf("TaskName = %q, want %q", task.TaskName, registry.PublishPayloadTask)
	}
	if task.TaskInstance == "" {
		t.Error("expected a generated task_instance for an unnamed one-time task")
	}
	if !task.ExecutionTime.Equal(req.ExecutionTime) {
		t.Errorf("ExecutionTime = %v, want %v", task.ExecutionTime, req.ExecutionTime)
	}

	env, err := payload.Decode(task.Data)
	if err != nil {
		t.Fatalf("decode stored envelope: %v", err)
	}
	if env.TargetTopic != "orders.created" || string(env.Data) != "hello" {
		t.Errorf("stored envelope = %+v", env)
	}
}

func TestSubmit_OneTime_PastTimeRejected(t *testing.T) {
	st := storetest.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reg := registry.New(st).WithClock(fixedClock(now))

	_, err := reg.Submit(context.Background(), registry.ScheduleRequest{
		Type:          recurrence.KindOneTime,
		ExecutionTime: now.Add(-time.Second),
		TargetTopic:   "orders.created",
		PayloadData:   []byte("hello"),
	})
	var verr *registry.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError for past executionTime, got %v", err)
	}
}

func TestSubmit_DuplicateNamedRecurring_ReturnsDuplicateInstance(t *testing.T) {
	st := storetest.New()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	reg := registry.New(st).WithClock(fixedClock(now))

	req := registry.ScheduleRequest{
		Type:        recurrence.KindDaily,
		Hour:        9,
		Minute:      0,
		TargetTopic: "reports.daily",
		PayloadData: []byte("go"),
		TaskName:    "daily-report",
	}

	if _, err := reg.Submit(context.Background(), req); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err := reg.Submit(context.Background(), req)
	if !errors.Is(err, domain.ErrDuplicateInstance) {
		t.Fatalf("second submit: want ErrDuplicateInstance, got %v", err)
	}
	if st.Len() != 1 {
		t.Fatalf("expected exactly one row, got %d", st.Len())
	}
}

func TestSubmit_RecurringWithoutInitialTime_UsesRecurrenceNext(t *testing.T) {
	st := storetest.New()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	reg := registry.New(st).WithClock(fixedClock(now))

	task, err := reg.Submit(context.Background(), registry.ScheduleRequest{
		Type:        recurrence.KindCron,
		Expression:  "0 0 * * *",
		TargetTopic: "orders.created",
		PayloadData: []byte("hello"),
		TaskName:    "midnight-sync",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	want := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	if !task.ExecutionTime.Equal(want) {
		t.Errorf("ExecutionTime = %v, want %v (Recurrence.Next(now), not now+60s)", task.ExecutionTime, want)
	}
}

func TestSubmit_RecurringWithPastInitialTime_FiresImmediately(t *testing.T) {
	st := storetest.New()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	reg := registry.New(st).WithClock(fixedClock(now))

	past := now.Add(-time.Hour)
	task, err := reg.Submit(context.Background(), registry.ScheduleRequest{
		Type:                 recurrence.KindFixedDelay,
		DelaySeconds:          60,
		InitialExecutionTime: &past,
		TargetTopic:          "orders.created",
		PayloadData:          []byte("hello"),
		TaskName:             "catch-up-task",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !task.ExecutionTime.Equal(past) {
		t.Errorf("ExecutionTime = %v, want the in-the-past initial time %v (fires immediately)", task.ExecutionTime, past)
	}
}

func TestSubmit_InvalidTopic_Rejected(t *testing.T) {
	st := storetest.New()
	reg := registry.New(st)

	_, err := reg.Submit(context.Background(), registry.ScheduleRequest{
		Type:          recurrence.KindOneTime,
		ExecutionTime: time.Now().Add(time.Hour),
		TargetTopic:   "!!not-a-topic!!",
		PayloadData:   []byte("hello"),
	})
	var verr *registry.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError for bad topic, got %v", err)
	}
}

func TestSubmit_EmptyPayload_Rejected(t *testing.T) {
	st := storetest.New()
	reg := registry.New(st)

	_, err := reg.Submit(context.Background(), registry.ScheduleRequest{
		Type:          recurrence.KindOneTime,
		ExecutionTime: time.Now().Add(time.Hour),
		TargetTopic:   "orders.created",
	})
	var verr *registry.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError for empty payload, got %v", err)
	}
}

func TestSubmit_InvalidCron_Rejected(t *testing.T) {
	st := storetest.New()
	reg := registry.New(st)

	_, err := reg.Submit(context.Background(), registry.ScheduleRequest{
		Type:        recurrence.KindCron,
		Expression:  "not a cron",
		TargetTopic: "orders.created",
		PayloadData: []byte("hello"),
	})
	var verr *registry.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError for invalid cron, got %v", err)
	}
}

func TestParseRequest_CanonicalAndLegacyShapesAgree(t *testing.T) {
	canonical := []byte(`{
		"schedule": {"type": "one-time", "executionTime": 1735689600000},
		"targetTopic": "orders.created",
		"payload": {"data": "aGVsbG8=", "attributes": {"k": "v"}}
	}`)
	legacy := []byte(`{
		"executionTime": 1735689600000,
		"targetTopic": "orders.created",
		"payload": {"data": "aGVsbG8=", "attributes": {"k": "v"}}
	}`)

	reqA, err := registry.ParseRequest(canonical)
	if err != nil {
		t.Fatalf("parse canonical: %v", err)
	}
	reqB, err := registry.ParseRequest(legacy)
	if err != nil {
		t.Fatalf("parse legacy: %v", err)
	}

	if reqA.Type != recurrence.KindOneTime || reqB.Type != recurrence.KindOneTime {
		t.Fatalf("both shapes should parse as one-time: %v / %v", reqA.Type, reqB.Type)
	}
	if !reqA.ExecutionTime.Equal(reqB.ExecutionTime) {
		t.Errorf("ExecutionTime mismatch: %v vs %v", reqA.ExecutionTime, reqB.ExecutionTime)
	}
	if string(reqA.PayloadData) != "hello" || string(reqB.PayloadData) != "hello" {
		t.Errorf("payload decode mismatch: %q / %q", reqA.PayloadData, reqB.PayloadData)
	}
}

func TestParseRequest_RoundTripsThroughMarshalCanonical(t *testing.T) {
	original := []byte(`{
		"schedule": {"type": "cron", "expression": "*/5 * * * *"},
		"targetTopic": "projects/demo/topics/events",
		"payload": {"data": "aGVsbG8="},
		"taskName": "every-five"
	}`)

	req, err := registry.ParseRequest(original)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	remarshaled, err := registry.MarshalCanonical(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	reparsed, err := registry.ParseRequest(remarshaled)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}

	if reparsed.Expression != req.Expression || reparsed.TargetTopic != req.TargetTopic || reparsed.TaskName != req.TaskName {
		t.Errorf("round trip mismatch: got %+v, want %+v", reparsed, req)
	}
}
