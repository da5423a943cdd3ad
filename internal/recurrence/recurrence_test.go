package recurrence_test

import (
	"errors"
	"testing"
	"time"

	"github.com/relaypub/scheduler/internal/recurrence"
)

func mustUTC(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestOneTime_FiresOnceThenExhausts(t *testing.T) {
	fireAt := mustUTC("2026-01-01T00:00:00Z")
	sched, err := recurrence.NewOneTime(fireAt)
	if err != nil {
		t.Fatalf("NewOneTime: %v", err)
	}

	next, ok := sched.Next(fireAt.Add(-time.Second))
	if !ok || !next.Equal(fireAt) {
		t.Fatalf("Next before fire = %v, %v; want %v, true", next, ok, fireAt)
	}

	_, ok = sched.Next(fireAt)
	if ok {
		t.Fatalf("Next at/after fire should report exhausted")
	}
}

func TestOneTime_RejectsZeroValue(t *testing.T) {
	if _, err := recurrence.NewOneTime(time.Time{}); !errors.Is(err, recurrence.ErrInvalidOneTime) {
		t.Fatalf("want ErrInvalidOneTime, got %v", err)
	}
}

func TestFixedDelay_AddsDelayToAfter(t *testing.T) {
	sched, err := recurrence.NewFixedDelay(90 * time.Second)
	if err != nil {
		t.Fatalf("NewFixedDelay: %v", err)
	}
	after := mustUTC("2026-01-01T00:00:00Z")
	next, ok := sched.Next(after)
	if !ok {
		t.Fatal("expected ok")
	}
	want := after.Add(90 * time.Second)
	if !next.Equal(want) {
		t.Fatalf("Next = %v, want %v", next, want)
	}
}

func TestFixedDelay_RejectsNonPositive(t *testing.T) {
	if _, err := recurrence.NewFixedDelay(0); !errors.Is(err, recurrence.ErrInvalidFixedDelay) {
		t.Fatalf("want ErrInvalidFixedDelay for 0, got %v", err)
	}
	if _, err := recurrence.NewFixedDelay(-time.Second); !errors.Is(err, recurrence.ErrInvalidFixedDelay) {
		t.Fatalf("want ErrInvalidFixedDelay for negative, got %v", err)
	}
}

func TestFixedDelay_SmallestPositiveAccepted(t *testing.T) {
	if _, err := recurrence.NewFixedDelay(time.Nanosecond); err != nil {
		t.Fatalf("smallest positive delay should be accepted: %v", err)
	}
}

func TestDaily_StrictlyAfterMidnightBoundary(t *testing.T) {
	sched, err := recurrence.NewDaily(0, 0, nil)
	if err != nil {
		t.Fatalf("NewDaily: %v", err)
	}
	midnight := mustUTC("2026-01-01T00:00:00Z")
	next, ok := sched.Next(midnight)
	if !ok {
		t.Fatal("expected ok")
	}
	want := midnight.AddDate(0, 0, 1)
	if !next.Equal(want) {
		t.Fatalf("Next(midnight) = %v, want %v (strict inequality, 24h later)", next, want)
	}
}

func TestDaily_SameDayWhenBeforeTimeOfDay(t *testing.T) {
	sched, err := recurrence.NewDaily(9, 30, nil)
	if err != nil {
		t.Fatalf("NewDaily: %v", err)
	}
	after := mustUTC("2026-01-01T08:00:00Z")
	next, _ := sched.Next(after)
	want := mustUTC("2026-01-01T09:30:00Z")
	if !next.Equal(want) {
		t.Fatalf("Next = %v, want %v", next, want)
	}
}

func TestDaily_RejectsOutOfRange(t *testing.T) {
	if _, err := recurrence.NewDaily(24, 0, nil); !errors.Is(err, recurrence.ErrInvalidDaily) {
		t.Fatalf("want ErrInvalidDaily for hour=24, got %v", err)
	}
	if _, err := recurrence.NewDaily(0, 60, nil); !errors.Is(err, recurrence.ErrInvalidDaily) {
		t.Fatalf("want ErrInvalidDaily for minute=60, got %v", err)
	}
}

func TestCron_DailyAtMidnight(t *testing.T) {
	sched, err := recurrence.NewCron("0 0 * * *", nil)
	if err != nil {
		t.Fatalf("NewCron: %v", err)
	}
	after := mustUTC("2024-01-01T10:00:00Z")
	next, ok := sched.Next(after)
	if !ok {
		t.Fatal("expected ok")
	}
	want := mustUTC("2024-01-02T00:00:00Z")
	if !next.Equal(want) {
		t.Fatalf("Next = %v, want %v", next, want)
	}

	afterSuccess, ok := sched.Next(next)
	if !ok {
		t.Fatal("expected ok")
	}
	wantSecond := mustUTC("2024-01-03T00:00:00Z")
	if !afterSuccess.Equal(wantSecond) {
		t.Fatalf("second Next = %v, want %v", afterSuccess, wantSecond)
	}
}

func TestCron_RejectsInvalidExpression(t *testing.T) {
	if _, err := recurrence.NewCron("not a cron expr", nil); !errors.Is(err, recurrence.ErrInvalidCron) {
		t.Fatalf("want ErrInvalidCron, got %v", err)
	}
}

func TestCron_SixFieldWithSeconds(t *testing.T) {
	sched, err := recurrence.NewCron("*/30 * * * * *", nil)
	if err != nil {
		t.Fatalf("NewCron with seconds field: %v", err)
	}
	after := mustUTC("2026-01-01T00:00:00Z")
	next, ok := sched.Next(after)
	if !ok {
		t.Fatal("expected ok")
	}
	want := mustUTC("2026-01-01T00:00:30Z")
	if !next.Equal(want) {
		t.Fatalf("Next = %v, want %v", next, want)
	}
}

// P4: Next(Next(t)) is strictly monotonic for every recurring variant.
func TestMonotonic_AllRecurringVariants(t *testing.T) {
	after := mustUTC("2026-03-01T12:00:00Z")

	variants := map[string]*recurrence.Schedule{}
	cronSched, _ := recurrence.NewCron("*/15 * * * *", nil)
	variants["cron"] = cronSched
	delaySched, _ := recurrence.NewFixedDelay(5 * time.Minute)
	variants["fixed-delay"] = delaySched
	dailySched, _ := recurrence.NewDaily(3, 0, nil)
	variants["daily"] = dailySched

	for name, sched := range variants {
		first, ok := sched.Next(after)
		if !ok {
			t.Fatalf("%s: expected ok", name)
		}
		second, ok := sched.Next(first)
		if !ok {
			t.Fatalf("%s: expected ok", name)
		}
		if !second.After(first) {
			t.Fatalf("%s: Next(Next(t))=%v is not strictly after Next(t)=%v", name, second, first)
		}
	}
}

func TestCron_LeapSecondBoundaryMatchesNonLeapDay(t *testing.T) {
	sched, err := recurrence.NewCron("0 12 * * *", nil)
	if err != nil {
		t.Fatalf("NewCron: %v", err)
	}
	leapDay := mustUTC("2024-02-28T23:59:59Z")
	next, ok := sched.Next(leapDay)
	if !ok {
		t.Fatal("expected ok")
	}
	want := mustUTC("2024-02-29T12:00:00Z")
	if !next.Equal(want) {
		t.Fatalf("Next = %v, want %v", next, want)
	}
}
