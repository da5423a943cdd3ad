// Package recurrence implements the pure function from (schedule spec,
// reference instant) to next fire instant. It has no I/O and no
// dependency on the store or clock beyond the instant it's given, so it
// is fully unit-testable and replayable during lease recovery.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind tags the closed set of schedule variants. There is no open
// polymorphism here — Schedule is a tagged union, not an interface with
// arbitrary implementations.
type Kind string

const (
	KindOneTime    Kind = "one-time"
	KindCron       Kind = "cron"
	KindFixedDelay Kind = "fixed-delay"
	KindDaily      Kind = "daily"
)

var (
	ErrInvalidCron       = errors.New("recurrence: invalid cron expression")
	ErrInvalidFixedDelay = errors.New("recurrence: delay must be positive")
	ErrInvalidDaily      = errors.New("recurrence: hour/minute out of range")
	ErrInvalidOneTime    = errors.New("recurrence: fire_at is required")
	ErrUnknownKind       = errors.New("recurrence: unknown schedule kind")
)

// cronParser accepts both the 5-field standard form and an optional
// leading seconds field, matching the "5- or 6-field" requirement.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Schedule is the closed, tagged variant described in spec §4.2.
// Construct one via the New* constructors — they validate.
type Schedule struct {
	kind Kind

	// OneTime
	fireAt time.Time

	// Cron
	expression string
	zone       *time.Location
	cronSched  cron.Schedule

	// FixedDelay
	delay time.Duration

	// Daily
	hour   int
	minute int
}

// Kind reports which variant this schedule is.
func (s *Schedule) Kind() Kind { return s.kind }

// NewOneTime validates and returns a OneTime schedule firing at fireAt.
func NewOneTime(fireAt time.Time) (*Schedule, error) {
	if fireAt.IsZero() {
		return nil, ErrInvalidOneTime
	}
	return &Schedule{kind: KindOneTime, fireAt: fireAt}, nil
}

// NewCron validates expression against a 5- or 6-field cron grammar and
// returns a Cron schedule. zone defaults to UTC when nil.
func NewCron(expression string, zone *time.Location) (*Schedule, error) {
	if zone == nil {
		zone = time.UTC
	}
	sched, err := cronParser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCron, expression, err)
	}
	return &Schedule{kind: KindCron, expression: expression, zone: zone, cronSched: sched}, nil
}

// NewFixedDelay validates delay > 0 and returns a FixedDelay schedule.
func NewFixedDelay(delay time.Duration) (*Schedule, error) {
	if delay <= 0 {
		return nil, ErrInvalidFixedDelay
	}
	return &Schedule{kind: KindFixedDelay, delay: delay}, nil
}

// NewDaily validates hour in [0,23] and minute in [0,59] and returns a
// Daily schedule. zone defaults to UTC when nil.
func NewDaily(hour, minute int, zone *time.Location) (*Schedule, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, ErrInvalidDaily
	}
	if zone == nil {
		zone = time.UTC
	}
	return &Schedule{kind: KindDaily, hour: hour, minute: minute, zone: zone}, nil
}

// Next returns the next instant strictly after `after` at which this
// schedule fires. ok is false only for an exhausted OneTime schedule
// (after >= fire_at), signalling the caller should complete the task
// instead of rescheduling it.
func (s *Schedule) Next(after time.Time) (next time.Time, ok bool) {
	switch s.kind {
	case KindOneTime:
		if after.Before(s.fireAt) {
			return s.fireAt, true
		}
		return time.Time{}, false

	case KindCron:
		// cron.Schedule.Next matches fields against the wall clock of
		// the time it is given, so after is moved into the schedule's
		// zone first. The result is returned in that zone; it is the
		// same instant in any other location.
		localAfter := after.In(s.zone)
		n := s.cronSched.Next(localAfter)
		return n, true

	case KindFixedDelay:
		return after.Add(s.delay), true

	case KindDaily:
		local := after.In(s.zone)
		candidate := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.zone)
		if !candidate.After(local) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate, true

	default:
		return time.Time{}, false
	}
}

// Descriptor fields, used by package payload to (de)serialize a
// Schedule alongside a task's data without exposing unexported fields.

// Expression returns the raw cron expression (KindCron only).
func (s *Schedule) Expression() string { return s.expression }

// Zone returns the configured IANA zone name, defaulting to "UTC".
func (s *Schedule) Zone() string {
	if s.zone == nil {
		return "UTC"
	}
	return s.zone.String()
}

// FireAt returns the one-time fire instant (KindOneTime only).
func (s *Schedule) FireAt() time.Time { return s.fireAt }

// Delay returns the fixed delay (KindFixedDelay only).
func (s *Schedule) Delay() time.Duration { return s.delay }

// HourMinute returns the daily hour/minute (KindDaily only).
func (s *Schedule) HourMinute() (int, int) { return s.hour, s.minute }
