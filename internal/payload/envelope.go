// Package payload defines the wire shape stored in a task's opaque Data
// column: target topic, raw bytes, string attributes, and the schedule
// descriptor needed to recompute the next fire time at finalize. Encoding
// is JSON, matching the rest of the repo's idiom for anything that
// crosses a process or storage boundary.
package payload

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/relaypub/scheduler/internal/recurrence"
)

// ScheduleDescriptor is the serializable form of a recurrence.Schedule.
// It round-trips through JSON so a task's recurrence survives a crash and
// a claim by a different worker.
type ScheduleDescriptor struct {
	Kind recurrence.Kind `json:"kind"`

	FireAt *time.Time `json:"fireAt,omitempty"`

	Expression string `json:"expression,omitempty"`
	Zone       string `json:"zone,omitempty"`

	DelaySeconds int64 `json:"delaySeconds,omitempty"`

	Hour   *int `json:"hour,omitempty"`
	Minute *int `json:"minute,omitempty"`
}

// FromSchedule converts a validated recurrence.Schedule into its wire
// descriptor.
func FromSchedule(s *recurrence.Schedule) ScheduleDescriptor {
	d := ScheduleDescriptor{Kind: s.Kind()}
	switch s.Kind() {
	case recurrence.KindOneTime:
		fireAt := s.FireAt()
		d.FireAt = &fireAt
	case recurrence.KindCron:
		d.Expression = s.Expression()
		d.Zone = s.Zone()
	case recurrence.KindFixedDelay:
		d.DelaySeconds = int64(s.Delay() / time.Second)
	case recurrence.KindDaily:
		hour, minute := s.HourMinute()
		d.Hour = &hour
		d.Minute = &minute
		d.Zone = s.Zone()
	}
	return d
}

// Schedule reconstructs and validates a recurrence.Schedule from its wire
// descriptor.
func (d ScheduleDescriptor) Schedule() (*recurrence.Schedule, error) {
	zone, err := loadZone(d.Zone)
	if err != nil {
		return nil, err
	}
	switch d.Kind {
	case recurrence.KindOneTime:
		if d.FireAt == nil {
			return nil, recurrence.ErrInvalidOneTime
		}
		return recurrence.NewOneTime(*d.FireAt)
	case recurrence.KindCron:
		return recurrence.NewCron(d.Expression, zone)
	case recurrence.KindFixedDelay:
		return recurrence.NewFixedDelay(time.Duration(d.DelaySeconds) * time.Second)
	case recurrence.KindDaily:
		if d.Hour == nil || d.Minute == nil {
			return nil, recurrence.ErrInvalidDaily
		}
		return recurrence.NewDaily(*d.Hour, *d.Minute, zone)
	default:
		return nil, recurrence.ErrUnknownKind
	}
}

func loadZone(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("payload: load zone %q: %w", name, err)
	}
	return loc, nil
}

// Envelope is what a task's Data column actually holds: enough to
// republish the payload and to recompute the next fire time.
type Envelope struct {
	TargetTopic string             `json:"targetTopic"`
	Data        []byte             `json:"data"`
	Attributes  map[string]string  `json:"attributes,omitempty"`
	Schedule    ScheduleDescriptor `json:"schedule"`
}

// Encode serializes the envelope for storage in Task.Data.
func (e Envelope) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("payload: encode envelope: %w", err)
	}
	return b, nil
}

// Decode deserializes a task's Data column back into an Envelope.
// Failure here is the PermanentDecodeError case in spec §7. The
// execution pipeline reschedules such a task with backoff until it
// reaches Config.PoisonCeiling consecutive failures, then poisons it.
func Decode(raw []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, fmt.Errorf("payload: decode envelope: %w", err)
	}
	return e, nil
}
