package registry

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/relaypub/scheduler/internal/recurrence"
)

// wireSchedule mirrors the canonical JSON schedule object (spec §6).
type wireSchedule struct {
	Type                 string `json:"type"`
	ExecutionTime        *int64 `json:"executionTime"`
	Expression           string `json:"expression"`
	DelaySeconds         *int   `json:"delaySeconds"`
	Hour                 *int   `json:"hour"`
	Minute               *int   `json:"minute"`
	InitialExecutionTime *int64 `json:"initialExecutionTime"`
}

type wirePayload struct {
	Data       string            `json:"data"`
	Attributes map[string]string `json:"attributes"`
}

// wireRequest mirrors the canonical JSON request shape (spec §6).
type wireRequest struct {
	Schedule    *wireSchedule `json:"schedule"`
	TargetTopic string        `json:"targetTopic"`
	Payload     wirePayload   `json:"payload"`
	TaskName    string        `json:"taskName"`

	// Legacy flat shape: {executionTime, targetTopic, payload}.
	ExecutionTime *int64 `json:"executionTime"`
}

func epochMillisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// ParseRequest accepts both the canonical nested shape and the legacy
// flat {executionTime, targetTopic, payload} shape (spec §6), decoding
// the base64 payload and validating none of the required fields are
// missing before handing back a ScheduleRequest for Submit.
func ParseRequest(raw []byte) (ScheduleRequest, error) {
	var w wireRequest
	if err := json.Unmarshal(raw, &w); err != nil {
		return ScheduleRequest{}, validationErr("malformed request JSON: %v", err)
	}

	data, err := base64.StdEncoding.DecodeString(w.Payload.Data)
	if err != nil {
		return ScheduleRequest{}, validationErr("payload.data is not valid base64: %v", err)
	}

	req := ScheduleRequest{
		TargetTopic: w.TargetTopic,
		PayloadData: data,
		Attributes:  w.Payload.Attributes,
		TaskName:    w.TaskName,
	}

	if w.Schedule == nil {
		// Legacy flat shape: always one-time.
		if w.ExecutionTime == nil {
			return ScheduleRequest{}, validationErr("missing executionTime")
		}
		req.Type = recurrence.KindOneTime
		req.ExecutionTime = epochMillisToTime(*w.ExecutionTime)
		return req, nil
	}

	req.Type = recurrence.Kind(w.Schedule.Type)
	switch req.Type {
	case recurrence.KindOneTime:
		if w.Schedule.ExecutionTime == nil {
			return ScheduleRequest{}, validationErr("one-time schedule missing executionTime")
		}
		req.ExecutionTime = epochMillisToTime(*w.Schedule.ExecutionTime)
	case recurrence.KindCron:
		req.Expression = w.Schedule.Expression
	case recurrence.KindFixedDelay:
		if w.Schedule.DelaySeconds == nil {
			return ScheduleRequest{}, validationErr("fixed-delay schedule missing delaySeconds")
		}
		req.DelaySeconds = *w.Schedule.DelaySeconds
	case recurrence.KindDaily:
		if w.Schedule.Hour == nil || w.Schedule.Minute == nil {
			return ScheduleRequest{}, validationErr("daily schedule missing hour/minute")
		}
		req.Hour, req.Minute = *w.Schedule.Hour, *w.Schedule.Minute
	default:
		return ScheduleRequest{}, validationErr("unknown schedule type %q", w.Schedule.Type)
	}

	if w.Schedule.InitialExecutionTime != nil {
		t := epochMillisToTime(*w.Schedule.InitialExecutionTime)
		req.InitialExecutionTime = &t
	}

	return req, nil
}

// MarshalCanonical re-encodes req in the canonical wire shape; used by
// the `parse` CLI command to echo back what was accepted and by tests
// asserting the parse+emit round trip (spec §8).
func MarshalCanonical(req ScheduleRequest) ([]byte, error) {
	w := wireRequest{
		TargetTopic: req.TargetTopic,
		Payload: wirePayload{
			Data:       base64.StdEncoding.EncodeToString(req.PayloadData),
			Attributes: req.Attributes,
		},
		TaskName: req.TaskName,
		Schedule: &wireSchedule{Type: string(req.Type)},
	}

	switch req.Type {
	case recurrence.KindOneTime:
		ms := req.ExecutionTime.UnixMilli()
		w.Schedule.ExecutionTime = &ms
	case recurrence.KindCron:
		w.Schedule.Expression = req.Expression
	case recurrence.KindFixedDelay:
		w.Schedule.DelaySeconds = &req.DelaySeconds
	case recurrence.KindDaily:
		w.Schedule.Hour, w.Schedule.Minute = &req.Hour, &req.Minute
	}
	if req.InitialExecutionTime != nil {
		ms := req.InitialExecutionTime.UnixMilli()
		w.Schedule.InitialExecutionTime = &ms
	}

	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshal canonical request: %w", err)
	}
	return b, nil
}
