// Package domain holds the one persistent entity the scheduling engine
// operates on, and the error sentinels every layer above the store
// translates into its own response shape.
package domain

import (
	"errors"
	"time"
)

var (
	// ErrDuplicateInstance is returned by Store.Insert when (task_name,
	// task_instance) already exists.
	ErrDuplicateInstance = errors.New("task: duplicate task_name/task_instance")

	// ErrLeaseLost is returned by any lease-checked mutation whose
	// picked_by no longer matches the caller.
	ErrLeaseLost = errors.New("task: lease lost")

	// ErrTaskNotFound is returned when a row with the given primary key
	// does not exist.
	ErrTaskNotFound = errors.New("task: not found")
)

// Task is exactly one row per scheduled occurrence pending execution.
// See spec §3. Primary key is (TaskName, TaskInstance).
type Task struct {
	TaskName     string
	TaskInstance string

	ExecutionTime time.Time

	// Data is the opaque, serialized payload envelope (see package
	// payload). It is never mutated after insert — only the
	// scheduling/leasing fields below change.
	Data []byte

	Picked        bool
	PickedBy      *string
	LastHeartbeat *time.Time
	LastSuccess   *time.Time
	LastFailure   *time.Time

	ConsecutiveFailures int
	Poisoned            bool

	Version int
}

// Key returns the (task_name, task_instance) primary key as a pair.
func (t *Task) Key() (string, string) {
	return t.TaskName, t.TaskInstance
}
