// Package store defines the Task Store contract (spec §4.1): a small,
// purely operational surface with no business logic. Every operation is
// a single transaction; all coordination across worker processes happens
// here, not through any external coordinator.
package store

import (
	"context"
	"time"

	"github.com/relaypub/scheduler/internal/domain"
)

// Store is the durable task store. Implementations must guarantee that
// two workers never both believe they hold the lease on the same
// (task_name, task_instance) — see ClaimDue.
type Store interface {
	// Insert persists a new task row. Returns domain.ErrDuplicateInstance
	// if (task_name, task_instance) already exists.
	Insert(ctx context.Context, task *domain.Task) error

	// ClaimDue atomically claims up to batchSize rows where
	// picked=false and execution_time<=now, ordered by execution_time
	// ascending, and marks them picked=true/picked_by=workerID/
	// last_heartbeat=now. Implementations must use row-level locking
	// (FOR UPDATE SKIP LOCKED or equivalent) so concurrent callers never
	// claim the same row.
	ClaimDue(ctx context.Context, now time.Time, workerID string, batchSize int) ([]*domain.Task, error)

	// Heartbeat extends the lease iff picked_by==workerID. Returns
	// domain.ErrLeaseLost otherwise.
	Heartbeat(ctx context.Context, taskName, taskInstance, workerID string, now time.Time) error

	// Complete deletes the row iff picked_by==workerID. Returns
	// domain.ErrLeaseLost otherwise.
	Complete(ctx context.Context, taskName, taskInstance, workerID string) error

	// Reschedule updates a task's execution_time and releases its lease,
	// iff picked_by==workerID. onSuccess controls whether
	// last_success/consecutive_failures=0 or last_failure/
	// consecutive_failures++ is recorded.
	Reschedule(ctx context.Context, taskName, taskInstance, workerID string, nextTime time.Time, onSuccess bool) error

	// Poison marks a task as permanently undecodable, iff
	// picked_by==workerID. Poisoned tasks are excluded from ClaimDue and
	// RecoverLeases forever after.
	Poison(ctx context.Context, taskName, taskInstance, workerID string) error

	// RecoverLeases forcibly releases any row where picked=true and
	// last_heartbeat is older than staleAfter, returning the count
	// reclaimed. This is the only mechanism that reclaims work from
	// crashed workers. Must be cheap when nothing is stale.
	RecoverLeases(ctx context.Context, now time.Time, staleAfter time.Duration) (int, error)
}
