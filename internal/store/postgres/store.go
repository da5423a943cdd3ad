package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaypub/scheduler/internal/domain"
)

// duplicateKeyErrCode is Postgres's unique_violation SQLSTATE.
const duplicateKeyErrCode = "23505"

// Store implements store.Store against the scheduled_tasks table (see
// schema.sql). All mutators are single statements so each one is already
// its own transaction; ClaimDue and RecoverLeases additionally rely on
// FOR UPDATE SKIP LOCKED so concurrent callers never double-claim a row.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Insert(ctx context.Context, task *domain.Task) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scheduled_tasks (
			task_name, task_instance, execution_time, data,
			picked, consecutive_failures, version
		) VALUES ($1, $2, $3, $4, false, 0, 0)`,
		task.TaskName, task.TaskInstance, task.ExecutionTime, task.Data,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == duplicateKeyErrCode {
			return domain.ErrDuplicateInstance
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *Store) ClaimDue(ctx context.Context, now time.Time, workerID string, batchSize int) ([]*domain.Task, error) {
	if batchSize <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		UPDATE scheduled_tasks
		SET    picked         = true,
		       picked_by      = $1,
		       last_heartbeat = $2,
		       version        = version + 1
		WHERE (task_name, task_instance) IN (
			SELECT task_name, task_instance FROM scheduled_tasks
			WHERE  picked         = false
			  AND  poisoned       = false
			  AND  execution_time <= $2
			ORDER BY execution_time ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING task_name, task_instance, execution_time, data, picked,
		          picked_by, last_heartbeat, last_success, last_failure,
		          consecutive_failures, poisoned, version`,
		workerID, now, batchSize,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim due tasks: %w", err)
	}
	return tasks, nil
}

func (s *Store) Heartbeat(ctx context.Context, taskName, taskInstance, workerID string, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scheduled_tasks
		SET    last_heartbeat = $1
		WHERE  task_name = $2 AND task_instance = $3 AND picked_by = $4`,
		now, taskName, taskInstance, workerID,
	)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLeaseLost
	}
	return nil
}

func (s *Store) Complete(ctx context.Context, taskName, taskInstance, workerID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM scheduled_tasks
		WHERE task_name = $1 AND task_instance = $2 AND picked_by = $3`,
		taskName, taskInstance, workerID,
	)
	if err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLeaseLost
	}
	return nil
}

func (s *Store) Reschedule(ctx context.Context, taskName, taskInstance, workerID string, nextTime time.Time, onSuccess bool) error {
	now := time.Now().UTC()

	var tag pgconn.CommandTag
	var err error
	if onSuccess {
		tag, err = s.pool.Exec(ctx, `
			UPDATE scheduled_tasks
			SET    execution_time       = $1,
			       picked               = false,
			       picked_by            = NULL,
			       last_heartbeat       = NULL,
			       last_success         = $2,
			       consecutive_failures = 0,
			       version              = version + 1
			WHERE  task_name = $3 AND task_instance = $4 AND picked_by = $5`,
			nextTime, now, taskName, taskInstance, workerID,
		)
	} else {
		tag, err = s.pool.Exec(ctx, `
			UPDATE scheduled_tasks
			SET    execution_time       = $1,
			       picked               = false,
			       picked_by            = NULL,
			       last_heartbeat       = NULL,
			       last_failure         = $2,
			       consecutive_failures = consecutive_failures + 1,
			       version              = version + 1
			WHERE  task_name = $3 AND task_instance = $4 AND picked_by = $5`,
			nextTime, now, taskName, taskInstance, workerID,
		)
	}
	if err != nil {
		return fmt.Errorf("reschedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLeaseLost
	}
	return nil
}

func (s *Store) Poison(ctx context.Context, taskName, taskInstance, workerID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scheduled_tasks
		SET    poisoned       = true,
		       picked         = false,
		       picked_by      = NULL,
		       last_heartbeat = NULL,
		       version        = version + 1
		WHERE  task_name = $1 AND task_instance = $2 AND picked_by = $3`,
		taskName, taskInstance, workerID,
	)
	if err != nil {
		return fmt.Errorf("poison: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLeaseLost
	}
	return nil
}

func (s *Store) RecoverLeases(ctx context.Context, now time.Time, staleAfter time.Duration) (int, error) {
	cutoff := now.Add(-staleAfter)
	tag, err := s.pool.Exec(ctx, `
		UPDATE scheduled_tasks
		SET    picked         = false,
		       picked_by      = NULL,
		       last_heartbeat = NULL,
		       version        = version + 1
		WHERE (task_name, task_instance) IN (
			SELECT task_name, task_instance FROM scheduled_tasks
			WHERE  picked         = true
			  AND  last_heartbeat < $1
			FOR UPDATE SKIP LOCKED
		)`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("recover leases: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var t domain.Task
	err := row.Scan(
		&t.TaskName, &t.TaskInstance, &t.ExecutionTime, &t.Data, &t.Picked,
		&t.PickedBy, &t.LastHeartbeat, &t.LastSuccess, &t.LastFailure,
		&t.ConsecutiveFailures, &t.Poisoned, &t.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return &t, nil
}
