// Package taskqueue implements the durable, per-specialty task queue: FIFO
// dispatch within a specialty, a pending-holding set for tasks still waiting
// on prerequisites, and promotion into the ready queue as dependencies
// complete.
//
// State lives in sqlite rather than a shared key-value store for the same
// reason as internal/lockservice: no example in this module's retrieval
// pack imports a real Redis client, so the queue/hash/set primitives the
// original design called for are reimplemented as sqlite tables guarded by
// "_txlock=immediate" transactions.
package taskqueue

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/foreman/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// Queue is the sqlite-backed task queue.
type Queue struct {
	db *sql.DB
}

// New opens (creating if necessary) the task queue's backing store at
// dbPath. ":memory:" is honored for tests.
func New(dbPath string) (*Queue, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create task queue database directory: %w", err)
			}
		}
	}
	dsn = dsn + "?_txlock=immediate&_busy_timeout=5000"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open task queue database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init task queue schema: %w", err)
	}

	return &Queue{db: db}, nil
}

// Close closes the underlying database connection.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue records task, initializes its status to pending, and either
// pushes it directly into its specialty's FIFO queue (no unmet
// prerequisites) or parks it in the pending set with the remaining
// dependency edges it needs to clear first.
func (q *Queue) Enqueue(ctx context.Context, task models.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.ID, err)
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enqueue transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, specialty, data, status, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET specialty = excluded.specialty, data = excluded.data
	`, task.ID, task.Specialty, string(data), string(models.TaskPending), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("insert task %s: %w", task.ID, err)
	}

	var remaining []string
	for _, dep := range task.DependsOn {
		completed, err := depCompletedTx(ctx, tx, dep)
		if err != nil {
			return err
		}
		if !completed {
			remaining = append(remaining, dep)
		}
	}

	if len(remaining) == 0 {
		if err := pushQueueTx(ctx, tx, task.Specialty, task.ID); err != nil {
			return err
		}
		return tx.Commit()
	}

	for _, dep := range remaining {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO deps (task_id, dep_id) VALUES (?, ?)`, task.ID, dep); err != nil {
			return fmt.Errorf("insert dep edge %s->%s: %w", task.ID, dep, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO pending (task_id) VALUES (?)`, task.ID); err != nil {
		return fmt.Errorf("add %s to pending set: %w", task.ID, err)
	}

	return tx.Commit()
}

func depCompletedTx(ctx context.Context, tx *sql.Tx, depID string) (bool, error) {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, depID).Scan(&status)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query dependency %s: %w", depID, err)
	}
	return status == string(models.TaskCompleted), nil
}

func pushQueueTx(ctx context.Context, tx *sql.Tx, specialty, taskID string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO queue_items (specialty, task_id) VALUES (?, ?)`, specialty, taskID)
	if err != nil {
		return fmt.Errorf("push %s onto %s queue: %w", taskID, specialty, err)
	}
	return nil
}

// Dequeue blocks (polling on a short interval) until a task is available on
// specialty's queue or timeout elapses, returning nil with no error on
// timeout. On success, the task's status is atomically advanced to
// in_progress before it's returned.
func (q *Queue) Dequeue(ctx context.Context, specialty string, timeout time.Duration) (*models.Task, error) {
	deadline := time.Now().Add(timeout)
	const pollInterval = 25 * time.Millisecond

	for {
		task, err := q.tryDequeue(ctx, specialty)
		if err != nil {
			return nil, err
		}
		if task != nil {
			return task, nil
		}

		if time.Now().After(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (q *Queue) tryDequeue(ctx context.Context, specialty string) (*models.Task, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin dequeue transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	var taskID string
	err = tx.QueryRowContext(ctx, `
		SELECT seq, task_id FROM queue_items WHERE specialty = ? ORDER BY seq ASC LIMIT 1
	`, specialty).Scan(&seq, &taskID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query queue head for %s: %w", specialty, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM queue_items WHERE seq = ?`, seq); err != nil {
		return nil, fmt.Errorf("pop queue item %d: %w", seq, err)
	}

	var data string
	if err := tx.QueryRowContext(ctx, `SELECT data FROM tasks WHERE id = ?`, taskID).Scan(&data); err != nil {
		return nil, fmt.Errorf("load task %s: %w", taskID, err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET status = ?, started_at = ? WHERE id = ?`, string(models.TaskInProgress), time.Now().UnixNano(), taskID); err != nil {
		return nil, fmt.Errorf("mark task %s in_progress: %w", taskID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dequeue: %w", err)
	}

	var task models.Task
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return nil, fmt.Errorf("unmarshal task %s: %w", taskID, err)
	}
	task.State = models.TaskInProgress
	return &task, nil
}

// MarkCompleted records result's terminal status for its task and, on
// success, runs promotion over the pending set.
func (q *Queue) MarkCompleted(ctx context.Context, taskID string, result models.TaskResult) error {
	status := models.TaskFailed
	if result.Success {
		status = models.TaskCompleted
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result for %s: %w", taskID, err)
	}

	if _, err := q.db.ExecContext(ctx, `UPDATE tasks SET status = ?, result = ? WHERE id = ?`, string(status), string(resultJSON), taskID); err != nil {
		return fmt.Errorf("mark task %s %s: %w", taskID, status, err)
	}

	if status == models.TaskCompleted {
		return q.promote(ctx, taskID)
	}
	return nil
}

// promote clears the completed task's dependency edge from every pending
// task that names it as a prerequisite, and pushes any pending task whose
// remaining-prerequisite set becomes empty into its specialty queue.
func (q *Queue) promote(ctx context.Context, completedID string) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin promotion transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT DISTINCT task_id FROM deps WHERE dep_id = ?`, completedID)
	if err != nil {
		return fmt.Errorf("query dependents of %s: %w", completedID, err)
	}
	var waiters []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan dependent of %s: %w", completedID, err)
		}
		waiters = append(waiters, id)
	}
	rows.Close()

	for _, waiterID := range waiters {
		if _, err := tx.ExecContext(ctx, `DELETE FROM deps WHERE task_id = ? AND dep_id = ?`, waiterID, completedID); err != nil {
			return fmt.Errorf("clear dep edge %s->%s: %w", waiterID, completedID, err)
		}

		var remaining int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM deps WHERE task_id = ?`, waiterID).Scan(&remaining); err != nil {
			return fmt.Errorf("count remaining deps for %s: %w", waiterID, err)
		}
		if remaining > 0 {
			continue
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM pending WHERE task_id = ?`, waiterID); err != nil {
			return fmt.Errorf("remove %s from pending set: %w", waiterID, err)
		}

		var specialty string
		if err := tx.QueryRowContext(ctx, `SELECT specialty FROM tasks WHERE id = ?`, waiterID).Scan(&specialty); err != nil {
			return fmt.Errorf("look up specialty for %s: %w", waiterID, err)
		}
		if err := pushQueueTx(ctx, tx, specialty, waiterID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RetryFailed moves a failed task back to pending and re-enqueues it onto
// its specialty queue directly; its dependencies were already satisfied the
// first time it was dequeued, so no dependency re-check is needed.
func (q *Queue) RetryFailed(ctx context.Context, taskID string) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin retry transaction: %w", err)
	}
	defer tx.Rollback()

	var status, specialty string
	if err := tx.QueryRowContext(ctx, `SELECT status, specialty FROM tasks WHERE id = ?`, taskID).Scan(&status, &specialty); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("retry failed task %s: unknown task", taskID)
		}
		return fmt.Errorf("look up task %s: %w", taskID, err)
	}
	if status != string(models.TaskFailed) {
		return fmt.Errorf("retry failed task %s: task is %s, not failed", taskID, status)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE id = ?`, string(models.TaskPending), taskID); err != nil {
		return fmt.Errorf("reset task %s to pending: %w", taskID, err)
	}
	if err := pushQueueTx(ctx, tx, specialty, taskID); err != nil {
		return err
	}

	return tx.Commit()
}

// StuckInProgress returns the ids of every task that has sat in_progress for
// longer than olderThan, measured from the moment Dequeue advanced it. Used
// by a recovery scanner (§7, §9 Open Question #3) to find work orphaned by a
// worker that crashed or was killed mid-task.
func (q *Queue) StuckInProgress(ctx context.Context, olderThan time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-olderThan).UnixNano()
	rows, err := q.db.QueryContext(ctx, `
		SELECT id FROM tasks
		WHERE status = ? AND started_at IS NOT NULL AND started_at < ?
	`, string(models.TaskInProgress), cutoff)
	if err != nil {
		return nil, fmt.Errorf("query stuck in_progress tasks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stuck task id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ResetToPending forcibly resets an in_progress task back onto its
// specialty's queue, for use by a recovery scanner reclaiming a task whose
// worker is known to be dead. Unlike RetryFailed this does not require the
// task to have reached a terminal state first.
func (q *Queue) ResetToPending(ctx context.Context, taskID string) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset transaction: %w", err)
	}
	defer tx.Rollback()

	var status, specialty string
	if err := tx.QueryRowContext(ctx, `SELECT status, specialty FROM tasks WHERE id = ?`, taskID).Scan(&status, &specialty); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("reset task %s: unknown task", taskID)
		}
		return fmt.Errorf("look up task %s: %w", taskID, err)
	}
	if status != string(models.TaskInProgress) {
		return fmt.Errorf("reset task %s: task is %s, not in_progress", taskID, status)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET status = ?, started_at = NULL WHERE id = ?`, string(models.TaskPending), taskID); err != nil {
		return fmt.Errorf("reset task %s to pending: %w", taskID, err)
	}
	if err := pushQueueTx(ctx, tx, specialty, taskID); err != nil {
		return err
	}

	return tx.Commit()
}

// Status returns the current lifecycle status of taskID.
func (q *Queue) Status(ctx context.Context, taskID string) (models.TaskState, error) {
	var status string
	err := q.db.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, taskID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("unknown task %s", taskID)
	}
	if err != nil {
		return "", fmt.Errorf("query status of %s: %w", taskID, err)
	}
	return models.TaskState(status), nil
}

// Result returns the TaskResult recorded by MarkCompleted for a terminal
// task. It errors if the task is unknown or hasn't reached a terminal
// state yet.
func (q *Queue) Result(ctx context.Context, taskID string) (*models.TaskResult, error) {
	var status, resultJSON sql.NullString
	err := q.db.QueryRowContext(ctx, `SELECT status, result FROM tasks WHERE id = ?`, taskID).Scan(&status, &resultJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("unknown task %s", taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("query result of %s: %w", taskID, err)
	}
	state := models.TaskState(status.String)
	if state != models.TaskCompleted && state != models.TaskFailed {
		return nil, fmt.Errorf("task %s has not reached a terminal state (status=%s)", taskID, state)
	}
	if !resultJSON.Valid || resultJSON.String == "" {
		return nil, fmt.Errorf("task %s has no recorded result", taskID)
	}
	var result models.TaskResult
	if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
		return nil, fmt.Errorf("unmarshal result for %s: %w", taskID, err)
	}
	return &result, nil
}

// QueueDepth returns how many tasks are currently waiting, ready to
// dequeue, in specialty's queue.
func (q *Queue) QueueDepth(ctx context.Context, specialty string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_items WHERE specialty = ?`, specialty).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue depth for %s: %w", specialty, err)
	}
	return n, nil
}

// PendingCount returns how many tasks are still holding for prerequisites.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return n, nil
}

// ClearQueue drains every ready (not-yet-dequeued) item from specialty's
// queue without touching task or dependency records.
func (q *Queue) ClearQueue(ctx context.Context, specialty string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM queue_items WHERE specialty = ?`, specialty); err != nil {
		return fmt.Errorf("clear queue %s: %w", specialty, err)
	}
	return nil
}
