package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lanread/internal/models"
)

// EnqueueTask inserts a pending task. Used directly by tests and tools;
// the annotation write path enqueues through enqueueTaskTx instead so the
// task commits atomically with the domain write.
func (db *DB) EnqueueTask(ctx context.Context, task *models.SyncTask) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return db.enqueueTaskTx(tx, task)
	})
}

func (db *DB) enqueueTaskTx(tx *sql.Tx, task *models.SyncTask) error {
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}

	query := `INSERT INTO sync_queue (task_type, book_id, payload, status, retry_count, last_error, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.Exec(query,
		task.TaskType,
		task.BookID,
		task.Payload,
		task.Status,
		task.RetryCount,
		task.LastError,
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue sync task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id

	return nil
}

// ClaimNextPending selects the single oldest pending task and marks it
// in_progress in one transaction. Returns nil when the queue is empty.
func (db *DB) ClaimNextPending(ctx context.Context) (*models.SyncTask, error) {
	var task models.SyncTask
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT id, task_type, book_id, payload, status, retry_count, last_error, created_at, processed_at
                  FROM sync_queue WHERE status = 'pending'
                  ORDER BY created_at ASC, id ASC LIMIT 1`
		row := tx.QueryRow(query)
		if err := row.Scan(
			&task.ID, &task.TaskType, &task.BookID, &task.Payload, &task.Status,
			&task.RetryCount, &task.LastError, &task.CreatedAt, &task.ProcessedAt,
		); err != nil {
			return err
		}

		if _, err := tx.Exec(`UPDATE sync_queue SET status = 'in_progress' WHERE id = ?`, task.ID); err != nil {
			return fmt.Errorf("failed to claim sync task %d: %w", task.ID, err)
		}
		task.Status = models.TaskStatusInProgress
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch next pending task: %w", err)
	}
	return &task, nil
}

// MarkTaskSynced removes a delivered task from the queue.
func (db *DB) MarkTaskSynced(ctx context.Context, id int64) error {
	if _, err := db.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete synced task %d: %w", id, err)
	}
	return nil
}

// MarkTaskFailed records a delivery failure. With shouldRetry the task goes
// back to pending carrying the new retry count; otherwise it becomes
// terminally failed and is kept for audit.
func (db *DB) MarkTaskFailed(ctx context.Context, id int64, retryCount int, shouldRetry bool, errMsg string) error {
	var err error
	if shouldRetry {
		_, err = db.db.ExecContext(ctx,
			`UPDATE sync_queue SET status = 'pending', retry_count = ?, last_error = ? WHERE id = ?`,
			retryCount, errMsg, id)
	} else {
		now := time.Now()
		_, err = db.db.ExecContext(ctx,
			`UPDATE sync_queue SET status = 'failed', retry_count = ?, last_error = ?, processed_at = ? WHERE id = ?`,
			retryCount, errMsg, now, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update task %d after failure: %w", id, err)
	}
	return nil
}

// ResetInProgressTasks reverts tasks stuck in_progress from a prior crash
// back to pending. Run once at startup before the first drain.
func (db *DB) ResetInProgressTasks(ctx context.Context) (int64, error) {
	result, err := db.db.ExecContext(ctx, `UPDATE sync_queue SET status = 'pending' WHERE status = 'in_progress'`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset in-progress tasks: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reset tasks: %w", err)
	}
	return n, nil
}

// GetFailedTasks returns terminally failed tasks, newest first.
func (db *DB) GetFailedTasks(ctx context.Context) ([]models.SyncTask, error) {
	query := `SELECT id, task_type, book_id, payload, status, retry_count, last_error, created_at, processed_at
              FROM sync_queue WHERE status = 'failed' ORDER BY created_at DESC`
	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed sync tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// CountPendingTasks reports the queue depth, used for the pending gauge.
func (db *DB) CountPendingTasks(ctx context.Context) (int64, error) {
	var n int64
	err := db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending tasks: %w", err)
	}
	return n, nil
}

// GetTask loads a single task by id. Returns nil when absent.
func (db *DB) GetTask(ctx context.Context, id int64) (*models.SyncTask, error) {
	query := `SELECT id, task_type, book_id, payload, status, retry_count, last_error, created_at, processed_at
              FROM sync_queue WHERE id = ?`
	var t models.SyncTask
	err := db.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.TaskType, &t.BookID, &t.Payload, &t.Status,
		&t.RetryCount, &t.LastError, &t.CreatedAt, &t.ProcessedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync task %d: %w", id, err)
	}
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]models.SyncTask, error) {
	var tasks []models.SyncTask
	for rows.Next() {
		var t models.SyncTask
		err := rows.Scan(
			&t.ID, &t.TaskType, &t.BookID, &t.Payload, &t.Status,
			&t.RetryCount, &t.LastError, &t.CreatedAt, &t.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
