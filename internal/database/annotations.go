package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lanread/internal/models"
)

// CreateAnnotation stores a new highlight and, in the same transaction,
// enqueues the derived sync tasks: one highlight task, plus a note task when
// the highlight carries note text. If the insert rolls back, so do the
// enqueues.
func (db *DB) CreateAnnotation(ctx context.Context, a *models.Annotation) error {
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.Exec(
			`INSERT INTO annotations (book_id, book_title, author, chapter, text, note, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.BookID, a.BookTitle, a.Author, a.Chapter, a.Text, a.Note, a.CreatedAt, a.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create annotation: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		a.ID = id

		task, err := buildTask(models.TaskTypeHighlight, a, a.CreatedAt)
		if err != nil {
			return err
		}
		if err := db.enqueueTaskTx(tx, task); err != nil {
			return err
		}

		if a.Note != "" {
			noteTask, err := buildTask(models.TaskTypeNote, a, a.CreatedAt)
			if err != nil {
				return err
			}
			if err := db.enqueueTaskTx(tx, noteTask); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateAnnotationNote changes only the note field of an annotation and
// enqueues a note task inside the same transaction. The task payload is a
// snapshot of the committed field values, never a live reference.
func (db *DB) UpdateAnnotationNote(ctx context.Context, id int64, note string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		result, err := tx.Exec(`UPDATE annotations SET note = ?, updated_at = ? WHERE id = ?`, note, now, id)
		if err != nil {
			return fmt.Errorf("failed to update annotation note: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check updated rows: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("annotation %d not found", id)
		}

		var a models.Annotation
		row := tx.QueryRow(
			`SELECT id, book_id, book_title, author, chapter, text, note, created_at, updated_at
             FROM annotations WHERE id = ?`, id)
		if err := row.Scan(&a.ID, &a.BookID, &a.BookTitle, &a.Author, &a.Chapter, &a.Text, &a.Note, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return fmt.Errorf("failed to reload annotation %d: %w", id, err)
		}

		task, err := buildTask(models.TaskTypeNote, &a, now)
		if err != nil {
			return err
		}
		return db.enqueueTaskTx(tx, task)
	})
}

// GetAnnotation loads one annotation by id. Returns nil when absent.
func (db *DB) GetAnnotation(ctx context.Context, id int64) (*models.Annotation, error) {
	var a models.Annotation
	err := db.db.QueryRowContext(ctx,
		`SELECT id, book_id, book_title, author, chapter, text, note, created_at, updated_at
         FROM annotations WHERE id = ?`, id).
		Scan(&a.ID, &a.BookID, &a.BookTitle, &a.Author, &a.Chapter, &a.Text, &a.Note, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get annotation %d: %w", id, err)
	}
	return &a, nil
}

// GetAnnotations lists all annotations, oldest first. Used by the exporter.
func (db *DB) GetAnnotations(ctx context.Context) ([]models.Annotation, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT id, book_id, book_title, author, chapter, text, note, created_at, updated_at
         FROM annotations ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list annotations: %w", err)
	}
	defer rows.Close()

	var out []models.Annotation
	for rows.Next() {
		var a models.Annotation
		if err := rows.Scan(&a.ID, &a.BookID, &a.BookTitle, &a.Author, &a.Chapter, &a.Text, &a.Note, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan annotation: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func buildTask(taskType string, a *models.Annotation, eventAt time.Time) (*models.SyncTask, error) {
	payload := models.TaskPayload{
		BookID:    a.BookID,
		BookTitle: a.BookTitle,
		Author:    a.Author,
		Chapter:   a.Chapter,
		EventAt:   eventAt,
	}
	switch taskType {
	case models.TaskTypeHighlight:
		payload.Text = a.Text
	case models.TaskTypeNote:
		payload.Note = a.Note
	default:
		return nil, fmt.Errorf("unknown task type: %s", taskType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode task payload: %w", err)
	}

	return &models.SyncTask{
		TaskType: taskType,
		BookID:   a.BookID,
		Payload:  string(raw),
		Status:   models.TaskStatusPending,
	}, nil
}
