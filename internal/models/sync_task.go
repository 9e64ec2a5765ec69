package models

import "time"

// SyncTask represents a queued delivery of one annotation event to the
// remote workspace.
type SyncTask struct {
	ID          int64      `json:"id"`
	TaskType    string     `json:"task_type"`
	BookID      string     `json:"book_id"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// TaskPayload is the immutable snapshot persisted in SyncTask.Payload.
// It carries everything needed to deliver the event; the task never reads
// back from the live annotation record.
type TaskPayload struct {
	BookID    string    `json:"book_id"`
	BookTitle string    `json:"book_title"`
	Author    string    `json:"author,omitempty"`
	Chapter   string    `json:"chapter,omitempty"`
	Text      string    `json:"text,omitempty"`
	Note      string    `json:"note,omitempty"`
	EventAt   time.Time `json:"event_at"`
}
