package models

import "time"

// Annotation is a locally stored reading annotation: a highlighted passage
// and an optional attached note.
type Annotation struct {
	ID        int64     `json:"id"`
	BookID    string    `json:"book_id"`
	BookTitle string    `json:"book_title"`
	Author    string    `json:"author"`
	Chapter   string    `json:"chapter"`
	Text      string    `json:"text"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PageMapping links a local book to the remote workspace page that holds
// its synced annotations. At most one mapping exists per book.
type PageMapping struct {
	BookID    string    `json:"book_id"`
	PageID    string    `json:"page_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SyncConfig is the single durable record describing a connected workspace.
// Its presence is the "sync is configured" signal; without it the processor
// never drains.
type SyncConfig struct {
	DatabaseID    string     `json:"database_id"`
	RootPageID    string     `json:"root_page_id"`
	WorkspaceName string     `json:"workspace_name"`
	LastSyncedAt  *time.Time `json:"last_synced_at"`
}
