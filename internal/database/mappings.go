package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lanread/internal/models"
)

// GetPageMapping returns the remote page for a book, or nil when none exists.
func (db *DB) GetPageMapping(ctx context.Context, bookID string) (*models.PageMapping, error) {
	var m models.PageMapping
	err := db.db.QueryRowContext(ctx,
		`SELECT book_id, page_id, created_at FROM page_mappings WHERE book_id = ?`, bookID).
		Scan(&m.BookID, &m.PageID, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page mapping for %s: %w", bookID, err)
	}
	return &m, nil
}

// SavePageMapping records the book→page link. A mapping is written once and
// never overwritten; a concurrent duplicate insert keeps the first row.
func (db *DB) SavePageMapping(ctx context.Context, bookID, pageID string) error {
	_, err := db.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO page_mappings (book_id, page_id, created_at) VALUES (?, ?, ?)`,
		bookID, pageID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save page mapping for %s: %w", bookID, err)
	}
	return nil
}

// ClearPageMappings drops every mapping. Called on workspace disconnect.
func (db *DB) ClearPageMappings(ctx context.Context) error {
	if _, err := db.db.ExecContext(ctx, `DELETE FROM page_mappings`); err != nil {
		return fmt.Errorf("failed to clear page mappings: %w", err)
	}
	return nil
}
