package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lanread/internal/models"
)

// GetSyncConfig returns the workspace connection record, or nil when sync
// has never been configured.
func (db *DB) GetSyncConfig(ctx context.Context) (*models.SyncConfig, error) {
	var c models.SyncConfig
	err := db.db.QueryRowContext(ctx,
		`SELECT database_id, root_page_id, workspace_name, last_synced_at FROM sync_config WHERE id = 1`).
		Scan(&c.DatabaseID, &c.RootPageID, &c.WorkspaceName, &c.LastSyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync config: %w", err)
	}
	return &c, nil
}

// SaveSyncConfig stores the workspace connection record, replacing any
// previous one.
func (db *DB) SaveSyncConfig(ctx context.Context, c *models.SyncConfig) error {
	_, err := db.db.ExecContext(ctx,
		`INSERT INTO sync_config (id, database_id, root_page_id, workspace_name, last_synced_at)
         VALUES (1, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET database_id = excluded.database_id,
             root_page_id = excluded.root_page_id,
             workspace_name = excluded.workspace_name,
             last_synced_at = excluded.last_synced_at`,
		c.DatabaseID, c.RootPageID, c.WorkspaceName, c.LastSyncedAt)
	if err != nil {
		return fmt.Errorf("failed to save sync config: %w", err)
	}
	return nil
}

// UpdateLastSyncedAt advances the last confirmed delivery time.
func (db *DB) UpdateLastSyncedAt(ctx context.Context, at time.Time) error {
	_, err := db.db.ExecContext(ctx, `UPDATE sync_config SET last_synced_at = ? WHERE id = 1`, at)
	if err != nil {
		return fmt.Errorf("failed to update last_synced_at: %w", err)
	}
	return nil
}

// ClearSyncConfig removes the workspace connection record and all page
// mappings in one transaction. After this the processor is never ready.
func (db *DB) ClearSyncConfig(ctx context.Context) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM sync_config`); err != nil {
			return fmt.Errorf("failed to clear sync config: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM page_mappings`); err != nil {
			return fmt.Errorf("failed to clear page mappings: %w", err)
		}
		return nil
	})
}
