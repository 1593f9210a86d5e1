package synclog

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository writes sync log rows to Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a sync log repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Record inserts one sync log entry.
func (r *Repository) Record(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("sync log repo: nil db")
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO sync_logs (
	id, source, status, locations_processed, assets_processed, readings_processed,
	alerts_triggered, error_count, warning_count, duration_ms, details, started_at, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)`, entry.ID, entry.Source, entry.Status, entry.LocationsProcessed, entry.AssetsProcessed,
		entry.ReadingsProcessed, entry.AlertsTriggered, entry.ErrorCount, entry.WarningCount,
		entry.Duration.Milliseconds(), nullJSON(entry.Details), entry.StartedAt.UTC(), entry.CreatedAt.UTC())
	return err
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
