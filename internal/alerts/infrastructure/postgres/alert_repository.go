package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	alerts "tankwatch-cloud/internal/alerts/domain"
)

const defaultAlertsTable = "alerts"

// AlertRepository is a Postgres implementation for alerts.
type AlertRepository struct {
	db    *sql.DB
	table string
}

// NewAlertRepository constructs a repository with default table name.
func NewAlertRepository(db *sql.DB, opts ...Option) *AlertRepository {
	repo := &AlertRepository{db: db, table: defaultAlertsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Option configures the repository.
type Option func(*AlertRepository)

// WithTable overrides the default table name.
func WithTable(table string) Option {
	return func(repo *AlertRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// FindActiveByAsset returns the active alerts for one asset.
func (r *AlertRepository) FindActiveByAsset(ctx context.Context, assetID string) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if assetID == "" {
		return nil, errors.New("alert repo: empty asset id")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE asset_id = $1 AND status = $2
ORDER BY raised_at DESC`, alertColumns, r.table)

	return r.queryAlerts(ctx, query, assetID, alerts.StatusActive)
}

// Save upserts an alert keyed by (asset_id, reason), reactivating a
// previously cleared row rather than inserting a duplicate.
func (r *AlertRepository) Save(ctx context.Context, alert *alerts.Alert) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	if alert == nil {
		return errors.New("alert repo: nil alert")
	}
	if alert.AssetID == "" || alert.Reason == "" {
		return errors.New("alert repo: missing alert key")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id, asset_id, reason, severity, status, message, level_percent, days_remaining, raised_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9
)
ON CONFLICT (asset_id, reason)
DO UPDATE SET
	severity = EXCLUDED.severity,
	status = EXCLUDED.status,
	message = EXCLUDED.message,
	level_percent = EXCLUDED.level_percent,
	days_remaining = EXCLUDED.days_remaining,
	raised_at = EXCLUDED.raised_at,
	cleared_at = NULL,
	updated_at = NOW()`, r.table)

	var daysRemaining sql.NullFloat64
	if alert.DaysRemaining != nil {
		daysRemaining = sql.NullFloat64{Float64: *alert.DaysRemaining, Valid: true}
	}
	_, err := r.db.ExecContext(
		ctx,
		query,
		alert.ID,
		alert.AssetID,
		alert.Reason,
		alert.Severity,
		alert.Status,
		alert.Message,
		alert.LevelPercent,
		daysRemaining,
		alert.RaisedAt.UTC(),
	)
	return err
}

// MarkCleared clears one alert row.
func (r *AlertRepository) MarkCleared(ctx context.Context, assetID, reason string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}

	query := fmt.Sprintf(`
UPDATE %s
SET status = $3, cleared_at = $4, updated_at = NOW()
WHERE asset_id = $1 AND reason = $2`, r.table)

	_, err := r.db.ExecContext(ctx, query, assetID, reason, alerts.StatusCleared, at.UTC())
	return err
}

// List returns alerts filtered by asset and status, newest first.
func (r *AlertRepository) List(ctx context.Context, assetID, status string, limit int) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE ($1 = '' OR asset_id = $1)
	AND ($2 = '' OR status = $2)
ORDER BY raised_at DESC
LIMIT $3`, alertColumns, r.table)

	return r.queryAlerts(ctx, query, assetID, status, limit)
}

const alertColumns = `id, asset_id, reason, severity, status, message, level_percent, days_remaining,
	raised_at, cleared_at, created_at, updated_at`

func (r *AlertRepository) queryAlerts(ctx context.Context, query string, args ...any) ([]alerts.Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alerts.Alert
	for rows.Next() {
		var alert alerts.Alert
		var daysRemaining sql.NullFloat64
		var clearedAt sql.NullTime
		if err := rows.Scan(
			&alert.ID,
			&alert.AssetID,
			&alert.Reason,
			&alert.Severity,
			&alert.Status,
			&alert.Message,
			&alert.LevelPercent,
			&daysRemaining,
			&alert.RaisedAt,
			&clearedAt,
			&alert.CreatedAt,
			&alert.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if daysRemaining.Valid {
			v := daysRemaining.Float64
			alert.DaysRemaining = &v
		}
		if clearedAt.Valid {
			alert.ClearedAt = clearedAt.Time.UTC()
		}
		alert.RaisedAt = alert.RaisedAt.UTC()
		result = append(result, alert)
	}
	return result, rows.Err()
}
