package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	telemetry "tankwatch-cloud/internal/telemetry/domain"
)

const defaultReadingsTable = "readings"

// ReadingRepository is a Postgres implementation for readings.
type ReadingRepository struct {
	db    DBTX
	table string
}

// NewReadingRepository constructs a repository with default table name.
func NewReadingRepository(db DBTX, opts ...ReadingOption) *ReadingRepository {
	repo := &ReadingRepository{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// ReadingOption configures the repository.
type ReadingOption func(*ReadingRepository)

// WithReadingTable overrides the default table name.
func WithReadingTable(table string) ReadingOption {
	return func(repo *ReadingRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// AppendIfAbsent inserts a reading unless one exists for the same asset and
// timestamp. Duplicates are ignored, never overwritten.
func (r *ReadingRepository) AppendIfAbsent(ctx context.Context, reading telemetry.Reading) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("reading repo: nil db")
	}
	if err := reading.Validate(); err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	asset_external_id,
	ts,
	level_liters,
	level_percent,
	battery_voltage,
	temperature_c,
	signal_strength
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)
ON CONFLICT (asset_external_id, ts) DO NOTHING`, r.table)

	res, err := r.db.ExecContext(
		ctx,
		query,
		reading.AssetExternalID,
		reading.TS.UTC(),
		reading.LevelLiters,
		reading.LevelPercent,
		nullFloat(reading.BatteryVoltage),
		nullFloat(reading.TemperatureC),
		nullFloat(reading.SignalStrength),
	)
	if err != nil {
		return false, &telemetry.PersistenceError{Op: "append reading", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, &telemetry.PersistenceError{Op: "append reading", Err: err}
	}
	return affected > 0, nil
}

// ListRange returns readings for an asset within [since, until], ascending by
// timestamp.
func (r *ReadingRepository) ListRange(ctx context.Context, assetExternalID string, since, until time.Time) ([]telemetry.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if assetExternalID == "" {
		return nil, errors.New("reading repo: empty asset external id")
	}

	query := fmt.Sprintf(`
SELECT asset_external_id, ts, level_liters, level_percent, battery_voltage, temperature_c, signal_strength, created_at
FROM %s
WHERE asset_external_id = $1
	AND ts >= $2
	AND ts <= $3
ORDER BY ts ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, assetExternalID, since.UTC(), until.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []telemetry.Reading
	for rows.Next() {
		var reading telemetry.Reading
		var battery, temperature, signal sql.NullFloat64
		if err := rows.Scan(
			&reading.AssetExternalID,
			&reading.TS,
			&reading.LevelLiters,
			&reading.LevelPercent,
			&battery,
			&temperature,
			&signal,
			&reading.CreatedAt,
		); err != nil {
			return nil, err
		}
		reading.TS = reading.TS.UTC()
		reading.BatteryVoltage = floatPtr(battery)
		reading.TemperatureC = floatPtr(temperature)
		reading.SignalStrength = floatPtr(signal)
		readings = append(readings, reading)
	}
	return readings, rows.Err()
}
