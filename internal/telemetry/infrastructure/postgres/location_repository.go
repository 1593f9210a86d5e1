package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	telemetry "tankwatch-cloud/internal/telemetry/domain"
)

const defaultLocationsTable = "locations"

// LocationRepository is a Postgres implementation for locations.
type LocationRepository struct {
	db    DBTX
	table string
}

// NewLocationRepository constructs a repository with default table name.
func NewLocationRepository(db DBTX, opts ...LocationOption) *LocationRepository {
	repo := &LocationRepository{db: db, table: defaultLocationsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// LocationOption configures the repository.
type LocationOption func(*LocationRepository)

// WithLocationTable overrides the default table name.
func WithLocationTable(table string) LocationOption {
	return func(repo *LocationRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// UpsertByExternalID inserts or updates a location keyed by external id.
// Last write wins when two records in the same batch share a location.
func (r *LocationRepository) UpsertByExternalID(ctx context.Context, location *telemetry.Location) (telemetry.UpsertResult, error) {
	if r == nil || r.db == nil {
		return telemetry.UpsertResult{}, errors.New("location repo: nil db")
	}
	if location == nil {
		return telemetry.UpsertResult{}, errors.New("location repo: nil location")
	}
	if err := location.Validate(); err != nil {
		return telemetry.UpsertResult{}, err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	external_id,
	name,
	address,
	customer_name,
	latitude,
	longitude,
	last_telemetry_at,
	disabled
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9
)
ON CONFLICT (external_id)
DO UPDATE SET
	name = EXCLUDED.name,
	address = EXCLUDED.address,
	customer_name = EXCLUDED.customer_name,
	latitude = COALESCE(EXCLUDED.latitude, %s.latitude),
	longitude = COALESCE(EXCLUDED.longitude, %s.longitude),
	last_telemetry_at = GREATEST(EXCLUDED.last_telemetry_at, %s.last_telemetry_at),
	updated_at = NOW()
RETURNING id, (xmax = 0)`, r.table, r.table, r.table, r.table)

	var result telemetry.UpsertResult
	if err := r.db.QueryRowContext(
		ctx,
		query,
		uuid.NewString(),
		location.ExternalID,
		location.Name,
		location.Address,
		location.CustomerName,
		nullFloat(location.Latitude),
		nullFloat(location.Longitude),
		location.LastTelemetryAt.UTC(),
		location.Disabled,
	).Scan(&result.ID, &result.Created); err != nil {
		return telemetry.UpsertResult{}, &telemetry.PersistenceError{Op: "upsert location", Err: err}
	}
	location.ID = result.ID
	return result, nil
}

// Get loads a location by external id.
func (r *LocationRepository) Get(ctx context.Context, externalID string) (*telemetry.Location, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("location repo: nil db")
	}
	if externalID == "" {
		return nil, errors.New("location repo: empty external id")
	}

	query := fmt.Sprintf(`
SELECT id, external_id, name, address, customer_name, latitude, longitude, last_telemetry_at, disabled, created_at, updated_at
FROM %s
WHERE external_id = $1
LIMIT 1`, r.table)

	var location telemetry.Location
	var latitude, longitude sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, query, externalID).Scan(
		&location.ID,
		&location.ExternalID,
		&location.Name,
		&location.Address,
		&location.CustomerName,
		&latitude,
		&longitude,
		&location.LastTelemetryAt,
		&location.Disabled,
		&location.CreatedAt,
		&location.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	location.Latitude = floatPtr(latitude)
	location.Longitude = floatPtr(longitude)
	location.LastTelemetryAt = location.LastTelemetryAt.UTC()
	return &location, nil
}

func nullFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}

func floatPtr(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	v := value.Float64
	return &v
}
