package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	telemetry "tankwatch-cloud/internal/telemetry/domain"
)

const defaultAssetsTable = "assets"

// AssetRepository is a Postgres implementation for assets.
type AssetRepository struct {
	db    DBTX
	table string
}

// NewAssetRepository constructs a repository with default table name.
func NewAssetRepository(db DBTX, opts ...AssetOption) *AssetRepository {
	repo := &AssetRepository{db: db, table: defaultAssetsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// AssetOption configures the repository.
type AssetOption func(*AssetRepository)

// WithAssetTable overrides the default table name.
func WithAssetTable(table string) AssetOption {
	return func(repo *AssetRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// UpsertByExternalID inserts or updates an asset keyed by external id.
// Derived fields (daily consumption, days remaining) are left untouched on
// update; only the analytics engine writes them.
func (r *AssetRepository) UpsertByExternalID(ctx context.Context, asset *telemetry.Asset) (telemetry.UpsertResult, error) {
	if r == nil || r.db == nil {
		return telemetry.UpsertResult{}, errors.New("asset repo: nil db")
	}
	if asset == nil {
		return telemetry.UpsertResult{}, errors.New("asset repo: nil asset")
	}
	if err := asset.Validate(); err != nil {
		return telemetry.UpsertResult{}, err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	external_id,
	location_external_id,
	online,
	capacity_liters,
	current_level_liters,
	device_serial,
	battery_voltage,
	commodity,
	disabled
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
)
ON CONFLICT (external_id)
DO UPDATE SET
	location_external_id = EXCLUDED.location_external_id,
	online = EXCLUDED.online,
	capacity_liters = EXCLUDED.capacity_liters,
	current_level_liters = EXCLUDED.current_level_liters,
	device_serial = EXCLUDED.device_serial,
	battery_voltage = COALESCE(EXCLUDED.battery_voltage, %s.battery_voltage),
	commodity = EXCLUDED.commodity,
	updated_at = NOW()
RETURNING id, (xmax = 0)`, r.table, r.table)

	var result telemetry.UpsertResult
	if err := r.db.QueryRowContext(
		ctx,
		query,
		uuid.NewString(),
		asset.ExternalID,
		asset.LocationExternalID,
		asset.Online,
		asset.CapacityLiters,
		asset.CurrentLevelLiters,
		asset.DeviceSerial,
		nullFloat(asset.BatteryVoltage),
		asset.Commodity,
		asset.Disabled,
	).Scan(&result.ID, &result.Created); err != nil {
		return telemetry.UpsertResult{}, &telemetry.PersistenceError{Op: "upsert asset", Err: err}
	}
	asset.ID = result.ID
	return result, nil
}

// GetByExternalID loads an asset by external id.
func (r *AssetRepository) GetByExternalID(ctx context.Context, externalID string) (*telemetry.Asset, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("asset repo: nil db")
	}
	if externalID == "" {
		return nil, errors.New("asset repo: empty external id")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE external_id = $1
LIMIT 1`, assetColumns, r.table)

	row := r.db.QueryRowContext(ctx, query, externalID)
	asset, err := scanAsset(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return asset, nil
}

// ListActive returns all non-disabled assets.
func (r *AssetRepository) ListActive(ctx context.Context) ([]telemetry.Asset, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("asset repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE disabled = FALSE
ORDER BY external_id ASC`, assetColumns, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []telemetry.Asset
	for rows.Next() {
		asset, err := scanAsset(rows.Scan)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *asset)
	}
	return assets, rows.Err()
}

// UpdateDerived writes the recomputed consumption fields onto an asset.
func (r *AssetRepository) UpdateDerived(ctx context.Context, externalID string, dailyConsumption float64, daysRemaining *float64) error {
	if r == nil || r.db == nil {
		return errors.New("asset repo: nil db")
	}
	if externalID == "" {
		return errors.New("asset repo: empty external id")
	}

	query := fmt.Sprintf(`
UPDATE %s
SET daily_consumption_liters = $2,
	days_remaining = $3,
	updated_at = NOW()
WHERE external_id = $1`, r.table)

	res, err := r.db.ExecContext(ctx, query, externalID, dailyConsumption, nullFloat(daysRemaining))
	if err != nil {
		return &telemetry.PersistenceError{Op: "update derived", Err: err}
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("asset repo: unknown asset %q", externalID)
	}
	return nil
}

const assetColumns = `id, external_id, location_external_id, online, capacity_liters, current_level_liters,
	daily_consumption_liters, days_remaining, device_serial, battery_voltage, commodity, disabled, created_at, updated_at`

func scanAsset(scan func(dest ...any) error) (*telemetry.Asset, error) {
	var asset telemetry.Asset
	var dailyConsumption, daysRemaining, battery sql.NullFloat64
	if err := scan(
		&asset.ID,
		&asset.ExternalID,
		&asset.LocationExternalID,
		&asset.Online,
		&asset.CapacityLiters,
		&asset.CurrentLevelLiters,
		&dailyConsumption,
		&daysRemaining,
		&asset.DeviceSerial,
		&battery,
		&asset.Commodity,
		&asset.Disabled,
		&asset.CreatedAt,
		&asset.UpdatedAt,
	); err != nil {
		return nil, err
	}
	asset.DailyConsumption = floatPtr(dailyConsumption)
	asset.DaysRemaining = floatPtr(daysRemaining)
	asset.BatteryVoltage = floatPtr(battery)
	return &asset, nil
}
