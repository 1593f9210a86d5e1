package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	telemetry "tankwatch-cloud/internal/telemetry/domain"
)

// LocationRepository is an in-memory LocationRepository for tests and local
// runs.
type LocationRepository struct {
	mu   sync.RWMutex
	rows map[string]telemetry.Location

	FailUpsert error
}

// NewLocationRepository constructs an empty repository.
func NewLocationRepository() *LocationRepository {
	return &LocationRepository{rows: make(map[string]telemetry.Location)}
}

// UpsertByExternalID inserts or replaces a location.
func (r *LocationRepository) UpsertByExternalID(_ context.Context, location *telemetry.Location) (telemetry.UpsertResult, error) {
	if r.FailUpsert != nil {
		return telemetry.UpsertResult{}, r.FailUpsert
	}
	if err := location.Validate(); err != nil {
		return telemetry.UpsertResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.rows[location.ExternalID]
	if ok {
		location.ID = existing.ID
	} else {
		location.ID = fmt.Sprintf("loc-%d", len(r.rows)+1)
	}
	r.rows[location.ExternalID] = *location
	return telemetry.UpsertResult{ID: location.ID, Created: !ok}, nil
}

// Get loads a location by external id.
func (r *LocationRepository) Get(_ context.Context, externalID string) (*telemetry.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	location, ok := r.rows[externalID]
	if !ok {
		return nil, nil
	}
	return &location, nil
}

// Len returns the number of stored locations.
func (r *LocationRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

// AssetRepository is an in-memory AssetRepository.
type AssetRepository struct {
	mu   sync.RWMutex
	rows map[string]telemetry.Asset

	FailUpsert error
}

// NewAssetRepository constructs an empty repository.
func NewAssetRepository() *AssetRepository {
	return &AssetRepository{rows: make(map[string]telemetry.Asset)}
}

// UpsertByExternalID inserts or replaces an asset, preserving derived fields.
func (r *AssetRepository) UpsertByExternalID(_ context.Context, asset *telemetry.Asset) (telemetry.UpsertResult, error) {
	if r.FailUpsert != nil {
		return telemetry.UpsertResult{}, r.FailUpsert
	}
	if err := asset.Validate(); err != nil {
		return telemetry.UpsertResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.rows[asset.ExternalID]
	if ok {
		asset.ID = existing.ID
		asset.DailyConsumption = existing.DailyConsumption
		asset.DaysRemaining = existing.DaysRemaining
	} else {
		asset.ID = fmt.Sprintf("asset-%d", len(r.rows)+1)
	}
	r.rows[asset.ExternalID] = *asset
	return telemetry.UpsertResult{ID: asset.ID, Created: !ok}, nil
}

// GetByExternalID loads an asset by external id.
func (r *AssetRepository) GetByExternalID(_ context.Context, externalID string) (*telemetry.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	asset, ok := r.rows[externalID]
	if !ok {
		return nil, nil
	}
	return &asset, nil
}

// ListActive returns non-disabled assets ordered by external id.
func (r *AssetRepository) ListActive(_ context.Context) ([]telemetry.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	assets := make([]telemetry.Asset, 0, len(r.rows))
	for _, asset := range r.rows {
		if !asset.Disabled {
			assets = append(assets, asset)
		}
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].ExternalID < assets[j].ExternalID })
	return assets, nil
}

// UpdateDerived writes recomputed consumption fields.
func (r *AssetRepository) UpdateDerived(_ context.Context, externalID string, dailyConsumption float64, daysRemaining *float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	asset, ok := r.rows[externalID]
	if !ok {
		return fmt.Errorf("asset repo: unknown asset %q", externalID)
	}
	asset.DailyConsumption = &dailyConsumption
	asset.DaysRemaining = daysRemaining
	r.rows[externalID] = asset
	return nil
}

// Len returns the number of stored assets.
func (r *AssetRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

type readingKey struct {
	assetID string
	ts      time.Time
}

// ReadingRepository is an in-memory ReadingRepository.
type ReadingRepository struct {
	mu   sync.RWMutex
	rows map[readingKey]telemetry.Reading

	FailAppend error
}

// NewReadingRepository constructs an empty repository.
func NewReadingRepository() *ReadingRepository {
	return &ReadingRepository{rows: make(map[readingKey]telemetry.Reading)}
}

// AppendIfAbsent stores a reading unless the (asset, ts) pair exists.
func (r *ReadingRepository) AppendIfAbsent(_ context.Context, reading telemetry.Reading) (bool, error) {
	if r.FailAppend != nil {
		return false, r.FailAppend
	}
	if err := reading.Validate(); err != nil {
		return false, err
	}
	key := readingKey{assetID: reading.AssetExternalID, ts: reading.TS.UTC()}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[key]; ok {
		return false, nil
	}
	r.rows[key] = reading
	return true, nil
}

// ListRange returns readings in [since, until], ascending by timestamp.
func (r *ReadingRepository) ListRange(_ context.Context, assetExternalID string, since, until time.Time) ([]telemetry.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var readings []telemetry.Reading
	for key, reading := range r.rows {
		if key.assetID != assetExternalID {
			continue
		}
		if key.ts.Before(since) || key.ts.After(until) {
			continue
		}
		readings = append(readings, reading)
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].TS.Before(readings[j].TS) })
	return readings, nil
}

// Len returns the number of stored readings.
func (r *ReadingRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}
