package telemetry

import (
	"context"
	"errors"
	"time"
)

// Location represents a physical site owning zero or more tanks.
type Location struct {
	ID              string
	ExternalID      string
	Name            string
	Address         string
	CustomerName    string
	Latitude        *float64
	Longitude       *float64
	LastTelemetryAt time.Time
	Disabled        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate checks location invariants.
func (l Location) Validate() error {
	if l.ExternalID == "" {
		return errors.New("location: empty external id")
	}
	return nil
}

// UpsertResult reports the outcome of an upsert.
type UpsertResult struct {
	ID      string
	Created bool
}

// LocationRepository persists locations keyed by external provider id.
type LocationRepository interface {
	UpsertByExternalID(ctx context.Context, location *Location) (UpsertResult, error)
	Get(ctx context.Context, externalID string) (*Location, error)
}
