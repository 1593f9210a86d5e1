package telemetry

import (
	"context"
	"errors"
	"time"
)

// Asset represents a monitored tank or sensor bound to a location.
type Asset struct {
	ID                 string
	ExternalID         string
	LocationExternalID string
	Online             bool
	CapacityLiters     float64
	CurrentLevelLiters float64
	DailyConsumption   *float64
	DaysRemaining      *float64
	DeviceSerial       string
	BatteryVoltage     *float64
	Commodity          string
	Disabled           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Validate checks asset invariants.
func (a Asset) Validate() error {
	if a.ExternalID == "" {
		return errors.New("asset: empty external id")
	}
	if a.LocationExternalID == "" {
		return errors.New("asset: empty location external id")
	}
	if a.CapacityLiters < 0 {
		return errors.New("asset: negative capacity")
	}
	if a.CapacityLiters > 0 && a.CurrentLevelLiters > a.CapacityLiters {
		return errors.New("asset: level exceeds capacity")
	}
	return nil
}

// LevelPercent derives the fill percentage from level and capacity.
func (a Asset) LevelPercent() float64 {
	if a.CapacityLiters <= 0 {
		return 0
	}
	pct := a.CurrentLevelLiters / a.CapacityLiters * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// AssetRepository persists assets keyed by external provider id.
type AssetRepository interface {
	UpsertByExternalID(ctx context.Context, asset *Asset) (UpsertResult, error)
	GetByExternalID(ctx context.Context, externalID string) (*Asset, error)
	ListActive(ctx context.Context) ([]Asset, error)
	UpdateDerived(ctx context.Context, externalID string, dailyConsumption float64, daysRemaining *float64) error
}
