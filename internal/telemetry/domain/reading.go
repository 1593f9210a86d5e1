package telemetry

import (
	"context"
	"errors"
	"time"
)

// Reading is one immutable timestamped tank observation.
type Reading struct {
	AssetExternalID string
	TS              time.Time
	LevelLiters     float64
	LevelPercent    float64
	BatteryVoltage  *float64
	TemperatureC    *float64
	SignalStrength  *float64
	CreatedAt       time.Time
}

// Validate checks reading invariants.
func (r Reading) Validate() error {
	if r.AssetExternalID == "" {
		return errors.New("reading: empty asset external id")
	}
	if r.TS.IsZero() {
		return errors.New("reading: zero timestamp")
	}
	return nil
}

// ReadingRepository appends readings and serves ordered history.
// Readings are append-only; duplicate (asset, ts) pairs are ignored.
type ReadingRepository interface {
	AppendIfAbsent(ctx context.Context, reading Reading) (inserted bool, err error)
	ListRange(ctx context.Context, assetExternalID string, since, until time.Time) ([]Reading, error)
}
