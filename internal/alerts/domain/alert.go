package alerts

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"time"
)

const (
	StatusActive  = "active"
	StatusCleared = "cleared"
)

const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

const (
	ReasonLowFuel       = "low_fuel"
	ReasonCriticalFuel  = "critical_fuel"
	ReasonDaysRemaining = "days_remaining"
)

// ErrNotFound marks a missing alert.
var ErrNotFound = errors.New("alerts: not found")

// Alert is a derived row raised from a threshold evaluation. Alerts are
// keyed by (asset, reason); a new evaluation supersedes, never duplicates.
type Alert struct {
	ID            string    `json:"id"`
	AssetID       string    `json:"asset_id"`
	Reason        string    `json:"reason"`
	Severity      string    `json:"severity"`
	Status        string    `json:"status"`
	Message       string    `json:"message"`
	LevelPercent  float64   `json:"level_percent"`
	DaysRemaining *float64  `json:"days_remaining,omitempty"`
	RaisedAt      time.Time `json:"raised_at"`
	ClearedAt     time.Time `json:"cleared_at,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BuildAlertID derives a stable id from the alert key.
func BuildAlertID(assetID, reason string) string {
	sum := sha1.Sum([]byte(assetID + "|" + reason))
	return "alert-" + hex.EncodeToString(sum[:8])
}
