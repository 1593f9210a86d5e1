package alerts

import (
	"errors"
	"fmt"
)

// Thresholds holds the three independently configurable alert thresholds.
type Thresholds struct {
	LowFuelPct            float64 `yaml:"low_fuel_pct"`
	CriticalPct           float64 `yaml:"critical_pct"`
	DaysRemainingCritical float64 `yaml:"days_remaining_critical"`
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LowFuelPct:            30,
		CriticalPct:           15,
		DaysRemainingCritical: 7,
	}
}

// Validate checks threshold invariants.
func (t Thresholds) Validate() error {
	if t.LowFuelPct < 0 || t.LowFuelPct > 100 {
		return errors.New("thresholds: low fuel pct out of range")
	}
	if t.CriticalPct < 0 || t.CriticalPct > 100 {
		return errors.New("thresholds: critical pct out of range")
	}
	if t.CriticalPct > t.LowFuelPct {
		return errors.New("thresholds: critical pct above low fuel pct")
	}
	if t.DaysRemainingCritical < 0 {
		return errors.New("thresholds: negative days remaining")
	}
	return nil
}

// Evaluation is the single highest-severity alert an asset state warrants.
type Evaluation struct {
	Reason   string
	Severity string
	Message  string
}

// Evaluate decides the active alert for an asset state, if any. Precedence:
// critical fuel percent, then low fuel percent, then days remaining. At most
// one alert is warranted per asset; lower-severity conditions are shadowed.
func (t Thresholds) Evaluate(levelPercent float64, daysRemaining *float64) (Evaluation, bool) {
	switch {
	case levelPercent < t.CriticalPct:
		return Evaluation{
			Reason:   ReasonCriticalFuel,
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("fuel level %.1f%% below critical threshold %.1f%%", levelPercent, t.CriticalPct),
		}, true
	case levelPercent < t.LowFuelPct:
		return Evaluation{
			Reason:   ReasonLowFuel,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("fuel level %.1f%% below low fuel threshold %.1f%%", levelPercent, t.LowFuelPct),
		}, true
	case daysRemaining != nil && *daysRemaining <= t.DaysRemainingCritical:
		return Evaluation{
			Reason:   ReasonDaysRemaining,
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("%.1f days of fuel remaining, threshold %.1f", *daysRemaining, t.DaysRemainingCritical),
		}, true
	default:
		return Evaluation{}, false
	}
}
