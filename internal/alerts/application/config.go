package application

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	alerts "tankwatch-cloud/internal/alerts/domain"
)

// LoadThresholds loads alert thresholds from an optional YAML file, with env
// vars overriding file values. Defaults apply when neither is set.
func LoadThresholds(path string) (alerts.Thresholds, error) {
	thresholds := alerts.DefaultThresholds()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return thresholds, err
		}
		if err := yaml.Unmarshal(data, &thresholds); err != nil {
			return thresholds, err
		}
	}

	if value, ok := envFloat("ALERT_LOW_FUEL_PCT"); ok {
		thresholds.LowFuelPct = value
	}
	if value, ok := envFloat("ALERT_CRITICAL_PCT"); ok {
		thresholds.CriticalPct = value
	}
	if value, ok := envFloat("ALERT_DAYS_REMAINING_CRITICAL"); ok {
		thresholds.DaysRemainingCritical = value
	}

	if err := thresholds.Validate(); err != nil {
		return thresholds, err
	}
	return thresholds, nil
}

func envFloat(key string) (float64, bool) {
	value := os.Getenv(key)
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}
