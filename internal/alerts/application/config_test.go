package application

import (
	"os"
	"path/filepath"
	"testing"

	alerts "tankwatch-cloud/internal/alerts/domain"
)

func TestLoadThresholds_Defaults(t *testing.T) {
	thresholds, err := LoadThresholds("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if thresholds != alerts.DefaultThresholds() {
		t.Fatalf("expected defaults, got %+v", thresholds)
	}
}

func TestLoadThresholds_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	content := "low_fuel_pct: 40\ncritical_pct: 20\ndays_remaining_critical: 10\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	thresholds, err := LoadThresholds(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if thresholds.LowFuelPct != 40 || thresholds.CriticalPct != 20 || thresholds.DaysRemainingCritical != 10 {
		t.Fatalf("unexpected thresholds %+v", thresholds)
	}
}

func TestLoadThresholds_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	if err := os.WriteFile(path, []byte("low_fuel_pct: 40\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	t.Setenv("ALERT_LOW_FUEL_PCT", "35")
	t.Setenv("ALERT_CRITICAL_PCT", "12")

	thresholds, err := LoadThresholds(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if thresholds.LowFuelPct != 35 {
		t.Fatalf("expected env override 35, got %v", thresholds.LowFuelPct)
	}
	if thresholds.CriticalPct != 12 {
		t.Fatalf("expected env override 12, got %v", thresholds.CriticalPct)
	}
}

func TestLoadThresholds_InvalidRejected(t *testing.T) {
	t.Setenv("ALERT_CRITICAL_PCT", "90") // above the default low fuel pct

	if _, err := LoadThresholds(""); err == nil {
		t.Fatal("expected validation error")
	}
}
