package telemetry

import (
	"errors"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestNormalize_CamelCaseAliases(t *testing.T) {
	n := NewNormalizer(WithNow(fixedNow))
	rec := RawRecord{
		"locationId":         "loc-1",
		"locationName":       "North Depot",
		"assetId":            "tank-1",
		"capacityLiters":     2000.0,
		"currentLevelLiters": 500.0,
		"timestamp":          "2025-05-30T10:00:00Z",
	}

	got, err := n.Normalize(rec)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Location.ExternalID != "loc-1" || got.Location.Name != "North Depot" {
		t.Fatalf("unexpected location: %+v", got.Location)
	}
	if got.Asset.ExternalID != "tank-1" || got.Asset.CapacityLiters != 2000 {
		t.Fatalf("unexpected asset: %+v", got.Asset)
	}
	if got.Reading.LevelLiters != 500 {
		t.Fatalf("expected level 500, got %v", got.Reading.LevelLiters)
	}
	if got.Reading.LevelPercent != 25 {
		t.Fatalf("expected derived percent 25, got %v", got.Reading.LevelPercent)
	}
	want := time.Date(2025, 5, 30, 10, 0, 0, 0, time.UTC)
	if !got.Reading.TS.Equal(want) {
		t.Fatalf("expected ts %v, got %v", want, got.Reading.TS)
	}
	if len(got.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", got.Warnings)
	}
}

func TestNormalize_SnakeCaseAliases(t *testing.T) {
	n := NewNormalizer(WithNow(fixedNow))
	rec := RawRecord{
		"site_id":      "loc-2",
		"tank_id":      "tank-2",
		"tankSize":     1000.0,
		"fill_percent": 40.0,
		"ts":           float64(1717200000),
	}

	got, err := n.Normalize(rec)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Location.ExternalID != "loc-2" {
		t.Fatalf("expected loc-2, got %q", got.Location.ExternalID)
	}
	if got.Reading.LevelLiters != 400 {
		t.Fatalf("expected derived level 400, got %v", got.Reading.LevelLiters)
	}
	if got.Reading.TS != time.Unix(1717200000, 0).UTC() {
		t.Fatalf("expected epoch ts, got %v", got.Reading.TS)
	}
}

func TestNormalize_EpochMillis(t *testing.T) {
	n := NewNormalizer(WithNow(fixedNow))
	rec := RawRecord{
		"locationId": "loc-3",
		"assetId":    "tank-3",
		"timestamp":  float64(1717200000000),
	}

	got, err := n.Normalize(rec)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Reading.TS != time.UnixMilli(1717200000000).UTC() {
		t.Fatalf("expected millis ts, got %v", got.Reading.TS)
	}
}

func TestNormalize_MissingLocationID(t *testing.T) {
	n := NewNormalizer(WithNow(fixedNow))
	rec := RawRecord{"assetId": "tank-1", "level": 10.0}

	_, err := n.Normalize(rec)
	if err == nil {
		t.Fatal("expected error for missing location id")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if verr.Field != "locationId" {
		t.Fatalf("expected field locationId, got %q", verr.Field)
	}
}

func TestNormalize_MissingAssetID(t *testing.T) {
	n := NewNormalizer(WithNow(fixedNow))
	rec := RawRecord{"locationId": "loc-1"}

	_, err := n.Normalize(rec)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "assetId" {
		t.Fatalf("expected field assetId, got %q", verr.Field)
	}
}

func TestNormalize_MissingNumericsCoerceWithWarning(t *testing.T) {
	n := NewNormalizer(WithNow(fixedNow))
	rec := RawRecord{
		"locationId": "loc-1",
		"assetId":    "tank-1",
	}

	got, err := n.Normalize(rec)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Reading.LevelLiters != 0 || got.Reading.LevelPercent != 0 {
		t.Fatalf("expected zeroed reading, got %+v", got.Reading)
	}
	if !got.Reading.TS.Equal(fixedNow()) {
		t.Fatalf("expected receive-time fallback, got %v", got.Reading.TS)
	}
	if len(got.Warnings) == 0 {
		t.Fatal("expected warnings for coerced fields")
	}
}

func TestNormalize_ClampsOutOfRange(t *testing.T) {
	n := NewNormalizer(WithNow(fixedNow))
	rec := RawRecord{
		"locationId":     "loc-1",
		"assetId":        "tank-1",
		"capacityLiters": 1000.0,
		"level":          1500.0,
		"levelPercent":   150.0,
	}

	got, err := n.Normalize(rec)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Reading.LevelPercent != 100 {
		t.Fatalf("expected percent clamped to 100, got %v", got.Reading.LevelPercent)
	}
	if got.Reading.LevelLiters != 1000 {
		t.Fatalf("expected level clamped to capacity, got %v", got.Reading.LevelLiters)
	}
	if len(got.Warnings) < 2 {
		t.Fatalf("expected clamp warnings, got %v", got.Warnings)
	}
}

func TestNormalize_NumericStringsAccepted(t *testing.T) {
	n := NewNormalizer(WithNow(fixedNow))
	rec := RawRecord{
		"locationId": "loc-1",
		"sensorId":   "tank-9",
		"capacity":   "2000",
		"level":      "250.5",
		"vbat":       "3.7",
	}

	got, err := n.Normalize(rec)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Reading.LevelLiters != 250.5 {
		t.Fatalf("expected 250.5, got %v", got.Reading.LevelLiters)
	}
	if got.Asset.BatteryVoltage == nil || *got.Asset.BatteryVoltage != 3.7 {
		t.Fatalf("expected battery 3.7, got %v", got.Asset.BatteryVoltage)
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	n := NewNormalizer(WithNow(fixedNow))
	rec := RawRecord{
		"locationId": "loc-1",
		"assetId":    "tank-1",
		"capacity":   1000.0,
		"level":      300.0,
		"timestamp":  "2025-05-30T10:00:00Z",
	}

	first, err := n.Normalize(rec)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	second, err := n.Normalize(rec)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if first.Reading != second.Reading {
		t.Fatalf("expected identical readings, got %+v vs %+v", first.Reading, second.Reading)
	}
	if first.Asset.ExternalID != second.Asset.ExternalID || first.Asset.CurrentLevelLiters != second.Asset.CurrentLevelLiters {
		t.Fatalf("expected identical assets")
	}
}
