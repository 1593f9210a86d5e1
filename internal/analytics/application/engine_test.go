package application

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	telemetry "tankwatch-cloud/internal/telemetry/domain"
	"tankwatch-cloud/internal/telemetry/infrastructure/memory"
)

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, opts ...EngineOption) (*Engine, *memory.AssetRepository, *memory.ReadingRepository) {
	t.Helper()
	assets := memory.NewAssetRepository()
	readings := memory.NewReadingRepository()
	base := []EngineOption{
		WithClock(fixedClock{at: testNow}),
		WithLogger(log.New(io.Discard, "", 0)),
	}
	engine, err := NewEngine(assets, readings, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine, assets, readings
}

func seedAsset(t *testing.T, assets *memory.AssetRepository, externalID string, level float64) {
	t.Helper()
	asset := &telemetry.Asset{
		ExternalID:         externalID,
		LocationExternalID: "loc-1",
		CapacityLiters:     1000,
		CurrentLevelLiters: level,
	}
	if _, err := assets.UpsertByExternalID(context.Background(), asset); err != nil {
		t.Fatalf("seed asset: %v", err)
	}
}

// seedDailyLevels stores one reading per day; levels[0] is the oldest day.
func seedDailyLevels(t *testing.T, readings *memory.ReadingRepository, externalID string, levels []float64) {
	t.Helper()
	for i, level := range levels {
		daysAgo := len(levels) - 1 - i
		ts := time.Date(testNow.Year(), testNow.Month(), testNow.Day(), 8, 0, 0, 0, time.UTC).AddDate(0, 0, -daysAgo)
		reading := telemetry.Reading{
			AssetExternalID: externalID,
			TS:              ts,
			LevelLiters:     level,
		}
		if _, err := readings.AppendIfAbsent(context.Background(), reading); err != nil {
			t.Fatalf("seed reading: %v", err)
		}
	}
}

func derived(t *testing.T, assets *memory.AssetRepository, externalID string) (*float64, *float64) {
	t.Helper()
	asset, err := assets.GetByExternalID(context.Background(), externalID)
	if err != nil || asset == nil {
		t.Fatalf("load asset: %v", err)
	}
	return asset.DailyConsumption, asset.DaysRemaining
}

func TestRecalculate_SteadyDecline(t *testing.T) {
	engine, assets, readings := newTestEngine(t)
	seedAsset(t, assets, "tank-1", 100)
	seedDailyLevels(t, readings, "tank-1", []float64{700, 600, 500, 400, 300, 200, 100})

	if err := engine.Recalculate(context.Background(), "tank-1"); err != nil {
		t.Fatalf("recalculate: %v", err)
	}

	burn, days := derived(t, assets, "tank-1")
	if burn == nil || *burn != 100 {
		t.Fatalf("expected burn rate 100, got %v", burn)
	}
	if days == nil || *days != 1.0 {
		t.Fatalf("expected 1.0 days remaining, got %v", days)
	}
}

func TestRecalculate_FlatLevels(t *testing.T) {
	engine, assets, readings := newTestEngine(t)
	seedAsset(t, assets, "tank-1", 500)
	seedDailyLevels(t, readings, "tank-1", []float64{500, 500, 500, 500, 500, 500, 500})

	if err := engine.Recalculate(context.Background(), "tank-1"); err != nil {
		t.Fatalf("recalculate: %v", err)
	}

	burn, days := derived(t, assets, "tank-1")
	if burn == nil || *burn != 0 {
		t.Fatalf("expected burn rate 0, got %v", burn)
	}
	if days != nil {
		t.Fatalf("expected no days remaining for zero burn, got %v", *days)
	}
}

func TestRecalculate_RefillDominates(t *testing.T) {
	engine, assets, readings := newTestEngine(t)
	seedAsset(t, assets, "tank-1", 900)
	// One large refill swamps the small daily drops.
	seedDailyLevels(t, readings, "tank-1", []float64{300, 280, 260, 240, 220, 950, 900})

	if err := engine.Recalculate(context.Background(), "tank-1"); err != nil {
		t.Fatalf("recalculate: %v", err)
	}

	burn, days := derived(t, assets, "tank-1")
	if burn == nil || *burn >= 0 {
		t.Fatalf("expected negative burn rate, got %v", burn)
	}
	if days != nil {
		t.Fatalf("expected no days remaining for negative burn, got %v", *days)
	}
}

func TestRecalculate_SparseDaysDiluteAverage(t *testing.T) {
	engine, assets, readings := newTestEngine(t)
	seedAsset(t, assets, "tank-1", 440)
	// Only today and yesterday have readings: one 60 L drop over 6 pairs.
	seedDailyLevels(t, readings, "tank-1", []float64{500, 440})

	if err := engine.Recalculate(context.Background(), "tank-1"); err != nil {
		t.Fatalf("recalculate: %v", err)
	}

	burn, _ := derived(t, assets, "tank-1")
	if burn == nil || *burn != 10 {
		t.Fatalf("expected burn rate 10, got %v", burn)
	}
}

func TestRecalculate_LatestReadingPerDayWins(t *testing.T) {
	engine, assets, readings := newTestEngine(t)
	seedAsset(t, assets, "tank-1", 400)
	seedDailyLevels(t, readings, "tank-1", []float64{500, 450})

	// A later reading on the same day replaces the morning one. It must
	// still be before the engine's clock or ListRange excludes it.
	late := telemetry.Reading{
		AssetExternalID: "tank-1",
		TS:              time.Date(testNow.Year(), testNow.Month(), testNow.Day(), 11, 0, 0, 0, time.UTC),
		LevelLiters:     400,
	}
	if _, err := readings.AppendIfAbsent(context.Background(), late); err != nil {
		t.Fatalf("seed late reading: %v", err)
	}

	if err := engine.Recalculate(context.Background(), "tank-1"); err != nil {
		t.Fatalf("recalculate: %v", err)
	}

	burn, _ := derived(t, assets, "tank-1")
	if burn == nil {
		t.Fatal("expected burn rate, got nil")
	}
	want := 100.0 / 6
	if *burn < want-0.001 || *burn > want+0.001 {
		t.Fatalf("expected burn rate %.3f, got %.3f", want, *burn)
	}
}

func TestRecalculate_NoReadings(t *testing.T) {
	engine, assets, _ := newTestEngine(t)
	seedAsset(t, assets, "tank-1", 500)

	err := engine.Recalculate(context.Background(), "tank-1")
	if !errors.Is(err, ErrNoReadings) {
		t.Fatalf("expected ErrNoReadings, got %v", err)
	}
}

func TestRecalculate_UnknownAsset(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	err := engine.Recalculate(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected error for unknown asset")
	}
}

func TestRecalculate_DaysRemainingRounded(t *testing.T) {
	engine, assets, readings := newTestEngine(t)
	seedAsset(t, assets, "tank-1", 250)
	seedDailyLevels(t, readings, "tank-1", []float64{850, 750, 650, 550, 450, 350, 250})

	if err := engine.Recalculate(context.Background(), "tank-1"); err != nil {
		t.Fatalf("recalculate: %v", err)
	}

	_, days := derived(t, assets, "tank-1")
	if days == nil || *days != 2.5 {
		t.Fatalf("expected 2.5 days remaining, got %v", days)
	}
}

func TestRecalculateAll_MixedOutcomes(t *testing.T) {
	engine, assets, readings := newTestEngine(t)
	seedAsset(t, assets, "tank-1", 100)
	seedDailyLevels(t, readings, "tank-1", []float64{700, 600, 500, 400, 300, 200, 100})
	seedAsset(t, assets, "tank-2", 500) // no readings

	result, err := engine.RecalculateAll(context.Background())
	if err != nil {
		t.Fatalf("recalculate all: %v", err)
	}
	if result.Processed != 2 {
		t.Fatalf("expected 2 processed, got %d", result.Processed)
	}
	if result.Updated != 1 || result.Failed != 1 {
		t.Fatalf("expected 1 updated and 1 failed, got %+v", result)
	}
}
