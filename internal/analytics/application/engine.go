package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"tankwatch-cloud/internal/observability/metrics"
	telemetry "tankwatch-cloud/internal/telemetry/domain"
)

const (
	defaultWindowDays  = 7
	defaultConcurrency = 4
	defaultTimeout     = 15 * time.Second
)

// ErrNoReadings marks an asset with no reading history inside the window.
var ErrNoReadings = errors.New("analytics: no readings in window")

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// AssetStore is the asset access the engine needs.
type AssetStore interface {
	GetByExternalID(ctx context.Context, externalID string) (*telemetry.Asset, error)
	ListActive(ctx context.Context) ([]telemetry.Asset, error)
	UpdateDerived(ctx context.Context, externalID string, dailyConsumption float64, daysRemaining *float64) error
}

// ReadingSource serves ordered reading history.
type ReadingSource interface {
	ListRange(ctx context.Context, assetExternalID string, since, until time.Time) ([]telemetry.Reading, error)
}

// Engine estimates burn rate and days remaining from reading history using a
// trailing windowed-diff average.
type Engine struct {
	assets   AssetStore
	readings ReadingSource

	windowDays  int
	concurrency int
	timeout     time.Duration
	clock       Clock
	logger      *log.Logger
}

// EngineOption customizes the engine.
type EngineOption func(*Engine)

// WithWindowDays overrides the trailing window length.
func WithWindowDays(days int) EngineOption {
	return func(e *Engine) {
		if days > 1 {
			e.windowDays = days
		}
	}
}

// WithConcurrency bounds the RecalculateAll worker pool.
func WithConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithTimeout bounds each per-asset recalculation.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine constructs a consumption engine.
func NewEngine(assets AssetStore, readings ReadingSource, opts ...EngineOption) (*Engine, error) {
	if assets == nil {
		return nil, errors.New("analytics: nil asset store")
	}
	if readings == nil {
		return nil, errors.New("analytics: nil reading source")
	}
	e := &Engine{
		assets:      assets,
		readings:    readings,
		windowDays:  defaultWindowDays,
		concurrency: defaultConcurrency,
		timeout:     defaultTimeout,
		clock:       systemClock{},
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Recalculate recomputes burn rate and days remaining for one asset and
// persists the derived fields onto the asset record.
func (e *Engine) Recalculate(ctx context.Context, assetExternalID string) error {
	if e == nil {
		return errors.New("analytics: nil engine")
	}
	asset, err := e.assets.GetByExternalID(ctx, assetExternalID)
	if err != nil {
		return err
	}
	if asset == nil {
		return fmt.Errorf("analytics: unknown asset %q", assetExternalID)
	}

	now := e.clock.Now().UTC()
	since := now.AddDate(0, 0, -e.windowDays)
	readings, err := e.readings.ListRange(ctx, assetExternalID, since, now)
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		return ErrNoReadings
	}

	avg := e.rollingAverage(readings, now)
	var daysRemaining *float64
	if avg > 0 {
		days := round1(asset.CurrentLevelLiters / avg)
		daysRemaining = &days
	}
	return e.assets.UpdateDerived(ctx, assetExternalID, avg, daysRemaining)
}

// rollingAverage buckets readings into calendar days, keeps the latest level
// per day, and averages the pairwise day-over-day drops across
// every adjacent day pair in the window. A pair with a missing neighbor
// contributes 0 but stays in the denominator, so refill days and sparse days
// pull the average down rather than being excluded.
func (e *Engine) rollingAverage(readings []telemetry.Reading, now time.Time) float64 {
	levelByDay := make(map[string]float64, e.windowDays)
	for _, reading := range readings {
		// Readings arrive ascending, so the last write per day wins.
		levelByDay[dayKey(reading.TS)] = reading.LevelLiters
	}

	pairs := e.windowDays - 1
	var sum float64
	for i := 0; i < pairs; i++ {
		newer, newerOK := levelByDay[dayKey(now.AddDate(0, 0, -i))]
		older, olderOK := levelByDay[dayKey(now.AddDate(0, 0, -i-1))]
		if !newerOK || !olderOK {
			continue
		}
		// Positive when the level dropped; a refill yields a negative diff
		// that stays in the average.
		sum += older - newer
	}
	return sum / float64(pairs)
}

// BatchResult reports one RecalculateAll run.
type BatchResult struct {
	Processed int `json:"processed"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`
}

// RecalculateAll recomputes every active asset independently through a
// bounded worker pool. One asset's failure never stops the batch.
func (e *Engine) RecalculateAll(ctx context.Context) (BatchResult, error) {
	start := time.Now()
	assets, err := e.assets.ListActive(ctx)
	if err != nil {
		metrics.ObserveRecalc(metrics.ResultError, time.Since(start))
		return BatchResult{}, err
	}

	workers := e.concurrency
	if workers > len(assets) {
		workers = len(assets)
	}
	if workers < 1 {
		workers = 1
	}

	var (
		mu     sync.Mutex
		result BatchResult
	)
	jobs := make(chan telemetry.Asset)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for asset := range jobs {
				actx, cancel := context.WithTimeout(ctx, e.timeout)
				err := e.Recalculate(actx, asset.ExternalID)
				cancel()

				mu.Lock()
				result.Processed++
				if err != nil {
					result.Failed++
				} else {
					result.Updated++
				}
				mu.Unlock()

				if err != nil {
					metrics.IncRecalcAsset("failed")
					e.logger.Printf("analytics: recalculate asset %s: %v", asset.ExternalID, err)
				} else {
					metrics.IncRecalcAsset("updated")
				}
			}
		}()
	}

	for _, asset := range assets {
		if ctx.Err() != nil {
			break
		}
		jobs <- asset
	}
	close(jobs)
	wg.Wait()

	outcome := metrics.ResultSuccess
	if result.Failed > 0 {
		outcome = metrics.ResultPartial
	}
	metrics.ObserveRecalc(outcome, time.Since(start))
	return result, nil
}

func round1(value float64) float64 {
	return math.Round(value*10) / 10
}

func dayKey(ts time.Time) string {
	return ts.UTC().Format("2006-01-02")
}
