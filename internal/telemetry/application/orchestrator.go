package application

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"tankwatch-cloud/internal/observability/metrics"
	"tankwatch-cloud/internal/synclog"
	telemetry "tankwatch-cloud/internal/telemetry/domain"
)

const (
	defaultConcurrency  = 4
	defaultStoreTimeout = 10 * time.Second
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// ConsumptionEngine recomputes derived consumption fields for one asset.
type ConsumptionEngine interface {
	Recalculate(ctx context.Context, assetExternalID string) error
}

// AlertEvaluator evaluates threshold alerts for one asset and returns how
// many alerts were newly triggered.
type AlertEvaluator interface {
	EvaluateAsset(ctx context.Context, assetExternalID string) (int, error)
}

// Orchestrator sequences one ingestion batch: normalize, persist, recompute
// analytics for touched assets, evaluate alerts, record a sync log entry.
// Per-record failures never abort the batch.
type Orchestrator struct {
	normalizer *telemetry.Normalizer
	locations  telemetry.LocationRepository
	assets     telemetry.AssetRepository
	readings   telemetry.ReadingRepository

	engine   ConsumptionEngine
	alerts   AlertEvaluator
	recorder synclog.Recorder

	logger       *log.Logger
	clock        Clock
	concurrency  int
	storeTimeout time.Duration
}

// Option customizes the orchestrator.
type Option func(*Orchestrator)

// WithEngine assigns the consumption engine.
func WithEngine(engine ConsumptionEngine) Option {
	return func(o *Orchestrator) { o.engine = engine }
}

// WithAlertEvaluator assigns the alert evaluator.
func WithAlertEvaluator(alerts AlertEvaluator) Option {
	return func(o *Orchestrator) { o.alerts = alerts }
}

// WithRecorder assigns the sync log recorder.
func WithRecorder(recorder synclog.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = recorder }
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithConcurrency bounds per-record parallelism within a batch.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithStoreTimeout bounds each store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.storeTimeout = d
		}
	}
}

// NewOrchestrator constructs an orchestrator.
func NewOrchestrator(normalizer *telemetry.Normalizer, locations telemetry.LocationRepository, assets telemetry.AssetRepository, readings telemetry.ReadingRepository, opts ...Option) (*Orchestrator, error) {
	if normalizer == nil {
		return nil, errors.New("orchestrator: nil normalizer")
	}
	if locations == nil || assets == nil || readings == nil {
		return nil, errors.New("orchestrator: nil repository")
	}
	o := &Orchestrator{
		normalizer:   normalizer,
		locations:    locations,
		assets:       assets,
		readings:     readings,
		logger:       log.Default(),
		clock:        systemClock{},
		concurrency:  defaultConcurrency,
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

type batchState struct {
	mu        sync.Mutex
	result    telemetry.SyncResult
	touched   map[string]struct{}
	succeeded int
	failed    int
}

func (s *batchState) warn(record int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result.Warnings = append(s.result.Warnings, telemetry.RecordIssue{Record: record, Message: message})
}

func (s *batchState) fail(record int, field, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result.Errors = append(s.result.Errors, telemetry.RecordIssue{Record: record, Field: field, Message: message})
	s.failed++
}

// Run processes one batch of raw vendor records and returns the aggregated
// outcome. Source tags the sync log entry ("webhook" or "scheduled").
func (o *Orchestrator) Run(ctx context.Context, records []telemetry.RawRecord, source string) telemetry.SyncResult {
	start := o.clock.Now()
	state := &batchState{touched: make(map[string]struct{})}

	workers := o.concurrency
	if workers > len(records) {
		workers = len(records)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				o.processRecord(ctx, idx, records[idx], state)
			}
		}()
	}

	// Cancellation stops dispatching new records; in-flight records finish.
	for idx := range records {
		if ctx.Err() != nil {
			state.fail(idx, "", "run canceled before record was processed")
			metrics.IncIngestRecord("skipped")
			continue
		}
		select {
		case <-ctx.Done():
			state.fail(idx, "", "run canceled before record was processed")
			metrics.IncIngestRecord("skipped")
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()

	o.postProcess(ctx, state)

	state.result.Status = telemetry.ClassifyStatus(state.succeeded, state.failed)
	state.result.Duration = o.clock.Now().Sub(start)
	o.recordSyncLog(ctx, source, start, state.result)
	return state.result
}

func (o *Orchestrator) processRecord(ctx context.Context, idx int, rec telemetry.RawRecord, state *batchState) {
	norm, err := o.normalizer.Normalize(rec)
	if err != nil {
		field := ""
		var verr *telemetry.ValidationError
		if errors.As(err, &verr) {
			field = verr.Field
		}
		state.fail(idx, field, err.Error())
		metrics.IncIngestRecord("invalid")
		return
	}
	for _, warning := range norm.Warnings {
		state.warn(idx, warning)
	}

	if err := o.persist(ctx, idx, norm, state); err != nil {
		state.fail(idx, "", err.Error())
		metrics.IncIngestRecord("failed")
		return
	}

	state.mu.Lock()
	state.succeeded++
	state.touched[norm.Asset.ExternalID] = struct{}{}
	state.mu.Unlock()
	metrics.IncIngestRecord("ok")
}

func (o *Orchestrator) persist(ctx context.Context, idx int, norm *telemetry.NormalizedRecord, state *batchState) error {
	sctx, cancel := o.storeContext(ctx)
	_, err := o.locations.UpsertByExternalID(sctx, &norm.Location)
	cancel()
	if err != nil {
		return err
	}
	state.mu.Lock()
	state.result.LocationsProcessed++
	state.mu.Unlock()

	sctx, cancel = o.storeContext(ctx)
	_, err = o.assets.UpsertByExternalID(sctx, &norm.Asset)
	cancel()
	if err != nil {
		return err
	}
	state.mu.Lock()
	state.result.AssetsProcessed++
	state.mu.Unlock()

	sctx, cancel = o.storeContext(ctx)
	inserted, err := o.readings.AppendIfAbsent(sctx, norm.Reading)
	cancel()
	if err != nil {
		return err
	}
	if inserted {
		state.mu.Lock()
		state.result.ReadingsProcessed++
		state.mu.Unlock()
	} else {
		state.warn(idx, "duplicate reading ignored for asset "+norm.Reading.AssetExternalID)
	}
	return nil
}

// postProcess recomputes analytics and evaluates alerts for the assets
// touched by this batch only, never the whole fleet.
func (o *Orchestrator) postProcess(ctx context.Context, state *batchState) {
	state.mu.Lock()
	ids := make([]string, 0, len(state.touched))
	for id := range state.touched {
		ids = append(ids, id)
	}
	state.mu.Unlock()
	sort.Strings(ids)

	for _, id := range ids {
		if o.engine != nil {
			sctx, cancel := o.storeContext(ctx)
			err := o.engine.Recalculate(sctx, id)
			cancel()
			if err != nil {
				o.logger.Printf("ingest: recalculate asset %s: %v", id, err)
			}
		}
		if o.alerts != nil {
			sctx, cancel := o.storeContext(ctx)
			triggered, err := o.alerts.EvaluateAsset(sctx, id)
			cancel()
			if err != nil {
				o.logger.Printf("ingest: evaluate alerts for asset %s: %v", id, err)
				continue
			}
			state.mu.Lock()
			state.result.AlertsTriggered += triggered
			state.mu.Unlock()
		}
	}
}

// recordSyncLog writes the audit row for this run. Best effort: a failure is
// logged and never changes the reported result.
func (o *Orchestrator) recordSyncLog(ctx context.Context, source string, start time.Time, result telemetry.SyncResult) {
	if o.recorder == nil {
		return
	}
	entry := synclog.Entry{
		ID:                 synclog.NewID(),
		Source:             source,
		Status:             string(result.Status),
		LocationsProcessed: result.LocationsProcessed,
		AssetsProcessed:    result.AssetsProcessed,
		ReadingsProcessed:  result.ReadingsProcessed,
		AlertsTriggered:    result.AlertsTriggered,
		ErrorCount:         len(result.Errors),
		WarningCount:       len(result.Warnings),
		Duration:           result.Duration,
		StartedAt:          start,
	}
	if err := o.recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		o.logger.Printf("ingest: sync log write error: %v", err)
	}
}

func (o *Orchestrator) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, o.storeTimeout)
}
