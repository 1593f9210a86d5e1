package vendorclient

import (
	"context"
	"errors"
	"log"
	"time"

	telemetry "tankwatch-cloud/internal/telemetry/domain"
)

// Fetcher pulls raw telemetry from the vendor API.
type Fetcher interface {
	FetchLatest(ctx context.Context) ([]telemetry.RawRecord, error)
	FetchSince(ctx context.Context, since time.Time) ([]telemetry.RawRecord, error)
}

// BatchRunner ingests a batch of raw records.
type BatchRunner interface {
	Run(ctx context.Context, records []telemetry.RawRecord, source string) telemetry.SyncResult
}

// Poller periodically pulls vendor telemetry and feeds it through the
// same ingestion path as webhook deliveries. The first pull drains the
// full latest snapshot; later pulls fetch incrementally from the last
// successful pull time.
type Poller struct {
	fetcher  Fetcher
	runner   BatchRunner
	interval time.Duration
	logger   *log.Logger

	lastPull time.Time
}

// NewPoller constructs a poller.
func NewPoller(fetcher Fetcher, runner BatchRunner, interval time.Duration, logger *log.Logger) (*Poller, error) {
	if fetcher == nil {
		return nil, errors.New("vendorclient: nil fetcher")
	}
	if runner == nil {
		return nil, errors.New("vendorclient: nil runner")
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Poller{fetcher: fetcher, runner: runner, interval: interval, logger: logger}, nil
}

// Start begins the poll loop. It blocks until the context is canceled.
func (p *Poller) Start(ctx context.Context) {
	if p == nil {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	started := time.Now().UTC()

	var records []telemetry.RawRecord
	var err error
	if p.lastPull.IsZero() {
		records, err = p.fetcher.FetchLatest(ctx)
	} else {
		records, err = p.fetcher.FetchSince(ctx, p.lastPull)
	}
	if err != nil {
		p.logger.Printf("vendor pull error: %v", err)
		return
	}
	p.lastPull = started

	if len(records) == 0 {
		return
	}
	result := p.runner.Run(ctx, records, "vendor")
	p.logger.Printf("vendor pull: status=%s readings=%d errors=%d",
		result.Status, result.ReadingsProcessed, len(result.Errors))
}
