package vendorclient

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	telemetry "tankwatch-cloud/internal/telemetry/domain"
)

type fakeFetcher struct {
	latestCalls int
	sinceCalls  []time.Time
	records     []telemetry.RawRecord
	err         error
}

func (f *fakeFetcher) FetchLatest(_ context.Context) ([]telemetry.RawRecord, error) {
	f.latestCalls++
	return f.records, f.err
}

func (f *fakeFetcher) FetchSince(_ context.Context, since time.Time) ([]telemetry.RawRecord, error) {
	f.sinceCalls = append(f.sinceCalls, since)
	return f.records, f.err
}

type fakeRunner struct {
	runs int
}

func (r *fakeRunner) Run(_ context.Context, records []telemetry.RawRecord, _ string) telemetry.SyncResult {
	r.runs++
	return telemetry.SyncResult{Status: telemetry.StatusSuccess, ReadingsProcessed: len(records)}
}

func newTestPoller(t *testing.T, fetcher *fakeFetcher, runner *fakeRunner) *Poller {
	t.Helper()
	poller, err := NewPoller(fetcher, runner, time.Minute, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new poller: %v", err)
	}
	return poller
}

func TestPoller_FirstPullIsFullThenIncremental(t *testing.T) {
	fetcher := &fakeFetcher{records: []telemetry.RawRecord{{"assetId": "tank-1"}}}
	runner := &fakeRunner{}
	poller := newTestPoller(t, fetcher, runner)

	before := time.Now().UTC()
	poller.runOnce(context.Background())
	poller.runOnce(context.Background())

	if fetcher.latestCalls != 1 {
		t.Fatalf("expected 1 full pull, got %d", fetcher.latestCalls)
	}
	if len(fetcher.sinceCalls) != 1 {
		t.Fatalf("expected 1 incremental pull, got %d", len(fetcher.sinceCalls))
	}
	if fetcher.sinceCalls[0].Before(before) {
		t.Fatalf("incremental since %v predates first pull start %v", fetcher.sinceCalls[0], before)
	}
	if runner.runs != 2 {
		t.Fatalf("expected 2 ingestion runs, got %d", runner.runs)
	}
}

func TestPoller_FetchErrorDoesNotAdvanceCursor(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("boom")}
	runner := &fakeRunner{}
	poller := newTestPoller(t, fetcher, runner)

	poller.runOnce(context.Background())
	fetcher.err = nil
	fetcher.records = []telemetry.RawRecord{{"assetId": "tank-1"}}
	poller.runOnce(context.Background())

	// The failed pull must not mark progress: the retry is still a full pull.
	if fetcher.latestCalls != 2 {
		t.Fatalf("expected 2 full pulls, got %d", fetcher.latestCalls)
	}
	if len(fetcher.sinceCalls) != 0 {
		t.Fatalf("expected no incremental pulls, got %d", len(fetcher.sinceCalls))
	}
	if runner.runs != 1 {
		t.Fatalf("expected 1 ingestion run, got %d", runner.runs)
	}
}

func TestPoller_EmptyBatchSkipsRunner(t *testing.T) {
	fetcher := &fakeFetcher{}
	runner := &fakeRunner{}
	poller := newTestPoller(t, fetcher, runner)

	poller.runOnce(context.Background())

	if runner.runs != 0 {
		t.Fatalf("expected no ingestion runs, got %d", runner.runs)
	}
}
