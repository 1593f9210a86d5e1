package webhook

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	telemetryapp "tankwatch-cloud/internal/telemetry/application"
	telemetry "tankwatch-cloud/internal/telemetry/domain"
	"tankwatch-cloud/internal/telemetry/infrastructure/memory"
)

func newHandler(t *testing.T) *IngestHandler {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	orchestrator, err := telemetryapp.NewOrchestrator(
		telemetry.NewNormalizer(),
		memory.NewLocationRepository(),
		memory.NewAssetRepository(),
		memory.NewReadingRepository(),
		telemetryapp.WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	handler, err := NewIngestHandler(orchestrator, logger)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler
}

func decodeResponse(t *testing.T, resp *httptest.ResponseRecorder) ingestResponse {
	t.Helper()
	var body ingestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestIngest_MixedBatch(t *testing.T) {
	handler := newHandler(t)

	payload := `[
		{"locationId":"loc-1","assetId":"tank-1","capacityLiters":1000,"level":500,"timestamp":"2025-06-01T10:00:00Z"},
		{"level":100},
		{"site_id":"loc-2","tank_id":"tank-2","tankSize":2000,"fill_percent":30,"ts":"2025-06-01T11:00:00Z"}
	]`
	req := httptest.NewRequest(http.MethodPost, "/ingest/telemetry", strings.NewReader(payload))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d", resp.Code)
	}
	body := decodeResponse(t, resp)
	if body.Success {
		t.Fatal("expected success=false for partial batch")
	}
	if body.Stats.AssetsProcessed != 2 {
		t.Fatalf("expected 2 assets processed, got %d", body.Stats.AssetsProcessed)
	}
	if body.Stats.ReadingsProcessed != 2 {
		t.Fatalf("expected 2 readings processed, got %d", body.Stats.ReadingsProcessed)
	}
	if len(body.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", body.Errors)
	}
	if body.Errors[0].Record != 1 {
		t.Fatalf("expected error referencing record 1, got %d", body.Errors[0].Record)
	}
}

func TestIngest_SingleObject(t *testing.T) {
	handler := newHandler(t)

	payload := `{"locationId":"loc-1","assetId":"tank-1","capacityLiters":1000,"level":500,"timestamp":"2025-06-01T10:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/ingest/telemetry", strings.NewReader(payload))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	body := decodeResponse(t, resp)
	if !body.Success {
		t.Fatalf("expected success, got %+v", body)
	}
	if body.Stats.ReadingsProcessed != 1 {
		t.Fatalf("expected 1 reading, got %d", body.Stats.ReadingsProcessed)
	}
}

func TestIngest_AllInvalid(t *testing.T) {
	handler := newHandler(t)

	payload := `[{"level":1},{"level":2}]`
	req := httptest.NewRequest(http.MethodPost, "/ingest/telemetry", strings.NewReader(payload))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	body := decodeResponse(t, resp)
	if body.Success {
		t.Fatal("expected success=false")
	}
	if len(body.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %v", body.Errors)
	}
}

func TestIngest_MethodNotAllowed(t *testing.T) {
	handler := newHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/ingest/telemetry", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
}

func TestIngest_EmptyBody(t *testing.T) {
	handler := newHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/ingest/telemetry", strings.NewReader(""))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestIngest_InvalidJSON(t *testing.T) {
	handler := newHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/ingest/telemetry", strings.NewReader("{not json"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestIngest_EmptyArray(t *testing.T) {
	handler := newHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/ingest/telemetry", strings.NewReader("[]"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestIngest_IssueCapInResponse(t *testing.T) {
	handler := newHandler(t)

	records := make([]string, 8)
	for i := range records {
		records[i] = `{"level":1}`
	}
	payload := "[" + strings.Join(records, ",") + "]"
	req := httptest.NewRequest(http.MethodPost, "/ingest/telemetry", strings.NewReader(payload))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	body := decodeResponse(t, resp)
	if len(body.Errors) != maxIssues {
		t.Fatalf("expected errors capped at %d, got %d", maxIssues, len(body.Errors))
	}
}

var _ BatchRunner = (*telemetryapp.Orchestrator)(nil)
