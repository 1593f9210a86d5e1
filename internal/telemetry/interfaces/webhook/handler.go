package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"tankwatch-cloud/internal/observability/metrics"
	telemetry "tankwatch-cloud/internal/telemetry/domain"
)

// maxIssues caps warnings and errors echoed in the response to bound payload
// size.
const maxIssues = 5

// BatchRunner runs one ingestion batch.
type BatchRunner interface {
	Run(ctx context.Context, records []telemetry.RawRecord, source string) telemetry.SyncResult
}

// IngestHandler accepts vendor telemetry batches pushed over HTTP.
type IngestHandler struct {
	runner BatchRunner
	logger *log.Logger
}

// NewIngestHandler constructs an ingest handler.
func NewIngestHandler(runner BatchRunner, logger *log.Logger) (*IngestHandler, error) {
	if runner == nil {
		return nil, errors.New("webhook ingest: nil runner")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &IngestHandler{runner: runner, logger: logger}, nil
}

type ingestStats struct {
	LocationsProcessed int    `json:"locationsProcessed"`
	AssetsProcessed    int    `json:"assetsProcessed"`
	ReadingsProcessed  int    `json:"readingsProcessed"`
	AlertsTriggered    int    `json:"alertsTriggered"`
	Duration           string `json:"duration"`
}

type ingestResponse struct {
	Success  bool                    `json:"success"`
	Message  string                  `json:"message"`
	Stats    ingestStats             `json:"stats"`
	Errors   []telemetry.RecordIssue `json:"errors,omitempty"`
	Warnings []telemetry.RecordIssue `json:"warnings,omitempty"`
}

// ServeHTTP ingests one telemetry batch. The payload is either a single
// vendor record object or an array of them.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Printf("telemetry ingest: read body error: %v", err)
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	records, err := splitRecords(body)
	if err != nil {
		h.logger.Printf("telemetry ingest: decode error: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := h.runner.Run(r.Context(), records, "webhook")
	metrics.ObserveIngest(string(result.Status), time.Since(start))

	writeResult(w, result)
	h.logger.Printf("telemetry ingest: status=%s records=%d errors=%d warnings=%d duration=%s",
		result.Status, len(records), len(result.Errors), len(result.Warnings), result.Duration)
}

// splitRecords decodes a payload into individual vendor records, accepting
// either a single object or an array.
func splitRecords(body []byte) ([]telemetry.RawRecord, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty body")
	}

	if trimmed[0] == '[' {
		var records []telemetry.RawRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, errors.New("invalid json")
		}
		if len(records) == 0 {
			return nil, errors.New("empty batch")
		}
		return records, nil
	}

	var record telemetry.RawRecord
	if err := json.Unmarshal(trimmed, &record); err != nil {
		return nil, errors.New("invalid json")
	}
	return []telemetry.RawRecord{record}, nil
}

func writeResult(w http.ResponseWriter, result telemetry.SyncResult) {
	resp := ingestResponse{
		Success: result.Status == telemetry.StatusSuccess,
		Message: statusMessage(result.Status),
		Stats: ingestStats{
			LocationsProcessed: result.LocationsProcessed,
			AssetsProcessed:    result.AssetsProcessed,
			ReadingsProcessed:  result.ReadingsProcessed,
			AlertsTriggered:    result.AlertsTriggered,
			Duration:           result.Duration.String(),
		},
		Errors:   capIssues(result.Errors),
		Warnings: capIssues(result.Warnings),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode(result.Status))
	_ = json.NewEncoder(w).Encode(resp)
}

func statusCode(status telemetry.Status) int {
	switch status {
	case telemetry.StatusSuccess:
		return http.StatusOK
	case telemetry.StatusPartial:
		return http.StatusMultiStatus
	default:
		return http.StatusBadRequest
	}
}

func statusMessage(status telemetry.Status) string {
	switch status {
	case telemetry.StatusSuccess:
		return "all records processed"
	case telemetry.StatusPartial:
		return "some records failed"
	default:
		return "no records processed"
	}
}

func capIssues(issues []telemetry.RecordIssue) []telemetry.RecordIssue {
	if len(issues) > maxIssues {
		return issues[:maxIssues]
	}
	return issues
}
