package interfaces

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"tankwatch-cloud/internal/analytics/application"
	"tankwatch-cloud/internal/synclog"
)

// RecalculateHandler triggers a fleet-wide consumption recalculation.
type RecalculateHandler struct {
	engine   *application.Engine
	recorder synclog.Recorder
	logger   *log.Logger
}

// NewRecalculateHandler constructs the handler.
func NewRecalculateHandler(engine *application.Engine, recorder synclog.Recorder, logger *log.Logger) (*RecalculateHandler, error) {
	if engine == nil {
		return nil, errors.New("recalculate handler: nil engine")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RecalculateHandler{engine: engine, recorder: recorder, logger: logger}, nil
}

// ServeHTTP handles POST /jobs/recalculate.
func (h *RecalculateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	start := time.Now().UTC()
	result, err := h.engine.RecalculateAll(r.Context())
	if err != nil {
		h.logger.Printf("recalculate: %v", err)
		http.Error(w, "recalculate error", http.StatusInternalServerError)
		return
	}

	h.recordSyncLog(r, start, result)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
	h.logger.Printf("recalculate: processed=%d updated=%d failed=%d duration=%s",
		result.Processed, result.Updated, result.Failed, time.Since(start))
}

// recordSyncLog is best effort; a write failure never changes the response.
func (h *RecalculateHandler) recordSyncLog(r *http.Request, start time.Time, result application.BatchResult) {
	if h.recorder == nil {
		return
	}
	status := "success"
	if result.Failed > 0 {
		status = "partial"
	}
	entry := synclog.Entry{
		ID:              synclog.NewID(),
		Source:          "scheduled",
		Status:          status,
		AssetsProcessed: result.Processed,
		ErrorCount:      result.Failed,
		Duration:        time.Since(start),
		StartedAt:       start,
	}
	if err := h.recorder.Record(r.Context(), entry); err != nil {
		h.logger.Printf("recalculate: sync log write error: %v", err)
	}
}
