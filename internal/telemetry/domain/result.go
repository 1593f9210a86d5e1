package telemetry

import "time"

// Status classifies the outcome of one ingestion run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
)

// RecordIssue ties a warning or error back to the record that caused it.
type RecordIssue struct {
	Record  int    `json:"record"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// SyncResult aggregates the outcome of one ingestion run.
type SyncResult struct {
	Status             Status
	LocationsProcessed int
	AssetsProcessed    int
	ReadingsProcessed  int
	AlertsTriggered    int
	Duration           time.Duration
	Warnings           []RecordIssue
	Errors             []RecordIssue
}

// ClassifyStatus derives the overall status from per-record outcomes.
// Partial requires both at least one success and at least one failure.
func ClassifyStatus(succeeded, failed int) Status {
	switch {
	case failed == 0:
		return StatusSuccess
	case succeeded == 0:
		return StatusError
	default:
		return StatusPartial
	}
}
