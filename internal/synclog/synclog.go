package synclog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entry is one audit row describing an ingestion or recalculation run.
type Entry struct {
	ID                 string
	Source             string
	Status             string
	LocationsProcessed int
	AssetsProcessed    int
	ReadingsProcessed  int
	AlertsTriggered    int
	ErrorCount         int
	WarningCount       int
	Duration           time.Duration
	Details            json.RawMessage
	StartedAt          time.Time
	CreatedAt          time.Time
}

// Recorder writes sync log entries. Writes are best effort: callers must
// never let a recorder failure change the outcome of the run it describes.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// NewID generates a random sync log id.
func NewID() string {
	return "sync-" + uuid.NewString()
}
