package application

import (
	"context"
	"errors"
	"time"

	alerts "tankwatch-cloud/internal/alerts/domain"
	"tankwatch-cloud/internal/observability/metrics"
	telemetry "tankwatch-cloud/internal/telemetry/domain"
)

// AlertRepository persists alert rows keyed by (asset, reason).
type AlertRepository interface {
	FindActiveByAsset(ctx context.Context, assetID string) ([]alerts.Alert, error)
	Save(ctx context.Context, alert *alerts.Alert) error
	MarkCleared(ctx context.Context, assetID, reason string, at time.Time) error
	List(ctx context.Context, assetID, status string, limit int) ([]alerts.Alert, error)
}

// AssetReader serves current asset state for evaluation.
type AssetReader interface {
	GetByExternalID(ctx context.Context, externalID string) (*telemetry.Asset, error)
}

// Notifier publishes alert lifecycle events.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Event represents a lifecycle update.
type Event struct {
	Type  string       `json:"type"`
	Alert alerts.Alert `json:"alert"`
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Service evaluates thresholds against asset state and keeps at most one
// active alert per asset, superseding rather than duplicating.
type Service struct {
	repo       AlertRepository
	assets     AssetReader
	thresholds alerts.Thresholds
	notifier   Notifier
	clock      Clock
}

// ServiceOption customizes the service.
type ServiceOption func(*Service)

// WithNotifier assigns a notifier.
func WithNotifier(notifier Notifier) ServiceOption {
	return func(s *Service) { s.notifier = notifier }
}

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs an alert service.
func NewService(repo AlertRepository, assets AssetReader, thresholds alerts.Thresholds, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("alerts: nil repository")
	}
	if assets == nil {
		return nil, errors.New("alerts: nil asset reader")
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	service := &Service{
		repo:       repo,
		assets:     assets,
		thresholds: thresholds,
		clock:      systemClock{},
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// EvaluateAsset re-evaluates thresholds for one asset and reconciles the
// stored alert rows. Returns how many alerts were newly triggered; an
// unchanged evaluation triggers nothing.
func (s *Service) EvaluateAsset(ctx context.Context, assetExternalID string) (int, error) {
	if s == nil {
		return 0, errors.New("alerts: nil service")
	}
	if assetExternalID == "" {
		return 0, errors.New("alerts: empty asset id")
	}

	asset, err := s.assets.GetByExternalID(ctx, assetExternalID)
	if err != nil {
		return 0, err
	}
	if asset == nil {
		return 0, errors.New("alerts: unknown asset " + assetExternalID)
	}

	active, err := s.repo.FindActiveByAsset(ctx, assetExternalID)
	if err != nil {
		return 0, err
	}

	eval, warranted := s.thresholds.Evaluate(asset.LevelPercent(), asset.DaysRemaining)
	now := s.clock.Now().UTC()

	alreadyActive := false
	for _, existing := range active {
		if warranted && existing.Reason == eval.Reason {
			alreadyActive = true
			continue
		}
		if err := s.repo.MarkCleared(ctx, existing.AssetID, existing.Reason, now); err != nil {
			return 0, err
		}
		existing.Status = alerts.StatusCleared
		existing.ClearedAt = now
		existing.UpdatedAt = now
		s.notify(ctx, "cleared", existing)
	}

	if !warranted || alreadyActive {
		return 0, nil
	}

	alert := alerts.Alert{
		ID:            alerts.BuildAlertID(assetExternalID, eval.Reason),
		AssetID:       assetExternalID,
		Reason:        eval.Reason,
		Severity:      eval.Severity,
		Status:        alerts.StatusActive,
		Message:       eval.Message,
		LevelPercent:  asset.LevelPercent(),
		DaysRemaining: asset.DaysRemaining,
		RaisedAt:      now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Save(ctx, &alert); err != nil {
		return 0, err
	}
	s.notify(ctx, "active", alert)
	return 1, nil
}

// ListAlerts returns alerts filtered by asset and status.
func (s *Service) ListAlerts(ctx context.Context, assetID, status string, limit int) ([]alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.List(ctx, assetID, status, limit)
}

func (s *Service) notify(ctx context.Context, eventType string, alert alerts.Alert) {
	metrics.IncAlertEvent(eventType)
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, Event{Type: eventType, Alert: alert})
}
