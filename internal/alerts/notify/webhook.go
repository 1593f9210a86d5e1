package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	alertapp "tankwatch-cloud/internal/alerts/application"
)

// WebhookNotifier posts alert events to an external webhook endpoint.
// Delivery is best effort; failures are logged and never surfaced to
// the evaluation path.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *log.Logger
}

// WebhookOption configures the webhook notifier.
type WebhookOption func(*WebhookNotifier)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(n *WebhookNotifier) {
		if client != nil {
			n.client = client
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) WebhookOption {
	return func(n *WebhookNotifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewWebhookNotifier constructs a webhook notifier.
func NewWebhookNotifier(url string, opts ...WebhookOption) (*WebhookNotifier, error) {
	if url == "" {
		return nil, errors.New("webhook notifier: empty url")
	}
	notifier := &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(notifier)
	}
	return notifier, nil
}

// Notify implements alertapp.Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, event alertapp.Event) {
	if n == nil || n.url == "" {
		return
	}
	if err := n.post(ctx, event); err != nil {
		n.logger.Printf("alert webhook delivery failed: %v", err)
	}
}

func (n *WebhookNotifier) post(ctx context.Context, event alertapp.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook notifier: non-2xx response %d", resp.StatusCode)
	}
	return nil
}
