package vendorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	telemetry "tankwatch-cloud/internal/telemetry/domain"
)

// Client is a minimal REST client for the vendor telemetry API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.client = httpClient
		}
	}
}

// NewClient constructs a vendor client.
func NewClient(baseURL, token string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("vendorclient: empty base url")
	}
	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// FetchLatest pulls the latest telemetry snapshot for every tank the
// vendor account can see. The vendor pages its results; all pages are
// drained into one batch.
func (c *Client) FetchLatest(ctx context.Context) ([]telemetry.RawRecord, error) {
	if c == nil {
		return nil, errors.New("vendorclient: nil client")
	}
	var records []telemetry.RawRecord
	for page := 0; page < 50; page++ {
		path := fmt.Sprintf("/api/tanks/latest?page=%d&pageSize=100", page)
		var resp recordsPage
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
			if errors.Is(err, errNotFound) {
				break
			}
			return nil, err
		}
		records = append(records, resp.Data...)
		if !resp.HasNext {
			break
		}
	}
	return records, nil
}

// FetchSince pulls telemetry recorded after the given time.
func (c *Client) FetchSince(ctx context.Context, since time.Time) ([]telemetry.RawRecord, error) {
	if c == nil {
		return nil, errors.New("vendorclient: nil client")
	}
	var records []telemetry.RawRecord
	for page := 0; page < 50; page++ {
		path := fmt.Sprintf("/api/tanks/readings?since=%s&page=%d&pageSize=100",
			since.UTC().Format(time.RFC3339), page)
		var resp recordsPage
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
			if errors.Is(err, errNotFound) {
				break
			}
			return nil, err
		}
		records = append(records, resp.Data...)
		if !resp.HasNext {
			break
		}
	}
	return records, nil
}

type recordsPage struct {
	Data    []telemetry.RawRecord `json:"data"`
	HasNext bool                  `json:"hasNext"`
}

var errNotFound = errors.New("vendorclient: not found")

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("vendorclient: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
