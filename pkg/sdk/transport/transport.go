package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nicktill/munin2tinyobs/pkg/sdk/metrics"
	"github.com/nicktill/munin2tinyobs/pkg/storage"
)

// DefaultTimeout bounds a single batch POST
const DefaultTimeout = 10 * time.Second

// WritePayload is the JSON body accepted by a /v1/write endpoint
type WritePayload struct {
	Requests []metrics.WriteRequest `json:"requests"`
}

// HTTPTransport implements storage.Writer by POSTing batches to a
// munin2tinyobs server
type HTTPTransport struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTP creates a new HTTP transport
func NewHTTP(endpoint, apiKey string) (*HTTPTransport, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("transport endpoint is required")
	}

	return &HTTPTransport{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: DefaultTimeout,
		},
	}, nil
}

// Write sends one batch to the write endpoint
func (t *HTTPTransport) Write(ctx context.Context, requests []metrics.WriteRequest) error {
	if len(requests) == 0 {
		return nil
	}

	jsonData, err := json.Marshal(WritePayload{Requests: requests})
	if err != nil {
		return fmt.Errorf("failed to marshal write requests: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if detail := strings.TrimSpace(string(msg)); detail != "" {
			return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, detail)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	return nil
}

// Close releases idle connections
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

var _ storage.Writer = (*HTTPTransport)(nil)
