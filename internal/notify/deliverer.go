package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Delivery outcome per address.
const (
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// Payload is the message body handed to the delivery service.
type Payload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// DeliveryResult is the per-address outcome of one batch submission.
type DeliveryResult struct {
	Address   string `json:"address"`
	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Deliverer is the push-delivery service contract. An error means the batch
// never reached the service; per-address failures come back as results.
type Deliverer interface {
	SendBatch(ctx context.Context, addresses []string, payload Payload) ([]DeliveryResult, error)
}

// HTTPDeliverer submits batches to the push gateway as JSON over HTTP.
// The gateway protocol is opaque to this core: one POST per batch, one
// result entry per address.
type HTTPDeliverer struct {
	gatewayURL string
	client     *http.Client
}

// NewHTTPDeliverer creates a deliverer for the given gateway URL.
func NewHTTPDeliverer(gatewayURL string, timeout time.Duration) *HTTPDeliverer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDeliverer{
		gatewayURL: gatewayURL,
		client:     &http.Client{Timeout: timeout},
	}
}

type batchRequest struct {
	Addresses []string `json:"addresses"`
	Payload   Payload  `json:"payload"`
}

type batchResponse struct {
	Results []DeliveryResult `json:"results"`
}

// SendBatch posts one batch and returns the per-address outcomes.
func (d *HTTPDeliverer) SendBatch(ctx context.Context, addresses []string, payload Payload) ([]DeliveryResult, error) {
	body, err := json.Marshal(batchRequest{Addresses: addresses, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal batch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.gatewayURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit batch to gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var parsed batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}

	return parsed.Results, nil
}
