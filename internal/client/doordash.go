package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DoorDashClient is a thin client for the DoorDash Drive API. Retry
// behavior lives in the caller via the retry executor and the DoorDash
// predicate.
type DoorDashClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewDoorDashClient creates a DoorDash Drive API client
func NewDoorDashClient(baseURL, apiKey string) *DoorDashClient {
	if baseURL == "" {
		baseURL = "https://openapi.doordash.com"
	}
	return &DoorDashClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// QuoteRequest asks for a delivery price/ETA estimate
type QuoteRequest struct {
	ExternalDeliveryID string `json:"external_delivery_id"`
	PickupAddress      string `json:"pickup_address"`
	DropoffAddress     string `json:"dropoff_address"`
	OrderValue         int64  `json:"order_value"`
}

// Quote is a delivery price/ETA estimate
type Quote struct {
	ExternalDeliveryID string `json:"external_delivery_id"`
	Fee                int64  `json:"fee"`
	Currency           string `json:"currency"`
	DurationMinutes    int    `json:"duration"`
}

// Delivery is a created courier dispatch
type Delivery struct {
	ExternalDeliveryID string `json:"external_delivery_id"`
	DeliveryID         string `json:"id"`
	Status             string `json:"delivery_status"`
	TrackingURL        string `json:"tracking_url"`
	Fee                int64  `json:"fee"`
}

// QuoteDelivery requests a delivery quote
func (c *DoorDashClient) QuoteDelivery(ctx context.Context, req *QuoteRequest) (*Quote, error) {
	var quote Quote
	if err := c.post(ctx, "/drive/v2/quotes", req, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// CreateDelivery dispatches a courier. Not idempotent on the DoorDash
// side beyond the external delivery id, so callers must only retry it
// through a predicate that treats 4xx as permanent.
func (c *DoorDashClient) CreateDelivery(ctx context.Context, req *QuoteRequest) (*Delivery, error) {
	var delivery Delivery
	if err := c.post(ctx, "/drive/v2/deliveries", req, &delivery); err != nil {
		return nil, err
	}
	return &delivery, nil
}

// GetDelivery fetches the current state of a dispatch
func (c *DoorDashClient) GetDelivery(ctx context.Context, deliveryID string) (*Delivery, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/drive/v2/deliveries/"+deliveryID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	var delivery Delivery
	if err := c.do(req, &delivery); err != nil {
		return nil, err
	}
	return &delivery, nil
}

func (c *DoorDashClient) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *DoorDashClient) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var payload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &payload)
		return &APIError{
			Provider:   ProviderDoorDash,
			StatusCode: resp.StatusCode,
			Code:       payload.Code,
			Message:    payload.Message,
		}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
