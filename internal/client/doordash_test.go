package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteDelivery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/drive/v2/quotes", r.URL.Path)
		assert.Equal(t, "Bearer dd_key", r.Header.Get("Authorization"))

		var req QuoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "order-42", req.ExternalDeliveryID)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"external_delivery_id": "order-42", "fee": 599, "currency": "usd", "duration": 35}`)
	}))
	defer server.Close()

	c := NewDoorDashClient(server.URL, "dd_key")

	quote, err := c.QuoteDelivery(context.Background(), &QuoteRequest{
		ExternalDeliveryID: "order-42",
		PickupAddress:      "1 Main St",
		DropoffAddress:     "9 Oak Ave",
		OrderValue:         2500,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(599), quote.Fee)
	assert.Equal(t, 35, quote.DurationMinutes)
}

func TestCreateDeliveryAPIError(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantCode   string
	}{
		{"rate limited", 429, `{"code": "rate_limited", "message": "slow down"}`, 429, "rate_limited"},
		{"validation", 400, `{"code": "validation_error", "message": "dropoff_address is required"}`, 400, "validation_error"},
		{"server error", 503, `{}`, 503, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			c := NewDoorDashClient(server.URL, "dd_key")

			_, err := c.CreateDelivery(context.Background(), &QuoteRequest{ExternalDeliveryID: "order-1"})
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, ProviderDoorDash, apiErr.Provider)
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			assert.Equal(t, tt.wantCode, apiErr.Code)
		})
	}
}

func TestGetDelivery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/drive/v2/deliveries/dd_789", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "dd_789", "delivery_status": "enroute_to_dropoff", "tracking_url": "https://track.example/dd_789"}`)
	}))
	defer server.Close()

	c := NewDoorDashClient(server.URL, "dd_key")

	delivery, err := c.GetDelivery(context.Background(), "dd_789")
	require.NoError(t, err)
	assert.Equal(t, "dd_789", delivery.DeliveryID)
	assert.Equal(t, "enroute_to_dropoff", delivery.Status)
}
