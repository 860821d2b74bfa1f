package client

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefundPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "pi_abc", r.FormValue("payment_intent"))
		assert.Equal(t, "2500", r.FormValue("amount"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "re_123", "status": "succeeded"}`)
	}))
	defer server.Close()

	c := NewStripeClient(server.URL, "sk_test_123", "")

	refundID, err := c.RefundPayment(context.Background(), "pi_abc", 2500)
	require.NoError(t, err)
	assert.Equal(t, "re_123", refundID)
}

func TestRefundPaymentAPIError(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantCode   string
		wantStatus int
	}{
		{
			name:       "card error",
			status:     402,
			body:       `{"error": {"type": "card_error", "code": "charge_already_refunded", "message": "Charge has already been refunded."}}`,
			wantCode:   "charge_already_refunded",
			wantStatus: 402,
		},
		{
			name:       "rate limited",
			status:     429,
			body:       `{"error": {"type": "rate_limit_error", "message": "Too many requests."}}`,
			wantCode:   "rate_limit_error",
			wantStatus: 429,
		},
		{
			name:       "server error",
			status:     500,
			body:       `{"error": {"type": "api_error"}}`,
			wantCode:   "api_error",
			wantStatus: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			c := NewStripeClient(server.URL, "sk_test_123", "")

			_, err := c.RefundPayment(context.Background(), "pi_abc", 0)
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, ProviderStripe, apiErr.Provider)
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			assert.Equal(t, tt.wantCode, apiErr.Code)
		})
	}
}

func signPayload(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id": "evt_1", "type": "payment_intent.succeeded"}`)
	c := NewStripeClient("", "", secret)

	t.Run("valid", func(t *testing.T) {
		sig := signPayload(secret, "1700000000", payload)
		header := fmt.Sprintf("t=1700000000,v1=%s", sig)
		assert.NoError(t, c.VerifySignature(payload, header))
	})

	t.Run("tampered payload", func(t *testing.T) {
		sig := signPayload(secret, "1700000000", payload)
		header := fmt.Sprintf("t=1700000000,v1=%s", sig)
		err := c.VerifySignature([]byte(`{"id": "evt_2"}`), header)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("missing header parts", func(t *testing.T) {
		err := c.VerifySignature(payload, "v1=deadbeef")
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("no secret configured skips verification", func(t *testing.T) {
		open := NewStripeClient("", "", "")
		assert.NoError(t, open.VerifySignature(payload, "garbage"))
	})
}
