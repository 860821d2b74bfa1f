package client

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSignature is returned when a webhook payload fails
// signature verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// StripeClient is a thin client for the Stripe API. It owns no retry
// behavior itself; callers wrap calls with the retry executor and the
// Stripe predicate.
type StripeClient struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	httpClient    *http.Client
}

// NewStripeClient creates a Stripe API client
func NewStripeClient(baseURL, apiKey, webhookSecret string) *StripeClient {
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &StripeClient{
		baseURL:       baseURL,
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
	}
}

// RefundPayment refunds a payment intent and returns the refund ID
func (c *StripeClient) RefundPayment(ctx context.Context, paymentIntentID string, amount int64) (string, error) {
	form := url.Values{}
	form.Set("payment_intent", paymentIntentID)
	if amount > 0 {
		form.Set("amount", strconv.FormatInt(amount, 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/refunds", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode >= 400 {
		return "", parseStripeError(resp.StatusCode, body)
	}

	var refund struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &refund); err != nil {
		return "", fmt.Errorf("failed to decode refund response: %w", err)
	}
	return refund.ID, nil
}

// VerifySignature checks the Stripe-Signature header against the payload.
// The signed payload is "<timestamp>.<payload>" HMAC-SHA256'd with the
// webhook secret.
func (c *StripeClient) VerifySignature(payload []byte, sigHeader string) error {
	if c.webhookSecret == "" {
		return nil
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(timestamp + "."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func parseStripeError(status int, body []byte) error {
	var payload struct {
		Error struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)

	code := payload.Error.Code
	if code == "" {
		code = payload.Error.Type
	}

	return &APIError{
		Provider:   ProviderStripe,
		StatusCode: status,
		Code:       code,
		Message:    payload.Error.Message,
	}
}
