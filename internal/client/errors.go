package client

import "fmt"

// Providers
const (
	ProviderStripe   = "stripe"
	ProviderDoorDash = "doordash"
)

// APIError represents a non-2xx response from an external provider API.
// StatusCode and Code are what the retry predicates classify on.
type APIError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s api error: status=%d code=%s: %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s api error: status=%d: %s", e.Provider, e.StatusCode, e.Message)
}
