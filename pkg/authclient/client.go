/**
 * @description
 * This package provides the HTTP client for the auth service. The transfer
 * service only needs one capability from it: resolving the calling principal's
 * bearer token into the user record, including the internal user id that
 * account ownership is checked against.
 */
package authclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/microbank/transfer-service/internal/domain"
)

// Client is a client for the auth service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new auth service client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type userEnvelope struct {
	Status  int          `json:"status"`
	Message string       `json:"message"`
	Data    *domain.User `json:"data"`
}

// GetCurrentUser resolves the bearer token into the calling user. A missing or
// rejected credential comes back as an unauthorized domain error; transport
// failures stay plain errors.
func (c *Client) GetCurrentUser(ctx context.Context, token string) (*domain.User, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("auth service base url is empty")
	}

	endpoint := fmt.Sprintf("%s/api/v1/auth/me", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth service request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, domain.NewError(domain.KindUnauthorized, "user not authenticated")
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("auth service returned status %d", resp.StatusCode)
	}

	var envelope userEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode auth service response: %w", err)
	}
	if envelope.Data == nil {
		return nil, domain.NewError(domain.KindUnauthorized, "user not authenticated")
	}
	return envelope.Data, nil
}
