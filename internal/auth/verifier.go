// Package auth verifies handshake credentials against the external
// identity authority.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/taskpulse/taskpulse/internal/domain"
)

const httpCallTimeout = 5 * time.Second

// IntrospectionClient verifies tokens with a bearer-token introspection
// call to the identity authority. It implements domain.TokenVerifier.
type IntrospectionClient struct {
	endpoint string
	client   *http.Client
}

var _ domain.TokenVerifier = (*IntrospectionClient)(nil)

func NewIntrospectionClient(endpoint string) *IntrospectionClient {
	return &IntrospectionClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: httpCallTimeout},
	}
}

type introspectionResponse struct {
	Active bool `json:"active"`
}

// Verify asks the identity authority whether the token is active.
// A 401/403 or an inactive result maps to domain.ErrInvalidToken;
// transport failures are returned as-is and also reject the handshake.
func (c *IntrospectionClient) Verify(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return domain.ErrMissingToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("build introspection request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("introspection call failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.ErrInvalidToken
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("introspection returned status %d", resp.StatusCode)
	}

	var result introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode introspection response: %w", err)
	}
	if !result.Active {
		return domain.ErrInvalidToken
	}
	return nil
}
