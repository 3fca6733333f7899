package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TokenValidator interface for validating tokens
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*UserContext, error)
}

// AuthServiceTokenValidator implements TokenValidator by calling the platform
// auth service over HTTP.
type AuthServiceTokenValidator struct {
	baseURL    string
	httpClient *http.Client
}

// NewAuthServiceTokenValidator creates a new token validator that uses the auth service.
func NewAuthServiceTokenValidator(baseURL string) *AuthServiceTokenValidator {
	return &AuthServiceTokenValidator{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type validateTokenResponse struct {
	Valid            bool     `json:"valid"`
	UserID           uint64   `json:"user_id"`
	Username         string   `json:"username"`
	DisplayName      string   `json:"display_name"`
	Roles            []string `json:"roles"`
	FullSearchAccess bool     `json:"full_search_access"`
}

// ValidateToken validates the token by calling the auth service and returns UserContext.
func (v *AuthServiceTokenValidator) ValidateToken(ctx context.Context, token string) (*UserContext, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/api/v1/validate", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build validate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call auth service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("auth service returned %s: %s", resp.Status, string(body))
	}

	var payload validateTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode auth response: %w", err)
	}

	if !payload.Valid {
		return nil, ErrInvalidToken
	}

	return &UserContext{
		UserID:           payload.UserID,
		Username:         payload.Username,
		DisplayName:      payload.DisplayName,
		Roles:            payload.Roles,
		FullSearchAccess: payload.FullSearchAccess,
		Token:            token,
	}, nil
}
