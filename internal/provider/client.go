// Package provider is a client for a hosted identity provider that keeps a
// private metadata document per user and merges metadata updates at the
// top level.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atinyakov/NoPass/internal/models"
)

// maxErrorBody bounds how much of a failed response ends up in an error.
const maxErrorBody = 512

// Client talks to the provider's backend API with a secret key.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

// New creates a Client. timeout bounds every call to the provider.
func New(baseURL, secretKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		http:      &http.Client{Timeout: timeout},
	}
}

type userResponse struct {
	ID              string          `json:"id"`
	Username        string          `json:"username"`
	Email           string          `json:"email"`
	PrivateMetadata models.Metadata `json:"private_metadata"`
}

// GetUser fetches GET /v1/users/{id}. A 404 maps to models.ErrUserNotFound.
func (c *Client) GetUser(ctx context.Context, userID string) (*models.User, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	var body userResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("get user: decode response: %w", err)
	}
	if body.PrivateMetadata == nil {
		body.PrivateMetadata = models.Metadata{}
	}
	return &models.User{
		ID:              body.ID,
		Username:        body.Username,
		Email:           body.Email,
		PrivateMetadata: body.PrivateMetadata,
	}, nil
}

// UpdateUserMetadata sends PATCH /v1/users/{id}/metadata. The provider
// merges the patch into the stored private metadata.
func (c *Client) UpdateUserMetadata(ctx context.Context, userID string, patch models.Metadata) error {
	payload, err := json.Marshal(map[string]models.Metadata{"private_metadata": patch})
	if err != nil {
		return fmt.Errorf("update metadata: encode: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPatch, "/v1/users/"+url.PathEscape(userID)+"/metadata", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return models.ErrUserNotFound
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("provider status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}
