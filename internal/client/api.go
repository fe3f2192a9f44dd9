// Package client implements the NoPass command-line client: the API
// client, interactive prompts and list rendering.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/atinyakov/NoPass/internal/models"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
	// Fields holds per-field messages of a rejected submission.
	Fields map[string]string
}

func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("server error %d: %s", e.Status, e.Message)
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return fmt.Sprintf("server error %d: %s (%s)", e.Status, e.Message, strings.Join(parts, "; "))
}

// Profile is the caller's identity as reported by GET /api/me.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// API talks to a NoPass server.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPI creates an API client. token may be empty when the transport
// presents a client certificate instead.
func NewAPI(baseURL, token string, hc *http.Client) *API {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &API{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: hc}
}

// NewHTTPClient builds an HTTP client for the server. caFile pins the
// server's CA; certFile and keyFile add a client certificate. All are optional.
func NewHTTPClient(certFile, keyFile, caFile string) (*http.Client, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA cert")
		}
		tlsConfig.RootCAs = caPool
	}

	if certFile != "" || keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert/key: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	transport := &http.Transport{TLSClientConfig: tlsConfig}
	return &http.Client{Transport: transport, Timeout: 10 * time.Second}, nil
}

// AddCard submits a new card.
func (a *API) AddCard(ctx context.Context, fields models.CardFields) (*models.Card, error) {
	var card models.Card
	if err := a.do(ctx, http.MethodPost, "/api/cards", fields, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// AddPassword submits a new website credential.
func (a *API) AddPassword(ctx context.Context, fields models.PasswordFields) (*models.Password, error) {
	var pw models.Password
	if err := a.do(ctx, http.MethodPost, "/api/passwords", fields, &pw); err != nil {
		return nil, err
	}
	return &pw, nil
}

// Records fetches every card and password.
func (a *API) Records(ctx context.Context) (models.Blob, error) {
	var blob models.Blob
	err := a.do(ctx, http.MethodGet, "/api/records", nil, &blob)
	return blob, err
}

// Me fetches the caller's profile.
func (a *API) Me(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := a.do(ctx, http.MethodGet, "/api/me", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Delete asks the server to delete a record.
func (a *API) Delete(ctx context.Context, section models.Section, id string) error {
	return a.do(ctx, http.MethodDelete, "/api/"+string(section)+"/"+url.PathEscape(id), nil, nil)
}

func (a *API) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}

	var v struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") && json.Unmarshal(data, &v) == nil {
		apiErr.Message = v.Error
		apiErr.Fields = v.Fields
	}
	return apiErr
}
