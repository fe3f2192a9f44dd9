package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/NoPass/internal/models"
)

func TestClient_GetUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/users/user_1", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"user_1","username":"jane","private_metadata":{"theme":"dark","cards":[]}}`)
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "sk_test", time.Second)
	user, err := c.GetUser(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, "user_1", user.ID)
	assert.Equal(t, "jane", user.Username)
	assert.JSONEq(t, `"dark"`, string(user.PrivateMetadata["theme"]))
}

func TestClient_GetUser_EmptyMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"user_2"}`)
	}))
	defer srv.Close()

	user, err := New(srv.URL, "sk", time.Second).GetUser(context.Background(), "user_2")
	require.NoError(t, err)
	assert.NotNil(t, user.PrivateMetadata)
}

func TestClient_GetUser_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		notFound   bool
		wantSubstr string
	}{
		{name: "not found", status: http.StatusNotFound, notFound: true},
		{name: "server error", status: http.StatusBadGateway, body: "upstream down", wantSubstr: "provider status 502: upstream down"},
		{name: "rate limited", status: http.StatusTooManyRequests, body: "slow down", wantSubstr: "429"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := New(srv.URL, "sk", time.Second).GetUser(context.Background(), "u")
			require.Error(t, err)
			assert.Equal(t, tt.notFound, errors.Is(err, models.ErrUserNotFound))
			if tt.wantSubstr != "" {
				assert.Contains(t, err.Error(), tt.wantSubstr)
			}
		})
	}
}

func TestClient_GetUser_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "sk", 20*time.Millisecond).GetUser(context.Background(), "u")
	require.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrUserNotFound))
}

func TestClient_UpdateUserMetadata(t *testing.T) {
	var got map[string]map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/v1/users/user 1/metadata", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"id":"user 1"}`)
	}))
	defer srv.Close()

	patch := models.Metadata{"cards": json.RawMessage(`[{"id":"c1"}]`)}
	err := New(srv.URL, "sk", time.Second).UpdateUserMetadata(context.Background(), "user 1", patch)
	require.NoError(t, err)
	require.Contains(t, got, "private_metadata")
	assert.JSONEq(t, `[{"id":"c1"}]`, string(got["private_metadata"]["cards"]))
}

func TestClient_UpdateUserMetadata_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New(srv.URL, "sk", time.Second).UpdateUserMetadata(context.Background(), "u", models.Metadata{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update metadata")
}
