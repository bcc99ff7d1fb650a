// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codeberg.org/oliverandrich/onetouch-auth/internal/gateway"
	"codeberg.org/oliverandrich/onetouch-auth/internal/identity"
	"codeberg.org/oliverandrich/onetouch-auth/internal/metrics"
	"codeberg.org/oliverandrich/onetouch-auth/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authority(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv.URL
}

func newClient(t *testing.T, url string, timeout time.Duration) *gateway.Client {
	t.Helper()
	c, err := gateway.NewClient(url, timeout, metrics.NewGateway(prometheus.NewRegistry()))
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := gateway.NewClient("", time.Second, nil)
	require.Error(t, err)

	_, err = gateway.NewClient("http://localhost:8081", 0, nil)
	require.Error(t, err)
}

func TestValidateToken_Success(t *testing.T) {
	var gotToken string
	url := authority(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, gateway.ValidatePath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotToken = body["token"]

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"userId":7,"email":"a@b.com","role":"CUSTOMER"}`))
	})

	id, err := newClient(t, url+"/", time.Second).ValidateToken(context.Background(), "tok-123")

	require.NoError(t, err)
	assert.Equal(t, "tok-123", gotToken)
	assert.Equal(t, identity.Identity{UserID: 7, Email: "a@b.com", Role: models.RoleCustomer}, id)
}

func TestValidateToken_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"unauthorized", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Invalid or expired token"}`))
		}},
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"garbage body", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}},
		{"missing user id", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"email":"a@b.com","role":"CUSTOMER"}`))
		}},
		{"unknown role", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"userId":7,"email":"a@b.com","role":"ADMIN"}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newClient(t, authority(t, tt.handler), time.Second).ValidateToken(context.Background(), "tok")
			require.Error(t, err)
		})
	}
}

func TestValidateToken_Timeout(t *testing.T) {
	url := authority(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	_, err := newClient(t, url, 50*time.Millisecond).ValidateToken(context.Background(), "tok")

	require.Error(t, err)
}

func TestValidateToken_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newClient(t, url, time.Second).ValidateToken(context.Background(), "tok")

	require.Error(t, err)
}

func TestValidateToken_CancelledContext(t *testing.T) {
	url := authority(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"userId":7,"email":"a@b.com","role":"CUSTOMER"}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newClient(t, url, time.Second).ValidateToken(ctx, "tok")

	require.ErrorIs(t, err, context.Canceled)
}
