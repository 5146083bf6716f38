package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Ready(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/status/buildinfo", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","data":{"version":"2.51.0","revision":"abc","branch":"HEAD","buildUser":"root","buildDate":"20240101","goVersion":"go1.22"}}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{Address: server.URL}, nil)
	require.NoError(t, err)

	version, err := client.Ready(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2.51.0", version)
}

func TestClient_Ready_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("Service Unavailable"))
	}))
	defer server.Close()

	client, err := NewClient(Config{Address: server.URL}, nil)
	require.NoError(t, err)

	_, err = client.Ready(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
}

func TestClient_Ready_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	client, err := NewClient(Config{Address: addr}, nil)
	require.NoError(t, err)

	_, err = client.Ready(context.Background())
	assert.Error(t, err)
}

func TestNewClient_InvalidAddress(t *testing.T) {
	_, err := NewClient(Config{Address: "://bad"}, nil)
	assert.Error(t, err)
}
