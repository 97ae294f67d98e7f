package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForServerSucceedsOnceListening(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	err = WaitForServer(context.Background(), lis.Addr().String(), time.Second)
	assert.NoError(t, err)
}

func TestWaitForServerTimesOutWhenNothingListens(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	lis.Close()

	err = WaitForServer(context.Background(), addr, 150*time.Millisecond)
	assert.Error(t, err)
}

func TestCheckMetricsEndpointReflectsStatusCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	addr := server.Listener.Addr().String()
	result := CheckMetricsEndpoint(context.Background(), addr)
	assert.True(t, result.Healthy)
}
