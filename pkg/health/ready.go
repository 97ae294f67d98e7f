package health

import (
	"context"
	"time"

	"github.com/oxidb/oxidb/pkg/oxierr"
)

// WaitForServer blocks until addr accepts a TCP connection or timeout
// elapses. Used by cmd/oxidb's serve startup banner and by client
// integration tests that need to wait for a freshly spawned server.
func WaitForServer(ctx context.Context, addr string, timeout time.Duration) error {
	checker := NewTCPChecker(addr)
	deadline := time.Now().Add(timeout)
	for {
		result := checker.Check(ctx)
		if result.Healthy {
			return nil
		}
		if time.Now().After(deadline) {
			return oxierr.New(oxierr.IOError, "server at %s not reachable after %s: %s", addr, timeout, result.Message)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// CheckMetricsEndpoint probes the metrics HTTP server's /health endpoint,
// returning a Result describing overall process health as reported by
// pkg/metrics' component registry.
func CheckMetricsEndpoint(ctx context.Context, metricsAddr string) Result {
	return NewHTTPChecker("http://" + metricsAddr + "/health").Check(ctx)
}
