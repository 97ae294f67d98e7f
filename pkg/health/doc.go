/*
Package health provides generic HTTP/TCP health checkers plus two
oxidb-specific helpers: WaitForServer polls a server's TCP listener
until it accepts connections (used by cmd/oxidb's startup sequence and
by integration tests spawning a real server), and CheckMetricsEndpoint
probes the metrics HTTP server's /health endpoint exposed by pkg/metrics.

# Usage

	if err := health.WaitForServer(ctx, "127.0.0.1:7700", 5*time.Second); err != nil {
		log.Fatal(err)
	}

	result := health.CheckMetricsEndpoint(ctx, "127.0.0.1:9090")
	if !result.Healthy {
		log.Warn(result.Message)
	}

# See Also

  - pkg/metrics for the component health registry this package probes
  - cmd/oxidb for startup readiness wiring
*/
package health
