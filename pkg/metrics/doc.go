/*
Package metrics provides Prometheus metrics collection and exposition for
OxiDB, plus a small health/readiness registry used by the serve command's
HTTP endpoints.

# Metrics

Gauges track point-in-time state: CollectionsTotal, BucketsTotal,
ConnectionsActive, and the Raft trio RaftLeader/RaftLogIndex/RaftAppliedIndex.
Counters and histograms track activity: CommandsTotal (labeled cmd, outcome),
CommandDuration (labeled cmd), RaftApplyDuration, and AuthFailuresTotal. All
are registered with the default Prometheus registry at package init and
exposed via Handler().

Timer is a small helper for observing a histogram's duration without
repeating time.Since at every call site:

	timer := metrics.NewTimer()
	// ... do work ...
	timer.ObserveDurationVec(metrics.CommandDuration, cmd)

# Collector

Collector samples gauges that have no natural per-command observation
point — collection/bucket counts and Raft's leadership and log position —
on a periodic tick. It is optional in standalone mode (node may be nil).

	c := metrics.NewCollector(manager, blobs, node)
	c.Start()
	defer c.Stop()

# Health and readiness

RegisterComponent/UpdateComponent maintain a small in-process table of
named component health (storage, transport, and any others a deployment
wants to expose). GetHealth reports whether any registered component is
unhealthy; GetReadiness additionally requires storage and transport
specifically to be registered and healthy before reporting "ready" — a
node still replaying its Raft log on startup should fail readiness without
being reported unhealthy.

HealthHandler, ReadyHandler, and LivenessHandler wrap these into
http.HandlerFunc values for wiring into the metrics HTTP server alongside
Handler().
*/
package metrics
