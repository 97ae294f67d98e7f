package main

import (
	"context"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/oxidb/oxidb/pkg/dispatcher"
	"github.com/oxidb/oxidb/pkg/log"
	"github.com/oxidb/oxidb/pkg/metrics"
	"github.com/oxidb/oxidb/pkg/transport"
)

// newConnHandler builds a transport.Handler closing over d, tracking one
// dispatcher.Session per connection (transport.Serve* calls the handler
// repeatedly for the life of a connection, so the session must persist
// across calls) and recording per-command metrics and logs at the same
// boundary the wire frames cross.
func newConnHandler(d *dispatcher.Dispatcher) transport.Handler {
	var mu sync.Mutex
	sessions := map[*transport.Conn]*dispatcher.Session{}

	return func(ctx context.Context, conn *transport.Conn) error {
		mu.Lock()
		sess, ok := sessions[conn]
		if !ok {
			sess = d.NewSession()
			sessions[conn] = sess
			metrics.ConnectionsActive.Inc()
		}
		mu.Unlock()

		raw, err := conn.ReadFrame()
		if err != nil {
			mu.Lock()
			delete(sessions, conn)
			mu.Unlock()
			metrics.ConnectionsActive.Dec()
			d.Disconnect(sess)
			return err
		}

		var req dispatcher.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			return err
		}

		timer := metrics.NewTimer()
		reply := d.Dispatch(ctx, sess, req)
		timer.ObserveDurationVec(metrics.CommandDuration, req.Cmd)

		outcome := "ok"
		if !reply.OK {
			outcome = "error"
			log.Logger.Error().Str("cmd", req.Cmd).Str("error", reply.Error).Msg("command failed")
			if req.Cmd == "auth_continue" {
				metrics.AuthFailuresTotal.Inc()
			}
		}
		metrics.CommandsTotal.WithLabelValues(req.Cmd, outcome).Inc()

		payload, err := json.Marshal(reply)
		if err != nil {
			return err
		}
		return conn.WriteFrame(payload)
	}
}
