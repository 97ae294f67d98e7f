/*
Package log provides structured logging via zerolog: a global Logger
configured once via Init, plus component-scoped child loggers for the
server's major subsystems.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	log.Info("server listening")

	sessLog := log.WithSessionID(sessionID)
	sessLog.Info().Str("cmd", "insert").Msg("dispatched")

	nodeLog := log.WithNodeID(nodeID)
	nodeLog.Warn().Msg("lost leadership")

# See Also

  - pkg/transport and pkg/dispatcher for the subsystems that hold
    per-connection and per-command context
  - pkg/consensus for node-scoped logging
*/
package log
