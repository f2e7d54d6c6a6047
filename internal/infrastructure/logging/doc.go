// Package logging provides structured logging for the Telegram gateway.
//
// It wraps log/slog so every component logs the same way.
//
// # Features
//
//   - JSON output for production, text output for development
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("relayed message", "conversation_id", id)
//	logger.Error("publish failed", "error", err)
//
// # Security
//
// Never log the bot token or broker password. Chat text is logged only at
// debug level.
package logging
