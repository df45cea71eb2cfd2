// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output
//
// The level is atomic, so a config reload can raise or lower verbosity of
// every component logger at once through Logger.SetLevel.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("addr", "127.0.0.1:9222"))
//	logger.Named("bridge").Debug("session created", zap.String("session_id", sid))
package logging
