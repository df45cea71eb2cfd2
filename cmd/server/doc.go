// Package main is the entry point for the remote automation server.
//
// The server embeds a headless browser and exposes it to automation
// clients:
//
//	client ──WebSocket──▶ /devtools/browser ──▶ dispatcher ──▶ browser
//	client ──HTTP──────▶ /json/version, /json/list, /health, /metrics
//
// Configuration:
//   - Environment variables (PORT, HOST, PROFILE_DIR, LOG_LEVEL, ...)
//   - Optional YAML file (--config), watched for log level changes
//   - CLI flags (override both)
//
// Usage:
//
//	# Listen on the default 127.0.0.1:9222
//	./server
//
//	# Development mode (console logs)
//	./server --dev --log-level debug --profile-dir /tmp/profile
//
// The process exits on SIGINT/SIGTERM or after a client sends
// Browser.close.
package main
