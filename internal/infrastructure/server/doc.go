// Package server assembles the remote automation server.
//
// NewServer starts the in-process browser, builds the context and target
// registries, and mounts two kinds of routes on one gin router:
//   - discovery and health (/json/version, /json/list, /health, /metrics)
//   - the WebSocket control endpoint at WebSocketPath
//
// Server Lifecycle:
//  1. Load configuration (environment, optional YAML overlay)
//  2. Initialize logger
//  3. Start the browser engine
//  4. Setup HTTP routes and middleware
//  5. Run until a signal arrives or the browser quits
//  6. Close: disconnect clients, stop HTTP, quit the browser
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg, logging.NewDefault(), server.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go srv.Run()
//	<-srv.Done()
package server
