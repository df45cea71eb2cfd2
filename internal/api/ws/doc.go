// Package ws serves the remote protocol over WebSocket.
//
// Every upgraded connection gets its own session.Dispatcher. Inbound text
// or binary messages are handed to the dispatcher one frame at a time;
// replies and events are queued and written by a single writer goroutine.
//
// Limits:
//   - MaxMessageBytes: larger inbound frames close the connection
//   - WriteTimeout: a stalled write closes the connection
//   - OutboundBuffer: a client that lets the queue fill is disconnected
//   - RequestsPerSecond/Burst: inbound messages beyond the rate wait
//
// Example Usage:
//
//	srv := ws.NewServer(deps, ws.DefaultConfig()).WithMetrics(metrics)
//	router.GET("/devtools/browser", srv.HandleConnection)
//	defer srv.Close()
package ws
