// Package session implements the per-connection protocol dispatcher.
//
// A Dispatcher owns one control connection. Every inbound call is
// validated against its method descriptor, routed to a domain handler and
// answered exactly once; handler results and outbound events are
// validated before they are written.
//
// Domains:
//   - Browser, Target: one handler per connection
//   - Page, Network, Runtime, Accessibility: one handler set per target,
//     created by the first enable and sharing a single content bridge
//
// Call flow:
//  1. Reject frames without id or method
//  2. Resolve the method descriptor (unknown -> ProtocolError)
//  3. Validate params (mismatch -> ValidationError)
//  4. Resolve the handler set for targetId when the domain is per-target
//  5. Invoke, validate the result, reply
//
// When a target is destroyed its handler sets are disposed before the
// Target domain reports it, so pending content calls fail with
// BridgeDisposedError first.
//
// Example Usage:
//
//	d := session.New(session.Deps{Engine: eng, Contexts: contexts, Targets: targets, Network: observer, Logger: logger}, conn)
//	defer d.Close()
//	d.Handle(frame)
package session
