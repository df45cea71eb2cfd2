/*
Package bridge implements the per-target call channel to the content
process.

Each Bridge owns a content session. Calls carry a locally assigned id and
are matched to replies strictly by that id; replies may arrive in any
order. Messages without an id are events and are handed to the bridge's
EventHandler with the owning targetId stamped into their params.

Disposing a bridge completes every pending Future with ErrDisposed.
*/
package bridge
