// Package broadcast implements local fan-out and the public broadcast API.
//
// The Broadcaster delivers envelopes synchronously to all currently
// registered connections (or one room) before returning to its caller, and
// hands the same envelope to the bus bridge for other instances. Per-
// connection writer goroutines absorb slow sockets; a client whose buffer
// stays full is evicted instead of blocking fan-out.
package broadcast
