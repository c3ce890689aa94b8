// Package domain defines the core domain types and interfaces.
//
// This package contains the envelope value type, the connection capability
// interface, and cross-cutting contracts (token verification). No
// implementation code - just contracts. Prevents circular imports by
// keeping interfaces on the consumer side.
package domain
