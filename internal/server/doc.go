// Package server implements the HTTP server using Echo framework.
//
// Routes: WebSocket endpoint (/ws), operational health endpoints
// (/health/*), Prometheus metrics (/metrics). The WebSocket handler owns
// the connection lifecycle: handshake authentication, registration,
// read pump, and teardown.
package server
