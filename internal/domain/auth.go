package domain

import (
	"context"
)

// TokenVerifier validates a handshake credential against the identity
// authority. Implementations live on the adapter side (internal/auth).
type TokenVerifier interface {
	// Verify returns nil if the token is valid, ErrInvalidToken if the
	// identity authority rejected it, and any other error for transport
	// failures (which also reject the handshake).
	Verify(ctx context.Context, token string) error
}
