package domain

import "errors"

var (
	// ErrMissingToken rejects a handshake that carries no credential.
	ErrMissingToken = errors.New("missing auth token")

	// ErrInvalidToken rejects a handshake whose credential failed
	// verification against the identity authority.
	ErrInvalidToken = errors.New("invalid auth token")
)
