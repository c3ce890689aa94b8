package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskpulse/taskpulse/internal/domain"
)

func introspectionServer(t *testing.T, handler http.HandlerFunc) *IntrospectionClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewIntrospectionClient(server.URL)
}

func TestVerifyAcceptsActiveToken(t *testing.T) {
	client := introspectionServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer valid-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"active":true}`))
	})

	require.NoError(t, client.Verify(context.Background(), "valid-token"))
}

func TestVerifyRejectsInactiveToken(t *testing.T) {
	client := introspectionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"active":false}`))
	})

	err := client.Verify(context.Background(), "revoked-token")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestVerifyRejectsUnauthorizedStatus(t *testing.T) {
	client := introspectionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := client.Verify(context.Background(), "bad-token")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	client := NewIntrospectionClient("http://unused.invalid")

	err := client.Verify(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrMissingToken)
}

func TestVerifyReportsServerErrors(t *testing.T) {
	client := introspectionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := client.Verify(context.Background(), "token")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInvalidToken)
}
