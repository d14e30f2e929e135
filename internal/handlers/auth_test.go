package handlers

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndAuthorize(t *testing.T) {
	secret := []byte("test-secret")
	token, err := issueToken(secret, "user-1", "user@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/payments", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	sub, err := authorize(req, secret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestAuthorizeRejectsBadTokens(t *testing.T) {
	secret := []byte("test-secret")

	req := httptest.NewRequest("GET", "/api/payments", nil)
	_, err := authorize(req, secret)
	assert.Error(t, err, "missing header")

	req.Header.Set("Authorization", "Bearer not-a-token")
	_, err = authorize(req, secret)
	assert.Error(t, err)

	// Token signed with a different secret.
	other, err := issueToken([]byte("other-secret"), "user-1", "user@example.com")
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+other)
	_, err = authorize(req, secret)
	assert.Error(t, err)
}
