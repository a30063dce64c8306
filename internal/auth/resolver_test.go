package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"liveclass/pkg/types"
)

func testPrincipal() types.Principal {
	return types.Principal{UserID: "alice", DisplayName: "Alice", Roles: []string{"teacher"}}
}

func TestResolver_RoundTrip(t *testing.T) {
	r := NewResolver("secret", "liveclass")

	token, err := r.IssueToken(testPrincipal(), time.Hour)
	require.NoError(t, err)

	got, err := r.ResolveToken(token)
	require.NoError(t, err)
	require.Equal(t, testPrincipal(), got)
}

func TestResolver_ExpiredTokenRejected(t *testing.T) {
	r := NewResolver("secret", "liveclass")

	token, err := r.IssueToken(testPrincipal(), -time.Minute)
	require.NoError(t, err)

	_, err = r.ResolveToken(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestResolver_WrongSecretRejected(t *testing.T) {
	minter := NewResolver("secret-a", "liveclass")
	verifier := NewResolver("secret-b", "liveclass")

	token, err := minter.IssueToken(testPrincipal(), time.Hour)
	require.NoError(t, err)

	_, err = verifier.ResolveToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolver_WrongIssuerRejected(t *testing.T) {
	minter := NewResolver("secret", "someone-else")
	verifier := NewResolver("secret", "liveclass")

	token, err := minter.IssueToken(testPrincipal(), time.Hour)
	require.NoError(t, err)

	_, err = verifier.ResolveToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolver_TokenFromQueryParam(t *testing.T) {
	r := NewResolver("secret", "liveclass")
	token, err := r.IssueToken(testPrincipal(), time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/ws?token="+token, nil)
	got, err := r.Resolve(req)
	require.NoError(t, err)
	require.Equal(t, "alice", got.UserID)
}

func TestResolver_TokenFromAuthorizationHeader(t *testing.T) {
	r := NewResolver("secret", "liveclass")
	token, err := r.IssueToken(testPrincipal(), time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	got, err := r.Resolve(req)
	require.NoError(t, err)
	require.Equal(t, "alice", got.UserID)
}

func TestResolver_MissingTokenRejected(t *testing.T) {
	r := NewResolver("secret", "liveclass")

	req := httptest.NewRequest("GET", "/ws", nil)
	_, err := r.Resolve(req)
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestResolver_DisplayNameFallsBackToSubject(t *testing.T) {
	r := NewResolver("secret", "liveclass")
	token, err := r.IssueToken(types.Principal{UserID: "bob"}, time.Hour)
	require.NoError(t, err)

	got, err := r.ResolveToken(token)
	require.NoError(t, err)
	require.Equal(t, "bob", got.DisplayName)
}
