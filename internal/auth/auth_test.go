package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/wordle-duel/internal/store"
)

func newService(t *testing.T) *Service {
	t.Helper()
	return New(store.NewMemoryStore(), Options{Secret: "test-secret", Admins: []string{"Root_Admin"}})
}

func TestSignupAndLogin(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	u, err := s.Signup(ctx, "  alice ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.NotEmpty(t, u.ID)
	assert.NotEqual(t, "correct horse", u.PasswordHash)

	_, err = s.Signup(ctx, "alice", "another password")
	assert.ErrorIs(t, err, store.ErrUsernameTaken)

	got, err := s.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.Login(ctx, "alice", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Login(ctx, "nobody", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestResolve(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	_, err := s.Signup(ctx, "Bob_99", "password123")
	require.NoError(t, err)

	name, err := s.Resolve(ctx, " bob_99 ")
	require.NoError(t, err)
	assert.Equal(t, "Bob_99", name)

	_, err = s.Resolve(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSignupValidation(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	for _, tc := range []struct{ user, pw string }{
		{"al", "long enough"},
		{"this_name_is_far_too_long", "long enough"},
		{"bad name", "long enough"},
		{"alice", "short"},
	} {
		_, err := s.Signup(ctx, tc.user, tc.pw)
		assert.Error(t, err, tc.user)
	}
}

func TestVerify(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	u, err := s.Signup(ctx, "root_admin", "password123")
	require.NoError(t, err)

	tok, exp, err := s.SignJWT(u.ID, u.Username)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	id, err := s.Verify(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "root_admin", id.Username)
	assert.True(t, id.Admin)

	_, err = s.Verify(ctx, tok+"x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// valid signature for a user that does not exist
	ghost, _, err := s.SignJWT("ghost", "ghost")
	require.NoError(t, err)
	_, err = s.Verify(ctx, ghost)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// other signing methods are refused
	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"id": u.ID, "exp": time.Now().Add(time.Hour).Unix()})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.Verify(ctx, raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := New(store.NewMemoryStore(), Options{Secret: "other"})
	_, err = other.Verify(ctx, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequireAuth(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	u, err := s.Signup(ctx, "alice", "password123")
	require.NoError(t, err)
	tok, exp, err := s.SignJWT(u.ID, u.Username)
	require.NoError(t, err)

	var seen *Identity
	h := s.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "alice", seen.Username)
	assert.False(t, seen.Admin)

	// token from cookie
	seen = nil
	cookieRR := httptest.NewRecorder()
	s.SetCookie(cookieRR, tok, exp)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookieRR.Result().Cookies() {
		req.AddCookie(c)
	}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireAdmin(t *testing.T) {
	s := newService(t)
	h := s.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(rr, req.WithContext(WithIdentity(req.Context(), &Identity{Username: "alice"})))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req.WithContext(WithIdentity(req.Context(), &Identity{Username: "root_admin", Admin: true})))
	assert.Equal(t, http.StatusOK, rr.Code)

	assert.True(t, s.IsAdmin("ROOT_ADMIN"))
	assert.False(t, s.IsAdmin("alice"))
}
