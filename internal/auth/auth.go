// internal/auth/auth.go
//
// Caller identity for the duel server.
// Responsibilities:
//   - Signup/login with bcrypt-hashed passwords.
//   - HS256 JWT issue/verify; token read from Authorization header or cookie.
//   - Middleware placing the authenticated Identity into the request context,
//     and an admin gate driven by a configured username list.
//
// The account identity used by the game is the username.

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/robalobadob/wordle-duel/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid token")
)

// Users is the subset of store.Store used for identity.
type Users interface {
	CreateUser(ctx context.Context, u *store.User) error
	UserByName(ctx context.Context, username string) (*store.User, error)
	UserByID(ctx context.Context, id string) (*store.User, error)
}

// Options configure a Service.
type Options struct {
	Secret     string
	TTL        time.Duration
	CookieName string
	Secure     bool // production cookies: Secure + SameSite=None
	Admins     []string
}

// Identity is the authenticated caller placed into request context.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
}

// Service issues and verifies caller identities.
type Service struct {
	users  Users
	opts   Options
	admins map[string]struct{}
}

// New constructs a Service.
func New(users Users, opts Options) *Service {
	if opts.TTL <= 0 {
		opts.TTL = 14 * 24 * time.Hour
	}
	if opts.CookieName == "" {
		opts.CookieName = "wordle_token"
	}
	admins := make(map[string]struct{}, len(opts.Admins))
	for _, a := range opts.Admins {
		admins[strings.ToLower(a)] = struct{}{}
	}
	return &Service{users: users, opts: opts, admins: admins}
}

// Signup validates input, hashes the password and stores a new user.
func (s *Service) Signup(ctx context.Context, username, pw string) (*store.User, error) {
	username = normalizeUsername(username)
	if err := validateSignup(username, pw); err != nil {
		return nil, err
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &store.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(h),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login checks credentials.
func (s *Service) Login(ctx context.Context, username, pw string) (*store.User, error) {
	u, err := s.users.UserByName(ctx, normalizeUsername(username))
	if err != nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(pw)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Resolve returns the registered spelling of username.
// It fails with store.ErrNotFound when no such user exists.
func (s *Service) Resolve(ctx context.Context, username string) (string, error) {
	u, err := s.users.UserByName(ctx, normalizeUsername(username))
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

// IsAdmin reports whether username is in the admin list.
func (s *Service) IsAdmin(username string) bool {
	_, ok := s.admins[strings.ToLower(username)]
	return ok
}

// SignJWT creates an HS256 token with id/username and the configured expiry.
func (s *Service) SignJWT(id, username string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.opts.TTL)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":       id,
		"username": username,
		"exp":      exp.Unix(),
		"iat":      now.Unix(),
	})
	ss, err := t.SignedString([]byte(s.opts.Secret))
	return ss, exp, err
}

// Verify parses a token and confirms its user still exists.
func (s *Service) Verify(ctx context.Context, tokenStr string) (*Identity, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.opts.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	id, _ := claims["id"].(string)
	if id == "" {
		return nil, ErrInvalidToken
	}
	u, err := s.users.UserByID(ctx, id)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Identity{ID: u.ID, Username: u.Username, Admin: s.IsAdmin(u.Username)}, nil
}

// SetCookie writes the auth token cookie with appropriate security attributes.
func (s *Service) SetCookie(w http.ResponseWriter, token string, exp time.Time) {
	http.SetCookie(w, s.cookie(token, exp, 0))
}

// ClearCookie deletes the auth token cookie.
func (s *Service) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, s.cookie("", time.Time{}, -1))
}

func (s *Service) cookie(value string, exp time.Time, maxAge int) *http.Cookie {
	sameSite := http.SameSiteLaxMode
	if s.opts.Secure {
		sameSite = http.SameSiteNoneMode // required for third-party contexts when Secure
	}
	return &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: sameSite,
		Expires:  exp,
		MaxAge:   maxAge,
	}
}

// bearerOrCookie extracts a bearer token from Authorization header or auth cookie.
func (s *Service) bearerOrCookie(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(s.opts.CookieName); err == nil {
		return c.Value
	}
	return ""
}

type ctxKey struct{}

// FromContext returns the caller placed by RequireAuth.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(*Identity)
	return id, ok && id != nil
}

// WithIdentity returns ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequireAuth enforces a valid JWT and injects the Identity into request context.
func (s *Service) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := s.bearerOrCookie(r)
		if tokenStr == "" {
			http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
			return
		}
		id, err := s.Verify(r.Context(), tokenStr)
		if err != nil {
			http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireAdmin must run after RequireAuth.
func (s *Service) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := FromContext(r.Context()); !ok || !id.Admin {
			http.Error(w, `{"error":"Forbidden"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// normalizeUsername trims whitespace.
func normalizeUsername(u string) string {
	return strings.TrimSpace(u)
}

// validateSignup enforces basic username/password rules.
func validateSignup(u, p string) error {
	if len(u) < 3 || len(u) > 24 {
		return errors.New("username must be 3–24 chars")
	}
	for _, r := range u {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return errors.New("username: letters, numbers, underscore only")
		}
	}
	if len(p) < 8 || len(p) > 100 {
		return errors.New("password must be 8–100 chars")
	}
	return nil
}
