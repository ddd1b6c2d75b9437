// internal/httpserver/server.go
//
// HTTP server wiring for the duel backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs, rate limit).
//   - Public endpoints: "/", "/health", /auth/signup, /auth/login, /auth/logout.
//   - Contract endpoints (require auth): /sessions/*, /challenges/*, /payouts/mine.
//   - Admin endpoints (require auth + admin): /admin/*.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - Failures answer {msg, success:false, kind} with a status derived from the kind.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/robalobadob/wordle-duel/internal/auth"
	"github.com/robalobadob/wordle-duel/internal/duel"
	"github.com/robalobadob/wordle-duel/internal/payout"
	"github.com/robalobadob/wordle-duel/internal/store"
)

// PayoutLister reads recorded transfers for an account.
type PayoutLister interface {
	Payouts(ctx context.Context, account string) ([]payout.Transfer, error)
}

// Options configure the transport.
type Options struct {
	ClientOrigin   string
	RateLimitRPS   int // <= 0 disables rate limiting
	RateLimitBurst int
}

// Server bundles router, contract service and identity service.
type Server struct {
	r       *chi.Mux
	duel    *duel.Service
	auth    *auth.Service
	payouts PayoutLister
	opts    Options

	limiterMu sync.Mutex
	limiters  map[string]*clientLimiter
	lastSweep time.Time
}

// limiterTTL is how long an idle client's bucket is kept.
const limiterTTL = 3 * time.Minute

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// New constructs a Server, installs middleware, and registers routes.
func New(svc *duel.Service, au *auth.Service, payouts PayoutLister, opts Options) *Server {
	if opts.ClientOrigin == "" {
		opts.ClientOrigin = "http://localhost:5173"
	}
	s := &Server{
		r:        chi.NewRouter(),
		duel:     svc,
		auth:     au,
		payouts:  payouts,
		opts:     opts,
		limiters: make(map[string]*clientLimiter),
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)                 // add X-Request-ID
	s.r.Use(chimw.RealIP)                    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer)                 // recover from panics
	s.r.Use(chimw.Timeout(10 * time.Second)) // bound handler time
	s.r.Use(jsonContentType)
	s.r.Use(s.cors)
	s.r.Use(s.rateLimit)

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"service":"wordle-duel","endpoints":["/health","/auth/*","/sessions/*","/challenges/*","/admin/*"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	s.mountAuthRoutes()
	s.r.Group(func(r chi.Router) {
		r.Use(s.auth.RequireAuth)
		s.mountSessionRoutes(r)
		s.mountChallengeRoutes(r)
		r.Get("/payouts/mine", s.handlePayouts)
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.RequireAdmin)
			s.mountAdminRoutes(r)
		})
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
	})
	return s
}

// Start serves HTTP on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	hs := &http.Server{Addr: addr, Handler: s.r, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- hs.ListenAndServe() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return hs.Shutdown(shutdownCtx)
	}
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for the configured client origin.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", s.opts.ClientOrigin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limiter returns the token bucket for a client key (usually its IP).
// Buckets idle for longer than limiterTTL are swept at most once per TTL.
func (s *Server) limiter(key string) *rate.Limiter {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()

	now := time.Now()
	if now.Sub(s.lastSweep) > limiterTTL {
		for k, cl := range s.limiters {
			if now.Sub(cl.lastSeen) > limiterTTL {
				delete(s.limiters, k)
			}
		}
		s.lastSweep = now
	}

	cl, ok := s.limiters[key]
	if !ok {
		cl = &clientLimiter{lim: rate.NewLimiter(rate.Limit(s.opts.RateLimitRPS), s.opts.RateLimitBurst)}
		s.limiters[key] = cl
	}
	cl.lastSeen = now
	return cl.lim
}

// rateLimit enforces per-client request rates.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.RateLimitRPS <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		key := r.RemoteAddr
		if host, _, err := net.SplitHostPort(key); err == nil {
			key = host
		}
		if !s.limiter(key).Allow() {
			http.Error(w, `{"error":"Too many requests. Please slow down."}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ------------------------------- AUTH --------------------------------------

type credentialsReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// mountAuthRoutes registers /auth/*.
func (s *Server) mountAuthRoutes() {
	s.r.Post("/auth/signup", s.handleSignup)
	s.r.Post("/auth/login", s.handleLogin)
	s.r.Post("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		s.auth.ClearCookie(w)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	s.r.With(s.auth.RequireAuth).Get("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		me, _ := auth.FromContext(r.Context())
		writeJSON(w, http.StatusOK, me)
	})
}

// handleSignup creates a user, signs a JWT and sets the auth cookie.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body credentialsReq
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid_json"}`, http.StatusBadRequest)
		return
	}
	u, err := s.auth.Signup(r.Context(), body.Username, body.Password)
	if errors.Is(err, store.ErrUsernameTaken) {
		http.Error(w, `{"error":"Username taken"}`, http.StatusConflict)
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.issueToken(w, u.ID, u.Username)
}

// handleLogin authenticates a user and sets the auth cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentialsReq
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid_json"}`, http.StatusBadRequest)
		return
	}
	u, err := s.auth.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		http.Error(w, `{"error":"Invalid username or password"}`, http.StatusUnauthorized)
		return
	}
	s.issueToken(w, u.ID, u.Username)
}

func (s *Server) issueToken(w http.ResponseWriter, id, username string) {
	tok, exp, err := s.auth.SignJWT(id, username)
	if err != nil {
		log.Error().Err(err).Msg("sign jwt")
		http.Error(w, `{"error":"sign_failed"}`, http.StatusInternalServerError)
		return
	}
	s.auth.SetCookie(w, tok, exp)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "username": username, "token": tok})
}

// ------------------------------- helpers -----------------------------------

// result is the {msg, success} envelope of state-changing entry points.
type result struct {
	Msg     string    `json:"msg"`
	Success bool      `json:"success"`
	Kind    duel.Kind `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}

// statusFor maps an error kind to an HTTP status.
func statusFor(k duel.Kind) int {
	switch k {
	case duel.KindFormat:
		return http.StatusBadRequest
	case duel.KindNotFound:
		return http.StatusNotFound
	case duel.KindInsufficientStake:
		return http.StatusPaymentRequired
	case duel.KindNotEligible, duel.KindExhausted, duel.KindAlreadyDecided:
		return http.StatusConflict
	case duel.KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// failure builds the error envelope; internal errors are not echoed.
func failure(err error) (int, result) {
	k := duel.KindOf(err)
	msg := err.Error()
	if k == duel.KindInternal {
		log.Error().Err(err).Msg("request failed")
		msg = "internal error"
	}
	return statusFor(k), result{Msg: msg, Success: false, Kind: k}
}

// caller returns the authenticated account identity.
func caller(r *http.Request) string {
	if me, ok := auth.FromContext(r.Context()); ok {
		return me.Username
	}
	return ""
}
