package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/wordle-duel/internal/auth"
	"github.com/robalobadob/wordle-duel/internal/challenge"
	"github.com/robalobadob/wordle-duel/internal/duel"
	"github.com/robalobadob/wordle-duel/internal/game"
	"github.com/robalobadob/wordle-duel/internal/payout"
	"github.com/robalobadob/wordle-duel/internal/store"
)

type testServer struct {
	t   *testing.T
	srv *Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	st := store.NewMemoryStore()
	q := payout.NewQueue(st, 8)
	go q.Run(ctx)

	svc, err := duel.New(ctx, duel.Options{Store: st, Transferer: q})
	require.NoError(t, err)
	au := auth.New(st, auth.Options{Secret: "test-secret", Admins: []string{"root"}})
	return &testServer{t: t, srv: New(svc, au, st, Options{})}
}

func (ts *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) signup(name string) string {
	ts.t.Helper()
	rr := ts.do(http.MethodPost, "/auth/signup", "", map[string]string{"username": name, "password": "password123"})
	require.Equal(ts.t, http.StatusOK, rr.Code, rr.Body.String())
	var res struct {
		Token string `json:"token"`
	}
	require.NoError(ts.t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.NotEmpty(ts.t, res.Token)
	return res.Token
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

type envelope struct {
	Msg     string    `json:"msg"`
	Success bool      `json:"success"`
	Kind    duel.Kind `json:"kind"`
	WordID  *int      `json:"wordId"`
	Session *game.Session
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())

	rr = ts.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAuthRoutes(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.signup("alice")

	rr := ts.do(http.MethodPost, "/auth/signup", "", map[string]string{"username": "alice", "password": "password123"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = ts.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = ts.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "password123"})
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(http.MethodGet, "/auth/me", tok, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	me := decode[auth.Identity](t, rr)
	assert.Equal(t, "alice", me.Username)

	rr = ts.do(http.MethodGet, "/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t)
	root := ts.signup("root")
	alice := ts.signup("alice")

	rr := ts.do(http.MethodPost, "/admin/words", alice, map[string]string{"word": "APPLE"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(http.MethodPost, "/admin/words", root, map[string]string{"word": "apple"})
	require.Equal(t, http.StatusOK, rr.Code)
	res := decode[envelope](t, rr)
	assert.True(t, res.Success)
	assert.Equal(t, "wordle APPLE set", res.Msg)
	require.NotNil(t, res.WordID)
	assert.Equal(t, 0, *res.WordID)

	rr = ts.do(http.MethodPost, "/admin/words", root, map[string]string{"word": "APPLE"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	rr = ts.do(http.MethodPost, "/admin/words", root, map[string]string{"word": "APPLES"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, duel.KindFormat, decode[envelope](t, rr).Kind)

	rr = ts.do(http.MethodGet, "/admin/dump", root, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"APPLE"}, decode[duel.DumpView](t, rr).Words)

	rr = ts.do(http.MethodPost, "/admin/reset", root, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = ts.do(http.MethodGet, "/admin/dump", root, nil)
	assert.Empty(t, decode[duel.DumpView](t, rr).Words)
}

func TestSessionRoutes(t *testing.T) {
	ts := newTestServer(t)
	root := ts.signup("root")
	alice := ts.signup("alice")
	ts.do(http.MethodPost, "/admin/words", root, map[string]string{"word": "APPLE"})

	rr := ts.do(http.MethodGet, "/sessions/current", alice, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, decode[envelope](t, rr).WordID)

	rr = ts.do(http.MethodPost, "/sessions", alice, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[envelope](t, rr)
	assert.Equal(t, "new game created", res.Msg)
	require.NotNil(t, res.WordID)
	assert.Equal(t, 0, *res.WordID)

	rr = ts.do(http.MethodPost, "/sessions", alice, nil)
	assert.Equal(t, "there is a wordle that is being solved", decode[envelope](t, rr).Msg)

	rr = ts.do(http.MethodPost, "/sessions/0/attempts", alice, map[string]string{"attempt": "ap"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.do(http.MethodPost, "/sessions/0/attempts", alice, map[string]string{"attempt": "crane"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "attempt registered !", decode[envelope](t, rr).Msg)

	rr = ts.do(http.MethodPost, "/sessions/0/attempts", alice, map[string]string{"attempt": "apple"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(http.MethodGet, "/sessions/0", alice, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	sess := decode[game.Session](t, rr)
	assert.Equal(t, game.StatusWon, sess.Status)
	assert.Len(t, sess.Attempts, 2)

	rr = ts.do(http.MethodGet, "/sessions/7", alice, nil)
	assert.Equal(t, "null", strings.TrimSpace(rr.Body.String()))

	rr = ts.do(http.MethodGet, "/sessions", alice, nil)
	all := decode[map[string]game.Session](t, rr)
	assert.Contains(t, all, "0")

	rr = ts.do(http.MethodPost, "/sessions/0/attempts", alice, map[string]string{"attempt": "apple"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, duel.KindNotEligible, decode[envelope](t, rr).Kind)

	rr = ts.do(http.MethodPost, "/sessions", alice, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, duel.KindExhausted, decode[envelope](t, rr).Kind)
}

func TestChallengeFlow(t *testing.T) {
	ts := newTestServer(t)
	root := ts.signup("root")
	alice := ts.signup("alice")
	bob := ts.signup("bob")
	ts.signup("carol")
	ts.do(http.MethodPost, "/admin/words", root, map[string]string{"word": "APPLE"})

	// bob starts APPLE before alice solves it and challenges him
	ts.do(http.MethodPost, "/sessions", bob, nil)
	ts.do(http.MethodPost, "/sessions", alice, nil)
	ts.do(http.MethodPost, "/sessions/0/attempts", alice, map[string]string{"attempt": "APPLE"})

	rr := ts.do(http.MethodGet, "/challenges/eligibility?wordId=0&account=carol", alice, nil)
	assert.JSONEq(t, `{"eligible":true}`, rr.Body.String())
	rr = ts.do(http.MethodGet, "/challenges/eligibility?wordId=0&account=bob", alice, nil)
	assert.JSONEq(t, `{"eligible":false}`, rr.Body.String())
	rr = ts.do(http.MethodGet, "/challenges/eligibility", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = ts.do(http.MethodGet, "/challenges/eligibility?wordId=0&account=nobody_at_all", alice, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do(http.MethodPost, "/challenges", alice, map[string]any{"wordId": 0, "account": "bob", "deposit": "10"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = ts.do(http.MethodPost, "/challenges", alice, map[string]any{"wordId": 0, "account": "bob", "deposit": 10})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = ts.do(http.MethodGet, "/challenges/sent", alice, nil)
	sent := decode[[]challenge.Sent](t, rr)
	require.Len(t, sent, 1)
	assert.Equal(t, "bob", sent[0].To)
	assert.Equal(t, challenge.StatusPending, sent[0].Status)

	rr = ts.do(http.MethodGet, "/challenges/received", bob, nil)
	recv := decode[[]challenge.Received](t, rr)
	require.Len(t, recv, 1)
	assert.Equal(t, "alice", recv[0].From)

	rr = ts.do(http.MethodPost, "/challenges/received/0/decision", bob, map[string]any{"decision": "accepted", "deposit": 5})
	assert.Equal(t, http.StatusPaymentRequired, rr.Code)
	assert.Equal(t, "error. stake is less", decode[envelope](t, rr).Msg)

	rr = ts.do(http.MethodPost, "/challenges/received/3/decision", bob, map[string]any{"decision": "accepted", "deposit": 10})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do(http.MethodPost, "/challenges/received/0/decision", bob, map[string]any{"decision": "Accepted", "deposit": 10})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = ts.do(http.MethodPost, "/challenges/received/0/decision", bob, map[string]any{"decision": "rejected"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, duel.KindAlreadyDecided, decode[envelope](t, rr).Kind)

	rr = ts.do(http.MethodPost, "/sessions/0/attempts", bob, map[string]string{"attempt": "APPLE"})
	require.Equal(t, http.StatusOK, rr.Code)

	var paid []payout.Transfer
	assert.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/payouts/mine", nil)
		req.Header.Set("Authorization", "Bearer "+bob)
		rr := httptest.NewRecorder()
		ts.srv.Router().ServeHTTP(rr, req)
		return json.Unmarshal(rr.Body.Bytes(), &paid) == nil && len(paid) == 1
	}, 2*time.Second, 20*time.Millisecond)
	require.Len(t, paid, 1)
	assert.Equal(t, "20", paid[0].Amount.String())

	rr = ts.do(http.MethodGet, "/payouts/mine", alice, nil)
	assert.Empty(t, decode[[]payout.Transfer](t, rr))
}

func TestChallengeTargetResolution(t *testing.T) {
	ts := newTestServer(t)
	root := ts.signup("root")
	alice := ts.signup("alice")
	bob := ts.signup("bob")
	ts.do(http.MethodPost, "/admin/words", root, map[string]string{"word": "APPLE"})
	ts.do(http.MethodPost, "/sessions", alice, nil)
	ts.do(http.MethodPost, "/sessions/0/attempts", alice, map[string]string{"attempt": "APPLE"})

	// a differently cased username reaches the registered account
	rr := ts.do(http.MethodPost, "/challenges", alice, map[string]any{"wordId": 0, "account": "BOB", "deposit": 10})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	created := decode[struct {
		Challenge challenge.Sent `json:"challenge"`
	}](t, rr)
	assert.Equal(t, "bob", created.Challenge.To)

	rr = ts.do(http.MethodGet, "/challenges/received", bob, nil)
	recv := decode[[]challenge.Received](t, rr)
	require.Len(t, recv, 1)
	assert.Equal(t, "alice", recv[0].From)

	rr = ts.do(http.MethodPost, "/challenges", alice, map[string]any{"wordId": 0, "account": "nobody_at_all", "deposit": 10})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, duel.KindNotFound, decode[envelope](t, rr).Kind)

	rr = ts.do(http.MethodPost, "/challenges", alice, map[string]any{"wordId": 0, "account": "Alice", "deposit": 10})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "cannot challenge yourself", decode[envelope](t, rr).Msg)

	rr = ts.do(http.MethodGet, "/admin/dump", root, nil)
	dump := decode[duel.DumpView](t, rr)
	assert.NotContains(t, dump.Directories, "BOB")
	assert.NotContains(t, dump.Directories, "nobody_at_all")
}

func TestRateLimit(t *testing.T) {
	st := store.NewMemoryStore()
	svc, err := duel.New(context.Background(), duel.Options{Store: st, Transferer: payout.NewQueue(st, 1)})
	require.NoError(t, err)
	srv := New(svc, auth.New(st, auth.Options{Secret: "s"}), st, Options{RateLimitRPS: 1, RateLimitBurst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestLimiterSweepsIdleClients(t *testing.T) {
	st := store.NewMemoryStore()
	svc, err := duel.New(context.Background(), duel.Options{Store: st, Transferer: payout.NewQueue(st, 1)})
	require.NoError(t, err)
	srv := New(svc, auth.New(st, auth.Options{Secret: "s"}), st, Options{RateLimitRPS: 1, RateLimitBurst: 1})

	idle := srv.limiter("10.0.0.1")
	active := srv.limiter("10.0.0.2")
	srv.limiters["10.0.0.1"].lastSeen = time.Now().Add(-2 * limiterTTL)
	srv.lastSweep = time.Now().Add(-2 * limiterTTL)

	assert.Same(t, active, srv.limiter("10.0.0.2"))
	assert.NotContains(t, srv.limiters, "10.0.0.1")
	assert.Contains(t, srv.limiters, "10.0.0.2")
	assert.NotSame(t, idle, srv.limiter("10.0.0.1"))
}
