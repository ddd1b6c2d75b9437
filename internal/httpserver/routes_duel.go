// internal/httpserver/routes_duel.go
//
// HTTP routes for the contract entry points:
//   - /sessions    existing, by id, all, assign new, submit attempt
//   - /challenges  eligibility, create, sent, received, decide
//   - /admin       add word, reset, dump
//   - /payouts/mine recorded transfers to the caller
//
// Word IDs travel as integers; attached value travels as the "deposit" field.
// Target accounts are resolved to the registered username before reaching the
// duel service; unknown users answer 404 (kind not_found). Challenging yourself
// answers 409 (kind not_eligible).

package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/robalobadob/wordle-duel/internal/challenge"
	"github.com/robalobadob/wordle-duel/internal/duel"
	"github.com/robalobadob/wordle-duel/internal/game"
	"github.com/robalobadob/wordle-duel/internal/store"
	"github.com/robalobadob/wordle-duel/internal/words"
)

func (s *Server) mountSessionRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.handleAllSessions)
		r.Post("/", s.handleAssignSession)
		r.Get("/current", s.handleExistingSession)
		r.Get("/{id}", s.handleSessionByID)
		r.Post("/{id}/attempts", s.handleAttempt)
	})
}

func (s *Server) mountChallengeRoutes(r chi.Router) {
	r.Route("/challenges", func(r chi.Router) {
		r.Get("/eligibility", s.handleEligibility)
		r.Post("/", s.handleCreateChallenge)
		r.Get("/sent", s.handleChallengesSent)
		r.Get("/received", s.handleChallengesReceived)
		r.Post("/received/{index}/decision", s.handleDecide)
	})
}

func (s *Server) mountAdminRoutes(r chi.Router) {
	r.Post("/words", s.handleAddWord)
	r.Post("/reset", s.handleReset)
	r.Get("/dump", s.handleDump)
}

// ------------------------------ sessions -----------------------------------

type existingSessionRes struct {
	WordID  *int          `json:"wordId"`
	Session *game.Session `json:"session"`
}

func (s *Server) handleExistingSession(w http.ResponseWriter, r *http.Request) {
	id, sess, ok := s.duel.ExistingSession(caller(r))
	if !ok {
		writeJSON(w, http.StatusOK, existingSessionRes{})
		return
	}
	writeJSON(w, http.StatusOK, existingSessionRes{WordID: &id, Session: sess})
}

// handleSessionByID answers the session or null.
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	sess, ok := s.duel.SessionByID(caller(r), id)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleAllSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.duel.Sessions(caller(r)))
}

type depositReq struct {
	Deposit decimal.Decimal `json:"deposit"`
}

type assignRes struct {
	result
	WordID  *int          `json:"wordId"`
	Session *game.Session `json:"session"`
}

func (s *Server) handleAssignSession(w http.ResponseWriter, r *http.Request) {
	var req depositReq
	if !decodeOptional(w, r, &req) {
		return
	}
	a, err := s.duel.AssignNewSession(r.Context(), duel.Call{Caller: caller(r), Deposit: req.Deposit})
	if err != nil {
		status, res := failure(err)
		writeJSON(w, status, assignRes{result: res})
		return
	}
	msg := "new game created"
	if a.Resumed {
		msg = "there is a wordle that is being solved"
	}
	writeJSON(w, http.StatusOK, assignRes{
		result:  result{Msg: msg, Success: true},
		WordID:  &a.WordID,
		Session: a.Session,
	})
}

type attemptReq struct {
	Attempt string `json:"attempt"`
}

type attemptRes struct {
	result
	Session *game.Session `json:"session"`
}

func (s *Server) handleAttempt(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		status, res := failure(game.ErrNotPlayable)
		writeJSON(w, status, attemptRes{result: res})
		return
	}
	var req attemptReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	sess, err := s.duel.SubmitAttempt(r.Context(), caller(r), id, req.Attempt)
	if err != nil {
		status, res := failure(err)
		writeJSON(w, status, attemptRes{result: res, Session: sess})
		return
	}
	writeJSON(w, http.StatusOK, attemptRes{result: result{Msg: "attempt registered !", Success: true}, Session: sess})
}

// ----------------------------- challenges ----------------------------------

func (s *Server) handleEligibility(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, err := strconv.Atoi(q.Get("wordId"))
	if err != nil || q.Get("account") == "" {
		http.Error(w, `{"error":"wordId and account are required"}`, http.StatusBadRequest)
		return
	}
	target, err := s.resolveAccount(r, q.Get("account"))
	if err != nil {
		status, res := failure(err)
		writeJSON(w, status, res)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"eligible": s.duel.CheckEligibility(id, target)})
}

// resolveAccount maps a client-supplied username onto the registered account.
func (s *Server) resolveAccount(r *http.Request, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", duel.ErrNoTarget
	}
	acct, err := s.auth.Resolve(r.Context(), name)
	if errors.Is(err, store.ErrNotFound) {
		return "", duel.ErrUnknownAccount
	}
	return acct, err
}

type createChallengeReq struct {
	WordID  int             `json:"wordId"`
	Account string          `json:"account"`
	Deposit decimal.Decimal `json:"deposit"`
}

type challengeRes struct {
	result
	Challenge any `json:"challenge,omitempty"`
}

func (s *Server) handleCreateChallenge(w http.ResponseWriter, r *http.Request) {
	var req createChallengeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	target, err := s.resolveAccount(r, req.Account)
	if err != nil {
		status, res := failure(err)
		writeJSON(w, status, challengeRes{result: res})
		return
	}
	sent, err := s.duel.CreateChallenge(r.Context(), duel.Call{Caller: caller(r), Deposit: req.Deposit}, req.WordID, target)
	if err != nil {
		status, res := failure(err)
		writeJSON(w, status, challengeRes{result: res})
		return
	}
	writeJSON(w, http.StatusOK, challengeRes{result: result{Msg: "challenge created", Success: true}, Challenge: sent})
}

func (s *Server) handleChallengesSent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.duel.ChallengesSent(caller(r)))
}

func (s *Server) handleChallengesReceived(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.duel.ChallengesReceived(caller(r)))
}

type decideReq struct {
	Decision string          `json:"decision"` // "accepted" | "rejected"
	Deposit  decimal.Decimal `json:"deposit"`
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		status, res := failure(challenge.ErrNotFound)
		writeJSON(w, status, challengeRes{result: res})
		return
	}
	var req decideReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	decision := challenge.Status(strings.ToLower(strings.TrimSpace(req.Decision)))
	rc, err := s.duel.DecideChallenge(r.Context(), duel.Call{Caller: caller(r), Deposit: req.Deposit}, index, decision)
	if err != nil {
		status, res := failure(err)
		writeJSON(w, status, challengeRes{result: res})
		return
	}
	writeJSON(w, http.StatusOK, challengeRes{result: result{Msg: "challenge decision recorded", Success: true}, Challenge: rc})
}

func (s *Server) handlePayouts(w http.ResponseWriter, r *http.Request) {
	list, err := s.payouts.Payouts(r.Context(), caller(r))
	if err != nil {
		status, res := failure(err)
		writeJSON(w, status, res)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// -------------------------------- admin ------------------------------------

type addWordReq struct {
	Word string `json:"word"`
}

type addWordRes struct {
	result
	WordID *int `json:"wordId,omitempty"`
}

func (s *Server) handleAddWord(w http.ResponseWriter, r *http.Request) {
	var req addWordReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	id, err := s.duel.AddWord(r.Context(), req.Word)
	if err != nil {
		status, res := failure(err)
		writeJSON(w, status, addWordRes{result: res})
		return
	}
	writeJSON(w, http.StatusOK, addWordRes{
		result: result{Msg: "wordle " + words.Normalize(req.Word) + " set", Success: true},
		WordID: &id,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.duel.Reset(r.Context()); err != nil {
		status, res := failure(err)
		writeJSON(w, status, res)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.duel.Dump())
}

// decodeOptional decodes a JSON body when one is present.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return false
	}
	return true
}
