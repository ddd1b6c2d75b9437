// Package duel is the game and challenge contract.
//
// Every entry point resolves the calling account, lazily creates its directory
// when the call changes state, and delegates to the session store (account +
// game) and the challenge ledger. A finished session settles the accepted
// challenge on its word, if any, by requesting a fire-and-forget transfer.
//
// Calls are serialized by a single mutex. A state-changing call mutates the
// in-memory state, then persists its Changeset; if persisting fails the state is
// reloaded from the store so the call has no effect.
package duel

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/robalobadob/wordle-duel/internal/account"
	"github.com/robalobadob/wordle-duel/internal/challenge"
	"github.com/robalobadob/wordle-duel/internal/game"
	"github.com/robalobadob/wordle-duel/internal/store"
	"github.com/robalobadob/wordle-duel/internal/words"
)

// Options configure a Service. Store and Transferer are required.
type Options struct {
	Store      store.Store
	Transferer Transferer
	Clock      Clock // defaults to a MonotonicClock

	// LegacyInvolvement counts received challenges by list position instead of
	// by word when picking an unplayed word.
	LegacyInvolvement bool
}

// Service implements every contract entry point.
type Service struct {
	mu     sync.Mutex
	store  store.Store
	pay    Transferer
	clock  Clock
	legacy bool

	words  *words.Registry
	dirs   *account.Directories
	ledger *challenge.Ledger
}

// Assignment is the result of AssignNewSession.
type Assignment struct {
	WordID  int
	Session *game.Session
	Resumed bool // an in-progress session was returned instead of a new one
}

// DirectoryView is one account's record as exposed by Dump.
type DirectoryView struct {
	Games              map[int]*game.Session `json:"games"`
	ChallengesSent     []challenge.Sent      `json:"challengesSent"`
	ChallengesReceived []challenge.Received  `json:"challengesReceived"`
}

// DumpView is the complete contract state.
type DumpView struct {
	Words       []string                 `json:"words"`
	Directories map[string]DirectoryView `json:"directories"`
}

// New constructs a Service and loads its state from opts.Store.
func New(ctx context.Context, opts Options) (*Service, error) {
	if opts.Store == nil || opts.Transferer == nil {
		return nil, fmt.Errorf("duel: store and transferer are required")
	}
	if opts.Clock == nil {
		opts.Clock = &MonotonicClock{}
	}
	s := &Service{
		store:  opts.Store,
		pay:    opts.Transferer,
		clock:  opts.Clock,
		legacy: opts.LegacyInvolvement,
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// load replaces the in-memory state with the store's snapshot.
func (s *Service) load(ctx context.Context) error {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("duel: load state: %w", err)
	}

	reg := words.NewRegistry()
	for _, w := range snap.Words {
		if _, err := reg.Add(w); err != nil {
			return fmt.Errorf("duel: restore word %q: %w", w, err)
		}
	}
	dirs := account.NewDirectories()
	for _, a := range snap.Accounts {
		dirs.Ensure(a)
	}
	for _, rec := range snap.Sessions {
		d, _ := dirs.Ensure(rec.Account)
		d.Games[rec.WordID] = rec.Session
	}
	ledger := challenge.NewLedger()
	if err := ledger.Restore(snap.Challenges, dirs); err != nil {
		return fmt.Errorf("duel: restore challenges: %w", err)
	}

	s.words, s.dirs, s.ledger = reg, dirs, ledger
	return nil
}

// commit persists one call's changes, rolling the in-memory state back on failure.
func (s *Service) commit(ctx context.Context, cs *store.Changeset) error {
	if cs.Empty() {
		return nil
	}
	err := s.store.Apply(ctx, cs)
	if err == nil {
		return nil
	}
	log.Error().Err(err).Msg("persist call")
	if lerr := s.load(context.WithoutCancel(ctx)); lerr != nil {
		log.Error().Err(lerr).Msg("reload state after failed persist")
	}
	return fmt.Errorf("%w: %v", ErrStateNotStored, err)
}

// ------------------------------ registry -----------------------------------

// AddWord registers a new target word and returns its ID.
func (s *Service) AddWord(ctx context.Context, word string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.words.Add(word)
	if err != nil {
		return -1, err
	}
	w, _ := s.words.Word(id)
	if err := s.commit(ctx, &store.Changeset{Words: []store.WordRecord{{ID: id, Word: w}}}); err != nil {
		return -1, err
	}
	log.Info().Int("wordId", id).Msg("wordle added")
	return id, nil
}

// Seed adds every valid, new word of list in one call and reports how many were added.
func (s *Service) Seed(ctx context.Context, list []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := &store.Changeset{}
	for _, w := range list {
		id, err := s.words.Add(w)
		if err != nil {
			continue
		}
		norm, _ := s.words.Word(id)
		cs.Words = append(cs.Words, store.WordRecord{ID: id, Word: norm})
	}
	if err := s.commit(ctx, cs); err != nil {
		return 0, err
	}
	return len(cs.Words), nil
}

// WordCount returns the registry size.
func (s *Service) WordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.words.Len()
}

// ------------------------------ sessions -----------------------------------

// ExistingSession returns the caller's in-progress session, if any.
func (s *Service) ExistingSession(caller string) (int, *game.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dirs.Lookup(caller)
	if !ok {
		return -1, nil, false
	}
	id, sess, ok := d.Current()
	if !ok {
		return -1, nil, false
	}
	return id, sess.Clone(), true
}

// SessionByID returns the caller's session on wordID.
func (s *Service) SessionByID(caller string, wordID int) (*game.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dirs.Lookup(caller)
	if !ok {
		return nil, false
	}
	sess, ok := d.Games[wordID]
	if !ok {
		return nil, false
	}
	return sess.Clone(), true
}

// Sessions returns every session of the caller keyed by word ID.
func (s *Service) Sessions(caller string) map[int]*game.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dirs.Lookup(caller)
	if !ok {
		return map[int]*game.Session{}
	}
	return cloneGames(d.Games)
}

// AssignNewSession returns the caller's in-progress session, or starts one on
// the lowest word ID the caller is not involved with.
func (s *Service) AssignNewSession(ctx context.Context, call Call) (Assignment, error) {
	if call.Caller == "" {
		return Assignment{}, ErrNoCaller
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d, created := s.dirs.Ensure(call.Caller)
	cs := &store.Changeset{}
	if created {
		cs.Accounts = append(cs.Accounts, d.Account)
	}

	if id, sess, ok := d.Current(); ok {
		return Assignment{WordID: id, Session: sess.Clone(), Resumed: true}, nil
	}

	id, ok := s.unplayedWord(d)
	if !ok {
		if err := s.commit(ctx, cs); err != nil {
			return Assignment{}, err
		}
		return Assignment{}, ErrExhausted
	}

	sess := game.NewSession(s.clock.Now())
	d.Games[id] = sess
	cs.Sessions = append(cs.Sessions, store.SessionRecord{Account: d.Account, WordID: id, Session: sess})
	if err := s.commit(ctx, cs); err != nil {
		return Assignment{}, err
	}
	log.Info().Str("account", d.Account).Int("wordId", id).Msg("new game created")
	return Assignment{WordID: id, Session: sess.Clone()}, nil
}

// unplayedWord picks the lowest registry ID outside the involved set.
func (s *Service) unplayedWord(d *account.Directory) (int, bool) {
	involved := s.involved(d)
	for id := 0; id < s.words.Len(); id++ {
		if !involved[id] {
			return id, true
		}
	}
	return -1, false
}

// involved is the set of word IDs d has games on or was challenged with.
func (s *Service) involved(d *account.Directory) map[int]bool {
	set := make(map[int]bool, len(d.Games)+len(d.Received))
	for id := range d.Games {
		set[id] = true
	}
	if s.legacy {
		for i := range d.Received {
			set[i] = true
		}
		return set
	}
	for _, rc := range s.ledger.ReceivedBy(d) {
		set[rc.WordID] = true
	}
	return set
}

// SubmitAttempt evaluates guess on the caller's session for wordID.
// On ErrMaxAttempts the unchanged session is returned alongside the error.
func (s *Service) SubmitAttempt(ctx context.Context, caller string, wordID int, guess string) (*game.Session, error) {
	guess = words.Normalize(guess)
	if !words.IsValid(guess) {
		return nil, ErrWrongFormat
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dirs.Lookup(caller)
	if !ok {
		return nil, game.ErrNotPlayable
	}
	sess, ok := d.Games[wordID]
	if !ok || sess.Status != game.StatusInProgress {
		return nil, game.ErrNotPlayable
	}
	if len(sess.Attempts) >= game.MaxAttempts {
		return sess.Clone(), game.ErrMaxAttempts
	}
	target, ok := s.words.Word(wordID)
	if !ok {
		return nil, ErrUnknownWord
	}

	if _, err := sess.Apply(target, guess, s.clock.Now()); err != nil {
		return nil, err
	}
	cs := &store.Changeset{Sessions: []store.SessionRecord{{Account: d.Account, WordID: wordID, Session: sess}}}
	if err := s.commit(ctx, cs); err != nil {
		return nil, err
	}

	if sess.Finished() {
		log.Info().Str("account", d.Account).Int("wordId", wordID).Str("status", string(sess.Status)).
			Int("attempts", len(sess.Attempts)).Msg("game finished")
		s.settle(d, wordID, sess.Status)
	}
	return sess.Clone(), nil
}

// settle pays double the stake of the accepted challenge on wordID: to the
// receiver when it won, to the challenger when it lost.
func (s *Service) settle(d *account.Directory, wordID int, outcome game.Status) {
	c, ok := s.ledger.AcceptedFor(d, wordID)
	if !ok {
		return
	}
	to := c.Sender
	if outcome == game.StatusWon {
		to = d.Account
	}
	amount := c.Stake.Add(c.Stake)
	log.Info().Int("challenge", c.ID).Str("to", to).Str("amount", amount.String()).Msg("settling challenge")
	s.pay.Transfer(to, amount)
}

// ----------------------------- challenges ----------------------------------

// CheckEligibility reports whether target has no game recorded for wordID.
func (s *Service) CheckEligibility(wordID int, target string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dirs.Lookup(target)
	if !ok {
		return true
	}
	return !d.HasGame(wordID)
}

// CreateChallenge raises a challenge from the caller to target on wordID, staking
// the caller's deposit.
func (s *Service) CreateChallenge(ctx context.Context, call Call, wordID int, target string) (challenge.Sent, error) {
	if call.Caller == "" {
		return challenge.Sent{}, ErrNoCaller
	}
	if target == "" {
		return challenge.Sent{}, ErrNoTarget
	}
	if call.Deposit.IsNegative() {
		return challenge.Sent{}, ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sender, ok := s.dirs.Lookup(call.Caller)
	if !ok || !sender.HasGame(wordID) {
		return challenge.Sent{}, ErrNotSolved
	}
	if target == call.Caller {
		return challenge.Sent{}, ErrSelfChallenge
	}
	if s.ledger.Exists(sender, target, wordID) {
		return challenge.Sent{}, challenge.ErrDuplicate
	}

	receiver, created := s.dirs.Ensure(target)
	c, err := s.ledger.Create(sender, receiver, wordID, call.Deposit, s.clock.Now())
	if err != nil {
		return challenge.Sent{}, err
	}
	cs := &store.Changeset{Challenges: []*challenge.Challenge{c}}
	if created {
		cs.Accounts = append(cs.Accounts, receiver.Account)
	}
	if err := s.commit(ctx, cs); err != nil {
		return challenge.Sent{}, err
	}
	log.Info().Int("challenge", c.ID).Str("from", c.Sender).Str("to", c.Receiver).
		Int("wordId", wordID).Str("stake", c.Stake.String()).Msg("challenge created")
	return c.SentView(), nil
}

// ChallengesSent lists the caller's sent challenges.
func (s *Service) ChallengesSent(caller string) []challenge.Sent {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dirs.Lookup(caller)
	if !ok {
		return []challenge.Sent{}
	}
	return s.ledger.SentBy(d)
}

// ChallengesReceived lists the caller's received challenges.
func (s *Service) ChallengesReceived(caller string) []challenge.Received {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dirs.Lookup(caller)
	if !ok {
		return []challenge.Received{}
	}
	return s.ledger.ReceivedBy(d)
}

// DecideChallenge accepts or rejects the caller's received challenge at index.
// Accepting requires a deposit of at least the challenge's stake.
func (s *Service) DecideChallenge(ctx context.Context, call Call, index int, decision challenge.Status) (challenge.Received, error) {
	if call.Caller == "" {
		return challenge.Received{}, ErrNoCaller
	}
	if call.Deposit.IsNegative() {
		return challenge.Received{}, ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dirs.Lookup(call.Caller)
	if !ok {
		return challenge.Received{}, challenge.ErrNotFound
	}
	c, err := s.ledger.Decide(d, index, decision, call.Deposit)
	if err != nil {
		return challenge.Received{}, err
	}
	if err := s.commit(ctx, &store.Changeset{Challenges: []*challenge.Challenge{c}}); err != nil {
		return challenge.Received{}, err
	}
	log.Info().Int("challenge", c.ID).Str("by", d.Account).Str("decision", string(decision)).Msg("challenge decided")
	return c.ReceivedView(), nil
}

// -------------------------------- admin ------------------------------------

// Reset clears the registry and every account directory.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.words.Reset()
	s.dirs.Reset()
	s.ledger.Reset()
	if err := s.commit(ctx, &store.Changeset{Reset: true}); err != nil {
		return err
	}
	log.Warn().Msg("all data deleted")
	return nil
}

// Dump returns the registry and every directory.
func (s *Service) Dump() DumpView {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := DumpView{Words: s.words.All(), Directories: make(map[string]DirectoryView)}
	for _, a := range s.dirs.Accounts() {
		d, _ := s.dirs.Lookup(a)
		out.Directories[a] = DirectoryView{
			Games:              cloneGames(d.Games),
			ChallengesSent:     s.ledger.SentBy(d),
			ChallengesReceived: s.ledger.ReceivedBy(d),
		}
	}
	return out
}

func cloneGames(games map[int]*game.Session) map[int]*game.Session {
	return lo.MapValues(games, func(g *game.Session, _ int) *game.Session { return g.Clone() })
}

