// internal/store/memory.go
//
// In-memory implementation of Store.
// Used in tests and when DATABASE_DRIVER=memory; state is lost on restart.
//
// Characteristics:
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - Stores deep copies so callers can't alias persisted sessions/challenges.

package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/robalobadob/wordle-duel/internal/challenge"
	"github.com/robalobadob/wordle-duel/internal/game"
	"github.com/robalobadob/wordle-duel/internal/payout"
)

type sessionKey struct {
	account string
	wordID  int
}

// memory is a map-based Store.
type memory struct {
	mu         sync.RWMutex
	words      map[int]string
	accounts   map[string]struct{}
	sessions   map[sessionKey]*game.Session
	challenges map[int]*challenge.Challenge
	users      map[string]*User // keyed by ID
	payouts    []payout.Transfer
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	m := &memory{users: make(map[string]*User)}
	m.clear()
	return m
}

func (m *memory) clear() {
	m.words = make(map[int]string)
	m.accounts = make(map[string]struct{})
	m.sessions = make(map[sessionKey]*game.Session)
	m.challenges = make(map[int]*challenge.Challenge)
}

func (m *memory) Load(ctx context.Context) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := &Snapshot{}
	for i := 0; i < len(m.words); i++ {
		snap.Words = append(snap.Words, m.words[i])
	}
	for a := range m.accounts {
		snap.Accounts = append(snap.Accounts, a)
	}
	sort.Strings(snap.Accounts)
	for k, s := range m.sessions {
		snap.Sessions = append(snap.Sessions, SessionRecord{Account: k.account, WordID: k.wordID, Session: s.Clone()})
	}
	sort.Slice(snap.Sessions, func(i, j int) bool {
		a, b := snap.Sessions[i], snap.Sessions[j]
		if a.Account != b.Account {
			return a.Account < b.Account
		}
		return a.WordID < b.WordID
	})
	for i := 0; i < len(m.challenges); i++ {
		c := *m.challenges[i]
		snap.Challenges = append(snap.Challenges, &c)
	}
	return snap, nil
}

func (m *memory) Apply(ctx context.Context, cs *Changeset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cs.Reset {
		m.clear()
	}
	for _, w := range cs.Words {
		m.words[w.ID] = w.Word
	}
	for _, a := range cs.Accounts {
		m.accounts[a] = struct{}{}
	}
	for _, s := range cs.Sessions {
		m.accounts[s.Account] = struct{}{}
		m.sessions[sessionKey{s.Account, s.WordID}] = s.Session.Clone()
	}
	for _, c := range cs.Challenges {
		cp := *c
		m.challenges[c.ID] = &cp
	}
	return nil
}

func (m *memory) CreateUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.users {
		if strings.EqualFold(x.Username, u.Username) {
			return ErrUsernameTaken
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memory) UserByName(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memory) UserByID(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *memory) RecordPayout(ctx context.Context, t payout.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payouts = append(m.payouts, t)
	return nil
}

func (m *memory) Payouts(ctx context.Context, account string) ([]payout.Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []payout.Transfer{}
	for i := len(m.payouts) - 1; i >= 0; i-- {
		if m.payouts[i].To == account {
			out = append(out, m.payouts[i])
		}
	}
	return out, nil
}

func (m *memory) Close() error { return nil }
