// internal/store/store.go
//
// Persistence interface for the duel service.
// The persisted surface is the word registry, the account directories (sessions),
// the challenge arena, plus the host-side users and payout records.
//
// The service keeps its working state in memory and hands each state-changing
// call's effects to Apply as a single Changeset; implementations must apply a
// Changeset atomically.

package store

import (
	"context"
	"errors"
	"time"

	"github.com/robalobadob/wordle-duel/internal/challenge"
	"github.com/robalobadob/wordle-duel/internal/game"
	"github.com/robalobadob/wordle-duel/internal/payout"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUsernameTaken = errors.New("username taken")
)

// WordRecord is one registry entry.
type WordRecord struct {
	ID   int
	Word string
}

// SessionRecord is one account's session on one word.
type SessionRecord struct {
	Account string
	WordID  int
	Session *game.Session
}

// Snapshot is the full persisted game state, ordered for replay.
type Snapshot struct {
	Words      []string             // by ID
	Accounts   []string             // every account with a directory
	Sessions   []SessionRecord
	Challenges []*challenge.Challenge // by ID
}

// Changeset carries the effects of one call. When Reset is set, all game
// state is cleared before the remaining records are written.
type Changeset struct {
	Reset      bool
	Words      []WordRecord
	Accounts   []string
	Sessions   []SessionRecord
	Challenges []*challenge.Challenge
}

// Empty reports whether the changeset carries nothing to write.
func (c *Changeset) Empty() bool {
	return !c.Reset && len(c.Words) == 0 && len(c.Accounts) == 0 &&
		len(c.Sessions) == 0 && len(c.Challenges) == 0
}

// User is a registered caller.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Store defines the persistence interface.
// Implementations are backed by memory (tests), SQLite (default) or Postgres.
type Store interface {
	// Load returns the persisted game state.
	Load(ctx context.Context) (*Snapshot, error)
	// Apply writes one call's changes in a single transaction.
	Apply(ctx context.Context, cs *Changeset) error

	CreateUser(ctx context.Context, u *User) error
	UserByName(ctx context.Context, username string) (*User, error)
	UserByID(ctx context.Context, id string) (*User, error)

	// RecordPayout implements payout.Recorder.
	RecordPayout(ctx context.Context, t payout.Transfer) error
	// Payouts lists transfers paid to account, newest first.
	Payouts(ctx context.Context, account string) ([]payout.Transfer, error)

	Close() error
}
