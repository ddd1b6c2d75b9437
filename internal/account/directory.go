// Package account holds the per-account directory records of the duel service.
//
// A Directory aggregates everything one account owns: its game sessions keyed by
// word ID and the index lists of the challenges it sent and received. Challenge
// lists hold IDs into the challenge ledger; a challenge's local index is its
// position in the owner's list and is never reused.
package account

import (
	"sort"

	"github.com/samber/lo"

	"github.com/robalobadob/wordle-duel/internal/game"
)

// Directory is the record owned by a single account.
type Directory struct {
	Account  string
	Games    map[int]*game.Session
	Sent     []int // ledger IDs, local index = position
	Received []int // ledger IDs, local index = position
}

func newDirectory(acct string) *Directory {
	return &Directory{Account: acct, Games: make(map[int]*game.Session)}
}

// Current returns the in-progress session, if any.
// At most one exists; word IDs are scanned in ascending order regardless.
func (d *Directory) Current() (int, *game.Session, bool) {
	for _, id := range d.WordIDs() {
		if s := d.Games[id]; s.Status == game.StatusInProgress {
			return id, s, true
		}
	}
	return -1, nil, false
}

// HasGame reports whether a session was ever recorded for wordID.
func (d *Directory) HasGame(wordID int) bool {
	_, ok := d.Games[wordID]
	return ok
}

// WordIDs returns the IDs of all recorded sessions in ascending order.
func (d *Directory) WordIDs() []int {
	ids := lo.Keys(d.Games)
	sort.Ints(ids)
	return ids
}

// Directories maps account identities to their records.
type Directories struct {
	dirs map[string]*Directory
}

// NewDirectories returns an empty account map.
func NewDirectories() *Directories {
	return &Directories{dirs: make(map[string]*Directory)}
}

// Ensure returns the record for acct, creating it when absent.
// created reports whether this call instantiated it.
func (ds *Directories) Ensure(acct string) (d *Directory, created bool) {
	if d, ok := ds.dirs[acct]; ok {
		return d, false
	}
	d = newDirectory(acct)
	ds.dirs[acct] = d
	return d, true
}

// Lookup returns the record for acct without creating it.
func (ds *Directories) Lookup(acct string) (*Directory, bool) {
	d, ok := ds.dirs[acct]
	return d, ok
}

// Accounts lists every known account in lexical order.
func (ds *Directories) Accounts() []string {
	out := lo.Keys(ds.dirs)
	sort.Strings(out)
	return out
}

// Reset drops every record.
func (ds *Directories) Reset() {
	ds.dirs = make(map[string]*Directory)
}
