package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/wordle-duel/internal/game"
)

func TestEnsureAndLookup(t *testing.T) {
	ds := NewDirectories()

	_, ok := ds.Lookup("alice")
	assert.False(t, ok)

	d, created := ds.Ensure("alice")
	require.True(t, created)
	assert.Equal(t, "alice", d.Account)
	assert.Empty(t, d.Games)

	again, created := ds.Ensure("alice")
	assert.False(t, created)
	assert.Same(t, d, again)

	_, _ = ds.Ensure("bob")
	assert.Equal(t, []string{"alice", "bob"}, ds.Accounts())

	ds.Reset()
	assert.Empty(t, ds.Accounts())
}

func TestCurrent(t *testing.T) {
	ds := NewDirectories()
	d, _ := ds.Ensure("alice")

	_, _, ok := d.Current()
	assert.False(t, ok)

	won := game.NewSession(1)
	won.Status = game.StatusWon
	d.Games[0] = won
	d.Games[3] = game.NewSession(2)

	id, s, ok := d.Current()
	require.True(t, ok)
	assert.Equal(t, 3, id)
	assert.Same(t, d.Games[3], s)

	assert.True(t, d.HasGame(0))
	assert.False(t, d.HasGame(1))
	assert.Equal(t, []int{0, 3}, d.WordIDs())
}
