// internal/game/types.go
//
// Core type definitions for a duel game session.
// Defines:
//   - Verdict: per-letter result of an attempt (correct/wrong_position/absent).
//   - Attempt: one guess as a sequence of (letter, verdict) pairs.
//   - Status: lifecycle of a session (in_progress → won | lost).
//   - Session: one account's play of one registry word.

package game

// Verdict represents the evaluation result for a single letter in an attempt.
type Verdict string

const (
	VerdictCorrect       Verdict = "correct"
	VerdictWrongPosition Verdict = "wrong_position"
	VerdictAbsent        Verdict = "absent"
)

// LetterVerdict pairs a guessed letter with its verdict.
type LetterVerdict struct {
	Letter  string  `json:"letter"`
	Verdict Verdict `json:"correctness"`
}

// Attempt is one evaluated guess; immutable once appended to a session.
type Attempt []LetterVerdict

// Status of a game session.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusWon        Status = "won"
	StatusLost       Status = "lost"
)

// MaxAttempts is the number of guesses a session accepts.
const MaxAttempts = 5

// Session holds the state of one account's game on one word.
// Timestamps are host-supplied logical times (monotonic, not wall clock).
type Session struct {
	Attempts  []Attempt `json:"attempts"`
	Status    Status    `json:"status"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt int64     `json:"updatedAt"`
}
