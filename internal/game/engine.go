// internal/game/engine.go
//
// Game engine for a single duel session.
// Responsibilities:
//   - Create sessions in the in_progress state.
//   - Score attempts with the membership rule (no per-letter consumption).
//   - Track state transitions: in_progress → won/lost.
//
// Guesses must already be normalized and validated by the caller.
package game

import "errors"

var (
	ErrNotPlayable = errors.New("wordle is not being played by user. either not started or already played")
	ErrMaxAttempts = errors.New("game already reached max attempts")
)

// NewSession constructs an in-progress session with no attempts.
func NewSession(now int64) *Session {
	return &Session{
		Attempts:  []Attempt{},
		Status:    StatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Evaluate scores guess against target position by position:
//   - correct:        guess[i] == target[i]
//   - wrong_position: target contains guess[i] anywhere
//   - absent:         otherwise
//
// A repeated guessed letter may be marked wrong_position more than once even when
// the target holds a single unmatched occurrence. Both inputs must share a length.
func Evaluate(target, guess string) Attempt {
	out := make(Attempt, len(guess))
	var inTarget [256]bool
	for i := 0; i < len(target); i++ {
		inTarget[target[i]] = true
	}
	for i := 0; i < len(guess); i++ {
		v := VerdictAbsent
		switch {
		case guess[i] == target[i]:
			v = VerdictCorrect
		case inTarget[guess[i]]:
			v = VerdictWrongPosition
		}
		out[i] = LetterVerdict{Letter: string(guess[i]), Verdict: v}
	}
	return out
}

// Apply evaluates guess against target, appends the attempt and advances the status.
// The session is left untouched when it is finished or already holds MaxAttempts.
func (s *Session) Apply(target, guess string, now int64) (Attempt, error) {
	if s.Status != StatusInProgress {
		return nil, ErrNotPlayable
	}
	if len(s.Attempts) >= MaxAttempts {
		return nil, ErrMaxAttempts
	}

	a := Evaluate(target, guess)
	s.Attempts = append(s.Attempts, a)

	if a.Solved() {
		s.Status = StatusWon
	} else if len(s.Attempts) == MaxAttempts {
		s.Status = StatusLost
	}
	s.UpdatedAt = now
	return a, nil
}

// Finished reports whether the session reached won or lost.
func (s *Session) Finished() bool {
	return s.Status == StatusWon || s.Status == StatusLost
}

// Clone returns a deep copy; attempts are immutable so only the slices are copied.
func (s *Session) Clone() *Session {
	c := *s
	c.Attempts = make([]Attempt, len(s.Attempts))
	for i, a := range s.Attempts {
		c.Attempts[i] = append(Attempt{}, a...)
	}
	return &c
}

// Solved returns true if every letter is correct.
func (a Attempt) Solved() bool {
	if len(a) == 0 {
		return false
	}
	for _, lv := range a {
		if lv.Verdict != VerdictCorrect {
			return false
		}
	}
	return true
}
