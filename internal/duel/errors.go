package duel

import (
	"errors"

	"github.com/robalobadob/wordle-duel/internal/challenge"
	"github.com/robalobadob/wordle-duel/internal/game"
	"github.com/robalobadob/wordle-duel/internal/words"
)

var (
	ErrWrongFormat    = errors.New("attempt string is in wrong format")
	ErrInvalidAmount  = errors.New("attached deposit must be a non-negative amount")
	ErrUnknownWord    = errors.New("unknown wordle id")
	ErrNotSolved      = errors.New("only solved wordles are eligible to be raised for challenge")
	ErrSelfChallenge  = errors.New("cannot challenge yourself")
	ErrNoTarget       = errors.New("target account is required")
	ErrUnknownAccount = errors.New("target account not found")
	ErrExhausted      = errors.New("unable to create game. all wordles solved")
	ErrNoCaller       = errors.New("no caller identity")
	ErrStateNotStored = errors.New("state could not be persisted")
)

// Kind classifies a failed operation.
type Kind string

const (
	KindFormat            Kind = "format"
	KindNotEligible       Kind = "not_eligible"
	KindInsufficientStake Kind = "insufficient_stake"
	KindExhausted         Kind = "exhausted"
	KindNotFound          Kind = "not_found"
	KindAlreadyDecided    Kind = "already_decided"
	KindUnauthenticated   Kind = "unauthenticated"
	KindInternal          Kind = "internal"
)

// KindOf maps an error returned by Service to its Kind.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrWrongFormat), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrNoTarget),
		errors.Is(err, words.ErrInvalidWord), errors.Is(err, challenge.ErrInvalidDecision):
		return KindFormat
	case errors.Is(err, words.ErrWordExists), errors.Is(err, ErrNotSolved), errors.Is(err, ErrSelfChallenge),
		errors.Is(err, challenge.ErrDuplicate), errors.Is(err, game.ErrNotPlayable), errors.Is(err, game.ErrMaxAttempts):
		return KindNotEligible
	case errors.Is(err, challenge.ErrInsufficientStake):
		return KindInsufficientStake
	case errors.Is(err, ErrExhausted):
		return KindExhausted
	case errors.Is(err, ErrUnknownWord), errors.Is(err, ErrUnknownAccount), errors.Is(err, challenge.ErrNotFound):
		return KindNotFound
	case errors.Is(err, challenge.ErrAlreadyDecided):
		return KindAlreadyDecided
	case errors.Is(err, ErrNoCaller):
		return KindUnauthenticated
	default:
		return KindInternal
	}
}
