// internal/challenge/ledger.go
//
// Challenge Ledger.
// A challenge is stored once, in an arena indexed by its ID. The sender's and
// receiver's account directories each hold the ID in their Sent/Received lists;
// the challenge records its position in both lists, so the sent/received views
// are derived and their cross-indices and status cannot disagree.
//
// Responsibilities:
//   - Create challenges (no duplicate per sender, receiver and word).
//   - Record the receiver's decision exactly once, enforcing the stake on accept.
//   - Find the accepted challenge that a finished session settles.

package challenge

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/robalobadob/wordle-duel/internal/account"
)

// Status of a challenge.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

var (
	ErrDuplicate         = errors.New("already challenged the user for same wordle")
	ErrNotFound          = errors.New("challenge not found")
	ErrAlreadyDecided    = errors.New("challenge already decided")
	ErrInvalidDecision   = errors.New("decision must be accepted or rejected")
	ErrInsufficientStake = errors.New("error. stake is less")
)

// Challenge is the single record shared by both participants.
type Challenge struct {
	ID            int             `json:"id"`
	Sender        string          `json:"sender"`
	Receiver      string          `json:"receiver"`
	SenderIndex   int             `json:"senderIndex"`   // position in sender's Sent
	ReceiverIndex int             `json:"receiverIndex"` // position in receiver's Received
	WordID        int             `json:"wordId"`
	Stake         decimal.Decimal `json:"stake"`
	Status        Status          `json:"status"`
	CreatedAt     int64           `json:"createdAt"`
}

// Sent is the sender-side view of a challenge.
type Sent struct {
	Index     int             `json:"index"`
	ToIndex   int             `json:"toIndex"`
	To        string          `json:"to"`
	WordID    int             `json:"wordId"`
	Stake     decimal.Decimal `json:"stake"`
	Status    Status          `json:"status"`
	CreatedAt int64           `json:"createdAt"`
}

// Received is the receiver-side view of a challenge.
type Received struct {
	Index     int             `json:"index"`
	FromIndex int             `json:"fromIndex"`
	From      string          `json:"from"`
	WordID    int             `json:"wordId"`
	Stake     decimal.Decimal `json:"stake"`
	Status    Status          `json:"status"`
	CreatedAt int64           `json:"createdAt"`
}

// SentView projects c onto its sender.
func (c *Challenge) SentView() Sent {
	return Sent{
		Index:     c.SenderIndex,
		ToIndex:   c.ReceiverIndex,
		To:        c.Receiver,
		WordID:    c.WordID,
		Stake:     c.Stake,
		Status:    c.Status,
		CreatedAt: c.CreatedAt,
	}
}

// ReceivedView projects c onto its receiver.
func (c *Challenge) ReceivedView() Received {
	return Received{
		Index:     c.ReceiverIndex,
		FromIndex: c.SenderIndex,
		From:      c.Sender,
		WordID:    c.WordID,
		Stake:     c.Stake,
		Status:    c.Status,
		CreatedAt: c.CreatedAt,
	}
}

// Ledger is the arena of all challenges. Not safe for concurrent use.
type Ledger struct {
	arena []*Challenge
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger { return &Ledger{} }

// Exists reports whether sender already challenged receiver on wordID, in any status.
func (l *Ledger) Exists(sender *account.Directory, receiver string, wordID int) bool {
	for _, id := range sender.Sent {
		c := l.arena[id]
		if c.Receiver == receiver && c.WordID == wordID {
			return true
		}
	}
	return false
}

// Create appends a pending challenge to both directories with a shared timestamp.
func (l *Ledger) Create(sender, receiver *account.Directory, wordID int, stake decimal.Decimal, now int64) (*Challenge, error) {
	if l.Exists(sender, receiver.Account, wordID) {
		return nil, ErrDuplicate
	}
	c := &Challenge{
		ID:            len(l.arena),
		Sender:        sender.Account,
		Receiver:      receiver.Account,
		SenderIndex:   len(sender.Sent),
		ReceiverIndex: len(receiver.Received),
		WordID:        wordID,
		Stake:         stake,
		Status:        StatusPending,
		CreatedAt:     now,
	}
	l.arena = append(l.arena, c)
	sender.Sent = append(sender.Sent, c.ID)
	receiver.Received = append(receiver.Received, c.ID)
	return c, nil
}

// ReceivedAt returns the challenge at local index in receiver's received list.
func (l *Ledger) ReceivedAt(receiver *account.Directory, index int) (*Challenge, error) {
	if index < 0 || index >= len(receiver.Received) {
		return nil, ErrNotFound
	}
	return l.arena[receiver.Received[index]], nil
}

// Decide records the receiver's decision. Accepting requires deposit >= stake.
// Nothing is mutated when an error is returned.
func (l *Ledger) Decide(receiver *account.Directory, index int, decision Status, deposit decimal.Decimal) (*Challenge, error) {
	if decision != StatusAccepted && decision != StatusRejected {
		return nil, ErrInvalidDecision
	}
	c, err := l.ReceivedAt(receiver, index)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusPending {
		return nil, ErrAlreadyDecided
	}
	if decision == StatusAccepted && deposit.LessThan(c.Stake) {
		return nil, ErrInsufficientStake
	}
	c.Status = decision
	return c, nil
}

// AcceptedFor returns the first accepted challenge received by d on wordID.
func (l *Ledger) AcceptedFor(d *account.Directory, wordID int) (*Challenge, bool) {
	for _, id := range d.Received {
		c := l.arena[id]
		if c.WordID == wordID && c.Status == StatusAccepted {
			return c, true
		}
	}
	return nil, false
}

// SentBy lists d's sent challenges in local index order.
func (l *Ledger) SentBy(d *account.Directory) []Sent {
	out := make([]Sent, 0, len(d.Sent))
	for _, id := range d.Sent {
		out = append(out, l.arena[id].SentView())
	}
	return out
}

// ReceivedBy lists d's received challenges in local index order.
func (l *Ledger) ReceivedBy(d *account.Directory) []Received {
	out := make([]Received, 0, len(d.Received))
	for _, id := range d.Received {
		out = append(out, l.arena[id].ReceivedView())
	}
	return out
}

// All returns the arena in ID order.
func (l *Ledger) All() []*Challenge {
	return append([]*Challenge{}, l.arena...)
}

// Restore rebuilds the arena and every participant's index lists from persisted
// challenges. Records must be ordered by ID with dense IDs.
func (l *Ledger) Restore(records []*Challenge, dirs *account.Directories) error {
	l.arena = nil
	for i, c := range records {
		if c.ID != i {
			return errors.New("challenge: non-dense challenge ids")
		}
		sender, _ := dirs.Ensure(c.Sender)
		receiver, _ := dirs.Ensure(c.Receiver)
		if c.SenderIndex != len(sender.Sent) || c.ReceiverIndex != len(receiver.Received) {
			return errors.New("challenge: cross-index mismatch")
		}
		l.arena = append(l.arena, c)
		sender.Sent = append(sender.Sent, c.ID)
		receiver.Received = append(receiver.Received, c.ID)
	}
	return nil
}

// Reset drops every challenge. Directory index lists must be reset by the caller.
func (l *Ledger) Reset() { l.arena = nil }
