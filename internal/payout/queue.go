// Package payout implements the asynchronous value-transfer primitive.
//
// Transfer never blocks and returns nothing: the caller's state is final before a
// transfer is requested, and delivery success or failure is only logged.
package payout

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Transfer is one requested payment.
type Transfer struct {
	ID          string          `json:"id"`
	To          string          `json:"to"`
	Amount      decimal.Decimal `json:"amount"`
	RequestedAt time.Time       `json:"requestedAt"`
}

// Recorder delivers a transfer, e.g. by writing it to the payouts table.
type Recorder interface {
	RecordPayout(ctx context.Context, t Transfer) error
}

// Queue buffers transfers for a background worker.
type Queue struct {
	ch   chan Transfer
	rec  Recorder
	done chan struct{}

	mu      sync.Mutex
	stopped bool
	pending sync.WaitGroup // overflow senders blocked on a full buffer
}

// NewQueue constructs a Queue delivering to rec with the given buffer size.
func NewQueue(rec Recorder, size int) *Queue {
	if size <= 0 {
		size = 64
	}
	return &Queue{ch: make(chan Transfer, size), rec: rec, done: make(chan struct{})}
}

// Transfer schedules amount to be paid to the account `to`.
// Once Run has begun draining, transfers are delivered inline.
func (q *Queue) Transfer(to string, amount decimal.Decimal) {
	t := Transfer{ID: uuid.NewString(), To: to, Amount: amount, RequestedAt: time.Now().UTC()}
	log.Info().Str("transfer", t.ID).Str("to", to).Str("amount", amount.String()).Msg("transfer requested")

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		log.Warn().Str("transfer", t.ID).Msg("queue stopped, delivering inline")
		q.deliver(t)
		return
	}
	select {
	case q.ch <- t:
	default:
		// buffer full: hand off without blocking the caller
		q.pending.Add(1)
		go func() {
			defer q.pending.Done()
			q.ch <- t
		}()
	}
	q.mu.Unlock()
}

// Run delivers transfers until ctx is cancelled, then drains everything
// buffered or still being handed off. Wait returns once Run has finished.
func (q *Queue) Run(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case t := <-q.ch:
			q.deliver(t)
		case <-ctx.Done():
			q.drain()
			return
		}
	}
}

func (q *Queue) drain() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()

	idle := make(chan struct{})
	go func() {
		q.pending.Wait()
		close(idle)
	}()
	for {
		select {
		case t := <-q.ch:
			q.deliver(t)
		case <-idle:
			for {
				select {
				case t := <-q.ch:
					q.deliver(t)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until Run has drained and returned.
func (q *Queue) Wait() { <-q.done }

func (q *Queue) deliver(t Transfer) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.rec.RecordPayout(ctx, t); err != nil {
		log.Error().Err(err).Str("transfer", t.ID).Str("to", t.To).Msg("transfer failed")
		return
	}
	log.Info().Str("transfer", t.ID).Str("to", t.To).Str("amount", t.Amount.String()).Msg("transfer delivered")
}
