package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/robalobadob/wordle-duel/internal/challenge"
	"github.com/robalobadob/wordle-duel/internal/game"
	"github.com/robalobadob/wordle-duel/internal/payout"
)

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to connStr and applies migrations/postgres.
// The caller is responsible for calling Close() on the store.
func NewPostgresStore(ctx context.Context, connStr string) (Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	var username, database string
	if err := pool.QueryRow(ctx, "SELECT current_user, current_database()").Scan(&username, &database); err != nil {
		pool.Close()
		return nil, fmt.Errorf("query database: %w", err)
	}
	log.Info().Str("database", database).Str("user", username).Msg("connected to postgres")

	s := &postgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *postgresStore) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS _migrations (name TEXT PRIMARY KEY)`); err != nil {
		return fmt.Errorf("create _migrations: %w", err)
	}
	files, err := migrationFiles("migrations/postgres")
	if err != nil {
		return err
	}
	for _, f := range files {
		var done int
		err := s.pool.QueryRow(ctx, `SELECT 1 FROM _migrations WHERE name=$1`, f).Scan(&done)
		if err == nil {
			continue
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("query _migrations: %w", err)
		}
		sqlBytes, err := migrations.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
				return fmt.Errorf("apply %s: %w", f, err)
			}
			_, err := tx.Exec(ctx, `INSERT INTO _migrations(name) VALUES ($1)`, f)
			return err
		})
		if err != nil {
			return err
		}
		log.Info().Str("migration", f).Msg("applied")
	}
	return nil
}

func (s *postgresStore) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	rows, err := s.pool.Query(ctx, `SELECT word FROM words ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query words: %w", err)
	}
	if snap.Words, err = pgx.CollectRows(rows, pgx.RowTo[string]); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `SELECT account FROM accounts ORDER BY account`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	if snap.Accounts, err = pgx.CollectRows(rows, pgx.RowTo[string]); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `SELECT account, word_id, status, attempts::text, created_at, updated_at
	                               FROM sessions ORDER BY account, word_id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	snap.Sessions, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (SessionRecord, error) {
		var rec SessionRecord
		var status, attempts string
		sess := &game.Session{}
		if err := row.Scan(&rec.Account, &rec.WordID, &status, &attempts, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return rec, err
		}
		sess.Status = game.Status(status)
		a, err := decodeAttempts(attempts)
		if err != nil {
			return rec, err
		}
		sess.Attempts = a
		rec.Session = sess
		return rec, nil
	})
	if err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `SELECT id, sender, receiver, sender_index, receiver_index, word_id, stake::text, status, created_at
	                               FROM challenges ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query challenges: %w", err)
	}
	snap.Challenges, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (*challenge.Challenge, error) {
		c := &challenge.Challenge{}
		var stake, status string
		if err := row.Scan(&c.ID, &c.Sender, &c.Receiver, &c.SenderIndex, &c.ReceiverIndex,
			&c.WordID, &stake, &status, &c.CreatedAt); err != nil {
			return nil, err
		}
		var err error
		if c.Stake, err = decimal.NewFromString(stake); err != nil {
			return nil, err
		}
		c.Status = challenge.Status(status)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *postgresStore) Apply(ctx context.Context, cs *Changeset) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if cs.Reset {
			if _, err := tx.Exec(ctx, `TRUNCATE words, accounts, sessions, challenges`); err != nil {
				return fmt.Errorf("reset: %w", err)
			}
		}

		batch := &pgx.Batch{}
		for _, w := range cs.Words {
			batch.Queue(`INSERT INTO words (id, word) VALUES ($1, $2)`, w.ID, w.Word)
		}
		for _, a := range cs.Accounts {
			batch.Queue(`INSERT INTO accounts (account) VALUES ($1) ON CONFLICT DO NOTHING`, a)
		}
		for _, r := range cs.Sessions {
			attempts, err := encodeAttempts(r.Session.Attempts)
			if err != nil {
				return err
			}
			batch.Queue(`INSERT INTO accounts (account) VALUES ($1) ON CONFLICT DO NOTHING`, r.Account)
			batch.Queue(`
				INSERT INTO sessions (account, word_id, status, attempts, created_at, updated_at)
				VALUES ($1, $2, $3, $4::jsonb, $5, $6)
				ON CONFLICT (account, word_id) DO UPDATE SET
					status = EXCLUDED.status, attempts = EXCLUDED.attempts, updated_at = EXCLUDED.updated_at`,
				r.Account, r.WordID, string(r.Session.Status), attempts, r.Session.CreatedAt, r.Session.UpdatedAt)
		}
		for _, c := range cs.Challenges {
			batch.Queue(`
				INSERT INTO challenges (id, sender, receiver, sender_index, receiver_index, word_id, stake, status, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9)
				ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`,
				c.ID, c.Sender, c.Receiver, c.SenderIndex, c.ReceiverIndex, c.WordID, c.Stake.String(), string(c.Status), c.CreatedAt)
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (s *postgresStore) CreateUser(ctx context.Context, u *User) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO users (id, username, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Username, u.PasswordHash, u.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrUsernameTaken
	}
	return err
}

func (s *postgresStore) UserByName(ctx context.Context, username string) (*User, error) {
	return s.user(ctx, `SELECT id, username, password_hash, created_at FROM users WHERE lower(username) = lower($1)`, username)
}

func (s *postgresStore) UserByID(ctx context.Context, id string) (*User, error) {
	return s.user(ctx, `SELECT id, username, password_hash, created_at FROM users WHERE id = $1`, id)
}

func (s *postgresStore) user(ctx context.Context, q string, arg string) (*User, error) {
	var u User
	if err := s.pool.QueryRow(ctx, q, arg).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *postgresStore) RecordPayout(ctx context.Context, t payout.Transfer) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO payouts (id, recipient, amount, requested_at) VALUES ($1, $2, $3::numeric, $4)`,
		t.ID, t.To, t.Amount.String(), t.RequestedAt)
	return err
}

func (s *postgresStore) Payouts(ctx context.Context, account string) ([]payout.Transfer, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, recipient, amount::text, requested_at FROM payouts
	                                WHERE recipient = $1 ORDER BY requested_at DESC`, account)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (payout.Transfer, error) {
		var t payout.Transfer
		var amount string
		var at time.Time
		if err := row.Scan(&t.ID, &t.To, &amount, &at); err != nil {
			return t, err
		}
		t.RequestedAt = at.UTC()
		var err error
		t.Amount, err = decimal.NewFromString(amount)
		return t, err
	})
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
