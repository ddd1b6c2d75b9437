// internal/store/sqlite.go
//
// SQLite-backed Store.
// Responsibilities:
//   - Opening SQLite database with safe defaults (WAL, busy timeout, foreign keys).
//   - Applying embedded migrations (idempotent, recorded in _migrations).
//   - Writing each Changeset in one transaction.

package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/robalobadob/wordle-duel/internal/challenge"
	"github.com/robalobadob/wordle-duel/internal/game"
	"github.com/robalobadob/wordle-duel/internal/payout"
)

//go:embed migrations
var migrations embed.FS

// payoutTimeLayout is fixed-width so requested_at sorts as text.
const payoutTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates if missing) the database at path and migrates it.
func NewSQLiteStore(ctx context.Context, path string) (Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteStore{db: db}, nil
}

// openDB ensures the parent directory exists for relative paths (./data/duel.db)
// and opens the file with busy timeout and WAL journaling.
func openDB(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;`); err != nil {
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	return db, nil
}

// migrate applies migrations/sqlite/*.sql in lexical order, skipping files
// already recorded in _migrations. Each file runs in its own transaction.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS _migrations (name TEXT PRIMARY KEY);`); err != nil {
		return fmt.Errorf("create _migrations: %w", err)
	}

	files, err := migrationFiles("migrations/sqlite")
	if err != nil {
		return err
	}
	for _, f := range files {
		var done int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM _migrations WHERE name=?`, f).Scan(&done)
		if err == nil {
			log.Debug().Str("migration", f).Msg("already applied")
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("query _migrations: %w", err)
		}

		sqlBytes, err := migrations.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", f, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO _migrations(name) VALUES (?)`, f); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", f, err)
		}
		log.Info().Str("migration", f).Msg("applied")
	}
	return nil
}

// migrationFiles lists the embedded *.sql files under dir, sorted.
func migrationFiles(dir string) ([]string, error) {
	var files []string
	err := fs.WalkDir(migrations, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), ".sql") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

func (s *sqliteStore) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	rows, err := s.db.QueryContext(ctx, `SELECT word FROM words ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query words: %w", err)
	}
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			rows.Close()
			return nil, err
		}
		snap.Words = append(snap.Words, w)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT account FROM accounts ORDER BY account`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			rows.Close()
			return nil, err
		}
		snap.Accounts = append(snap.Accounts, a)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT account, word_id, status, attempts, created_at, updated_at
	                                    FROM sessions ORDER BY account, word_id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	for rows.Next() {
		var rec SessionRecord
		var status, attempts string
		sess := &game.Session{}
		if err := rows.Scan(&rec.Account, &rec.WordID, &status, &attempts, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		sess.Status = game.Status(status)
		if sess.Attempts, err = decodeAttempts(attempts); err != nil {
			rows.Close()
			return nil, err
		}
		rec.Session = sess
		snap.Sessions = append(snap.Sessions, rec)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT id, sender, receiver, sender_index, receiver_index, word_id, stake, status, created_at
	                                    FROM challenges ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query challenges: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		c := &challenge.Challenge{}
		var stake, status string
		if err := rows.Scan(&c.ID, &c.Sender, &c.Receiver, &c.SenderIndex, &c.ReceiverIndex,
			&c.WordID, &stake, &status, &c.CreatedAt); err != nil {
			return nil, err
		}
		if c.Stake, err = decimal.NewFromString(stake); err != nil {
			return nil, fmt.Errorf("challenge %d stake: %w", c.ID, err)
		}
		c.Status = challenge.Status(status)
		snap.Challenges = append(snap.Challenges, c)
	}
	return snap, rows.Err()
}

func (s *sqliteStore) Apply(ctx context.Context, cs *Changeset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if cs.Reset {
		for _, table := range []string{"words", "accounts", "sessions", "challenges"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("reset %s: %w", table, err)
			}
		}
	}
	for _, w := range cs.Words {
		if _, err := tx.ExecContext(ctx, `INSERT INTO words (id, word) VALUES (?, ?)`, w.ID, w.Word); err != nil {
			return fmt.Errorf("insert word: %w", err)
		}
	}
	for _, a := range cs.Accounts {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO accounts (account) VALUES (?)`, a); err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
	}
	for _, r := range cs.Sessions {
		attempts, err := encodeAttempts(r.Session.Attempts)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO accounts (account) VALUES (?)`, r.Account); err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sessions (account, word_id, status, attempts, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (account, word_id) DO UPDATE SET
				status = excluded.status, attempts = excluded.attempts, updated_at = excluded.updated_at`,
			r.Account, r.WordID, string(r.Session.Status), attempts, r.Session.CreatedAt, r.Session.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}
	}
	for _, c := range cs.Challenges {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO challenges (id, sender, receiver, sender_index, receiver_index, word_id, stake, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET status = excluded.status`,
			c.ID, c.Sender, c.Receiver, c.SenderIndex, c.ReceiverIndex, c.WordID, c.Stake.String(), string(c.Status), c.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert challenge: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *sqliteStore) CreateUser(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, username, password_hash, created_at) VALUES (?,?,?,?)`,
		u.ID, u.Username, u.PasswordHash, u.CreatedAt.UTC().Format(time.RFC3339))
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ErrUsernameTaken
	}
	return err
}

func (s *sqliteStore) UserByName(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (s *sqliteStore) UserByID(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, username, password_hash, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// scanUser converts a *sql.Row into a User.
func scanUser(row *sql.Row) (*User, error) {
	var u User
	var created string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &u, nil
}

func (s *sqliteStore) RecordPayout(ctx context.Context, t payout.Transfer) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO payouts (id, recipient, amount, requested_at) VALUES (?,?,?,?)`,
		t.ID, t.To, t.Amount.String(), t.RequestedAt.UTC().Format(payoutTimeLayout))
	return err
}

func (s *sqliteStore) Payouts(ctx context.Context, account string) ([]payout.Transfer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, recipient, amount, requested_at FROM payouts
	                                     WHERE recipient = ? ORDER BY requested_at DESC, rowid DESC`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []payout.Transfer{}
	for rows.Next() {
		var t payout.Transfer
		var amount, at string
		if err := rows.Scan(&t.ID, &t.To, &amount, &at); err != nil {
			return nil, err
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		t.RequestedAt, _ = time.Parse(payoutTimeLayout, at)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func encodeAttempts(a []game.Attempt) (string, error) {
	if a == nil {
		a = []game.Attempt{}
	}
	b, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("encode attempts: %w", err)
	}
	return string(b), nil
}

func decodeAttempts(s string) ([]game.Attempt, error) {
	out := []game.Attempt{}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode attempts: %w", err)
	}
	return out, nil
}
