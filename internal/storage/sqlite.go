package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"contextbot/internal/chat"
	logx "contextbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *sqliteStore) Recent(ctx context.Context, channel string) ([]chat.Message, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, author, body, at_ns FROM recent_messages WHERE channel = ? ORDER BY pos`, channel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs := []record{}
	for rows.Next() {
		var r record
		if err := rows.Scan(&r.ID, &r.Author, &r.Text, &r.UnixNano); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return fromRecords(recs), nil
}

func (s *sqliteStore) SetRecent(ctx context.Context, channel string, msgs []chat.Message) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM recent_messages WHERE channel = ?`, channel); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO recent_messages(channel, pos, id, author, body, at_ns) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, r := range toRecords(msgs) {
		if _, err := stmt.ExecContext(ctx, channel, i, r.ID, r.Author, r.Text, r.UnixNano); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) Counts(ctx context.Context, channel string) ([]int, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT n FROM message_counts WHERE channel = ? ORDER BY seq`, channel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []int{}
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendCount(ctx context.Context, channel string, n int, capacity int) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if capacity <= 0 {
		return ErrInvalidCapacity
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var last int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM message_counts WHERE channel = ?`, channel).Scan(&last); err != nil {
		return err
	}
	seq := last + 1
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO message_counts(channel, seq, n) VALUES(?,?,?)`, channel, seq, n); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM message_counts WHERE channel = ? AND seq <= ?`, channel, seq-int64(capacity)); err != nil {
		return err
	}
	return tx.Commit()
}
