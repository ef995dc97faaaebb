package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// SQLite is a Backend persisted in a single SQLite file.
type SQLite struct {
	db   *sql.DB
	opts options
}

// OpenSQLite opens/creates a SQLite database at dbPath and runs migrations.
func OpenSQLite(dbPath string, opts ...Option) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("kv: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite is not concurrent for writes
	s := &SQLite{db: db, opts: buildOptions(opts)}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// --------- Migrations ---------

func (s *SQLite) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv_strings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			expires_at INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_kv_strings_expires ON kv_strings(expires_at) WHERE expires_at IS NOT NULL;`,

		`CREATE TABLE IF NOT EXISTS kv_zsets (
			key TEXT NOT NULL,
			member TEXT NOT NULL,
			score REAL NOT NULL,
			PRIMARY KEY(key, member)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_kv_zsets_rank ON kv_zsets(key, score DESC, member ASC);`,

		`CREATE TABLE IF NOT EXISTS kv_lists (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL,
			value TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_kv_lists_key ON kv_lists(key, id DESC);`,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			tx.Rollback()
			return fmt.Errorf("kv: migrate: %w", err)
		}
	}
	return tx.Commit()
}

// --------- Strings ---------

func (s *SQLite) nowMillis() int64 {
	return s.opts.now().UnixMilli()
}

// Get returns the value stored at key.
func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value     string
		expiresAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv_strings WHERE key=?`, key).Scan(&value, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	if expiresAt.Valid && expiresAt.Int64 <= s.nowMillis() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM kv_strings WHERE key=? AND expires_at<=?`, key, s.nowMillis())
		return "", false, nil
	}
	return value, true, nil
}

// Set stores value at key and clears its expiry.
func (s *SQLite) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_strings(key, value, expires_at) VALUES(?, ?, NULL)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, expires_at=NULL`,
		key, value)
	return err
}

// Delete removes key from every keyspace.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, q := range []string{
		`DELETE FROM kv_strings WHERE key=?`,
		`DELETE FROM kv_zsets WHERE key=?`,
		`DELETE FROM kv_lists WHERE key=?`,
	} {
		if _, err := tx.ExecContext(ctx, q, key); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// IncrBy adds n to the integer at key, treating a missing or expired key as 0.
func (s *SQLite) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var (
		value     string
		expiresAt sql.NullInt64
		cur       int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv_strings WHERE key=?`, key).Scan(&value, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return 0, err
	case expiresAt.Valid && expiresAt.Int64 <= s.nowMillis():
		expiresAt = sql.NullInt64{}
	default:
		cur, err = strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrNotInteger, key)
		}
	}

	cur += n
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO kv_strings(key, value, expires_at) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, expires_at=excluded.expires_at`,
		key, strconv.FormatInt(cur, 10), expiresAt); err != nil {
		return 0, err
	}
	return cur, tx.Commit()
}

// Expire sets a TTL on an existing, unexpired key.
func (s *SQLite) Expire(ctx context.Context, key string, ttl time.Duration) error {
	now := s.opts.now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE kv_strings SET expires_at=?
		WHERE key=? AND (expires_at IS NULL OR expires_at > ?)`,
		expiryMillis(now, ttl), key, now.UnixMilli())
	return err
}

// PurgeExpired deletes expired string keys.
func (s *SQLite) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_strings WHERE expires_at IS NOT NULL AND expires_at <= ?`, s.nowMillis())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --------- Sorted sets ---------

// ZAdd sets member's score.
func (s *SQLite) ZAdd(ctx context.Context, key, member string, score float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_zsets(key, member, score) VALUES(?, ?, ?)
		ON CONFLICT(key, member) DO UPDATE SET score=excluded.score`,
		key, member, score)
	return err
}

// ZRevRange returns a window of the set, highest score first.
func (s *SQLite) ZRevRange(ctx context.Context, key string, offset, limit int) ([]ScoredMember, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT member, score FROM kv_zsets
		WHERE key=?
		ORDER BY score DESC, member ASC
		LIMIT ? OFFSET ?`, key, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScoredMember
	for rows.Next() {
		var sm ScoredMember
		if err := rows.Scan(&sm.Member, &sm.Score); err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// ZRevRank returns member's zero-based position in ZRevRange order.
func (s *SQLite) ZRevRank(ctx context.Context, key, member string) (int, bool, error) {
	var score float64
	err := s.db.QueryRowContext(ctx,
		`SELECT score FROM kv_zsets WHERE key=? AND member=?`, key, member).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var rank int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM kv_zsets
		WHERE key=? AND (score > ? OR (score = ? AND member < ?))`,
		key, score, score, member).Scan(&rank)
	if err != nil {
		return 0, false, err
	}
	return rank, true, nil
}

// ZCard returns the number of members in the set.
func (s *SQLite) ZCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv_zsets WHERE key=?`, key).Scan(&n)
	return n, err
}

// --------- Lists ---------

// LPushCapped prepends value and keeps at most max entries.
func (s *SQLite) LPushCapped(ctx context.Context, key, value string, max int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO kv_lists(key, value) VALUES(?, ?)`, key, value); err != nil {
		tx.Rollback()
		return err
	}
	if max > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM kv_lists
			WHERE key=? AND id NOT IN (
				SELECT id FROM kv_lists WHERE key=? ORDER BY id DESC LIMIT ?
			)`, key, key, max); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// LRange returns a window of the list, newest first.
func (s *SQLite) LRange(ctx context.Context, key string, offset, limit int) ([]string, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT value FROM kv_lists
		WHERE key=?
		ORDER BY id DESC
		LIMIT ? OFFSET ?`, key, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Ping checks the database connection.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
