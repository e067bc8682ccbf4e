// Package store persists mirrored accounts, balances and transactions together
// with the user's scheduled payments and enrollments. It runs on SQLite or PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	_ "modernc.org/sqlite"             // register sqlite driver
)

type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

var ErrNotFound = errors.New("not found")

// Fixed width so that lexical order equals chronological order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

type Store struct {
	db      *sql.DB
	dialect Dialect
	sealer  *Sealer
	now     func() time.Time
}

type Option func(*Store)

// WithSealer encrypts enrollment access tokens at rest.
func WithSealer(s *Sealer) Option { return func(st *Store) { st.sealer = s } }

func WithClock(now func() time.Time) Option { return func(st *Store) { st.now = now } }

// Open connects to databaseURL and creates any missing tables.
func Open(ctx context.Context, databaseURL string, opts ...Option) (*Store, error) {
	driver, dsn, dialect, err := ParseURL(databaseURL)
	if err != nil {
		return nil, err
	}
	if dialect == SQLite {
		if dir := filepath.Dir(sqlitePath(dsn)); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("creating database dir: %w", err)
			}
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", dialect, err)
	}
	if dialect == SQLite {
		// One writer at a time; callers never nest queries while holding a transaction.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to %s database: %w", dialect, err)
	}

	s := New(db, dialect, opts...)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{db: db, dialect: dialect, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// ParseURL maps a DATABASE_URL to a database/sql driver and DSN.
//
//	sqlite:///relative.db, sqlite:////absolute.db, ./plain.db -> sqlite
//	postgres://..., postgresql://...                         -> pgx
func ParseURL(raw string) (driver, dsn string, dialect Dialect, err error) {
	switch {
	case raw == "":
		return "", "", 0, errors.New("database url must be set")
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return "pgx", raw, Postgres, nil
	case strings.HasPrefix(raw, "sqlite://"):
		path := strings.TrimPrefix(strings.TrimPrefix(raw, "sqlite://"), "/")
		if path == "" {
			return "", "", 0, fmt.Errorf("database url %q has no path", raw)
		}
		return "sqlite", sqliteDSN(path), SQLite, nil
	case strings.Contains(raw, "://"):
		return "", "", 0, fmt.Errorf("unsupported database url %q", raw)
	default:
		return "sqlite", sqliteDSN(raw), SQLite, nil
	}
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
}

func sqlitePath(dsn string) string {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == ":memory:" {
		return ""
	}
	return path
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func rebind(d Dialect, query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) q(query string) string { return rebind(s.dialect, query) }

// inTx runs fn inside a transaction that is rolled back unless fn succeeds.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) timestamp() string { return formatTime(s.now()) }

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Parse(time.RFC3339Nano, v)
	}
	return t, nil
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatDate(t time.Time) string { return t.Format(time.DateOnly) }

func parseDate(v string) (time.Time, error) { return time.Parse(time.DateOnly, v) }

func nullString(v string) sql.NullString { return sql.NullString{String: v, Valid: v != ""} }

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
