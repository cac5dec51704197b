package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added partial index for player-facing (non-hidden) event reads
const currentSchemaVersion = 1

// Defaults for Options.
const (
	DefaultMaxOpenConns        = 4
	DefaultReserveRetryBudget  = 8
	DefaultReserveRetryBackoff = 2 * time.Millisecond
)

// Options configures Open.
type Options struct {
	// MaxOpenConns bounds the connection pool. In-memory databases always
	// use a single connection.
	MaxOpenConns int
	// ReserveRetryBudget is the number of compare-and-swap attempts
	// ReserveNextTurnNumber makes before returning ErrTurnContention.
	ReserveRetryBudget int
	// ReserveRetryBackoff is the initial wait between attempts.
	ReserveRetryBackoff time.Duration
}

// DefaultOptions returns the options Open uses when none are given.
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:        DefaultMaxOpenConns,
		ReserveRetryBudget:  DefaultReserveRetryBudget,
		ReserveRetryBackoff: DefaultReserveRetryBackoff,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = d.MaxOpenConns
	}
	if o.ReserveRetryBudget <= 0 {
		o.ReserveRetryBudget = d.ReserveRetryBudget
	}
	if o.ReserveRetryBackoff <= 0 {
		o.ReserveRetryBackoff = d.ReserveRetryBackoff
	}
	return o
}

// Store provides durable storage for saga campaigns.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db *sql.DB
	// rdb serves read transactions. Its connections begin deferred and are
	// query-only, so a consistent read never takes the write lock. For
	// in-memory databases it is db itself.
	rdb  *sql.DB
	opts Options
}

// Open creates or opens a SQLite database at the given path.
// Applies required settings and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//   - Immediate transactions, so the commit transaction owns the write lock
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Options) (*Store, error) {
	o := DefaultOptions()
	if len(opts) > 0 {
		o = opts[0].withDefaults()
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Each connection to :memory: is a separate database.
	if isMemory(path) {
		o.MaxOpenConns = 1
	}
	db.SetMaxOpenConns(o.MaxOpenConns)
	db.SetMaxIdleConns(o.MaxOpenConns)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	rdb := db
	if !isMemory(path) {
		rdb, err = sql.Open("sqlite3", readDSN(path))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to open read pool: %w", err)
		}
		if err := rdb.Ping(); err != nil {
			rdb.Close()
			db.Close()
			return nil, fmt.Errorf("failed to connect read pool: %w", err)
		}
		rdb.SetMaxOpenConns(o.MaxOpenConns)
		rdb.SetMaxIdleConns(o.MaxOpenConns)
	}

	return &Store{db: db, rdb: rdb, opts: o}, nil
}

// dsn appends connection settings. go-sqlite3 applies them to every new
// connection in the pool, which plain PRAGMA statements would not.
func dsn(path string) string {
	return withParams(path, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=1&_txlock=immediate")
}

// readDSN configures the read pool. The journal mode is persistent in the
// file, so it is not set again here.
func readDSN(path string) string {
	return withParams(path, "_busy_timeout=5000&_foreign_keys=1&_txlock=deferred&_query_only=1")
}

func withParams(path, params string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + params
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// Close closes the database connection.
// Should be called when the store is no longer needed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	var rerr error
	if s.rdb != nil && s.rdb != s.db {
		rerr = s.rdb.Close()
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	return rerr
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Options returns the effective options.
func (s *Store) Options() Options {
	return s.opts
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds a partial index serving GetEvents(includeHidden=false).
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_events_visible
		ON events(campaign_id, turn_number, id) WHERE is_hidden = 0
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(ctx context.Context, name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRowContext(ctx, query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
