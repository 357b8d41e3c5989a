package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers "sqlite3" (cgo)
	_ "modernc.org/sqlite"          // registers "sqlite" (pure Go)
)

// SQLite driver names.
const (
	DriverModernc = "sqlite"
	DriverMattn   = "sqlite3"
)

// SQLiteConfig contains configuration for the SQLite store.
type SQLiteConfig struct {
	// Driver is the database/sql driver name, DriverModernc or DriverMattn.
	// Default: DriverModernc
	Driver string

	// Path is the database file path. Parent directories are created.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 4
	MaxOpenConns int

	// WALMode enables write-ahead logging.
	WALMode bool

	// BusyTimeout is how long a writer waits on a locked database.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// SQLiteStore implements Store on SQLite.
type SQLiteStore struct {
	db     *sql.DB
	config SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStore opens the database, applies the schema and verifies its
// version.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverModernc
	}
	if cfg.Driver != DriverModernc && cfg.Driver != DriverMattn {
		return nil, storageError(cfg.Driver, "open", fmt.Errorf("unsupported driver %q", cfg.Driver))
	}
	if cfg.Path == "" {
		return nil, storageError(cfg.Driver, "open", errors.New("database path is required"))
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storageError(cfg.Driver, "mkdir", err)
		}
	}

	db, err := sql.Open(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, storageError(cfg.Driver, "open", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)

	s := &SQLiteStore{
		db:     db,
		config: cfg,
		logger: slog.Default().With("component", "events.sqlite"),
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("SQLite event store initialized",
		"driver", cfg.Driver,
		"path", cfg.Path,
		"wal_mode", cfg.WALMode,
		"max_open_conns", cfg.MaxOpenConns,
	)

	return s, nil
}

// initialize sets pragmas and creates the schema.
func (s *SQLiteStore) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return storageError(s.config.Driver, "enable_wal", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return storageError(s.config.Driver, "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(schema); err != nil {
		return storageError(s.config.Driver, "create_schema", err)
	}

	if _, err := s.db.Exec(insertSchemaVersion, SchemaVersion); err != nil {
		return storageError(s.config.Driver, "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(getSchemaVersion).Scan(&version); err != nil {
		return storageError(s.config.Driver, "get_schema_version", err)
	}
	if version != SchemaVersion {
		return storageError(s.config.Driver, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// Driver returns the database/sql driver in use.
func (s *SQLiteStore) Driver() string { return s.config.Driver }

// Append inserts an event.
func (s *SQLiteStore) Append(ctx context.Context, e *Event) error {
	var attrs any
	if len(e.Attributes) > 0 {
		b, err := json.Marshal(e.Attributes)
		if err != nil {
			return storageError(s.config.Driver, "append", err)
		}
		attrs = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, time_ns, kind, method, interceptor, invocation_id, message, attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Time.UnixNano(), string(e.Kind), e.Method, e.Interceptor, e.InvocationID, e.Message, attrs,
	)
	if err != nil {
		return storageError(s.config.Driver, "append", err)
	}
	return nil
}

// Query returns matching events, newest first.
func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]*Event, error) {
	where, args := buildWhereClause(f)

	q := "SELECT id, time_ns, kind, method, interceptor, invocation_id, message, attributes FROM events"
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY time_ns DESC, seq DESC"

	switch {
	case f.Limit > 0:
		q += " LIMIT ?"
		args = append(args, f.Limit)
	case f.Offset > 0:
		q += " LIMIT -1"
	}
	if f.Offset > 0 {
		q += " OFFSET ?"
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageError(s.config.Driver, "query", err)
	}
	defer rows.Close()

	out := []*Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, storageError(s.config.Driver, "scan", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(s.config.Driver, "query", err)
	}
	return out, nil
}

// Count returns the number of matching events.
func (s *SQLiteStore) Count(ctx context.Context, f Filter) (int64, error) {
	where, args := buildWhereClause(f)

	q := "SELECT COUNT(*) FROM events"
	if where != "" {
		q += " WHERE " + where
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, storageError(s.config.Driver, "count", err)
	}
	return n, nil
}

// DeleteBefore removes events older than cutoff.
func (s *SQLiteStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE time_ns < ?", cutoff.UnixNano())
	if err != nil {
		return 0, storageError(s.config.Driver, "delete_before", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageError(s.config.Driver, "delete_before", err)
	}
	return n, nil
}

// DeleteOldest removes the n oldest events.
func (s *SQLiteStore) DeleteOldest(ctx context.Context, n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM events WHERE seq IN (
			SELECT seq FROM events ORDER BY time_ns ASC, seq ASC LIMIT ?
		)`, n)
	if err != nil {
		return 0, storageError(s.config.Driver, "delete_oldest", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, storageError(s.config.Driver, "delete_oldest", err)
	}
	return deleted, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return storageError(s.config.Driver, "close", err)
	}
	s.logger.Info("SQLite event store closed")
	return nil
}

// buildWhereClause builds a WHERE clause (without the keyword) and its
// arguments from f.
func buildWhereClause(f Filter) (string, []any) {
	var conditions []string
	var args []any

	if f.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Method != "" {
		conditions = append(conditions, "method = ?")
		args = append(args, f.Method)
	}
	if f.Interceptor != "" {
		conditions = append(conditions, "interceptor = ?")
		args = append(args, f.Interceptor)
	}
	if !f.Since.IsZero() {
		conditions = append(conditions, "time_ns >= ?")
		args = append(args, f.Since.UnixNano())
	}
	if !f.Until.IsZero() {
		conditions = append(conditions, "time_ns <= ?")
		args = append(args, f.Until.UnixNano())
	}

	return strings.Join(conditions, " AND "), args
}

// scanEvent scans one row selected by Query.
func scanEvent(rows *sql.Rows) (*Event, error) {
	var (
		e      Event
		kind   string
		timeNS int64
		attrs  sql.NullString
	)
	if err := rows.Scan(&e.ID, &timeNS, &kind, &e.Method, &e.Interceptor, &e.InvocationID, &e.Message, &attrs); err != nil {
		return nil, err
	}
	e.Kind = Kind(kind)
	e.Time = time.Unix(0, timeNS).UTC()
	if attrs.Valid && attrs.String != "" {
		if err := json.Unmarshal([]byte(attrs.String), &e.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes of event %s: %w", e.ID, err)
		}
	}
	return &e, nil
}
