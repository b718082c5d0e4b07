package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"verdandi/internal/config"
)

// Store manages experiment persistence backed by SQLite or PostgreSQL.
type Store struct {
	db      *sql.DB
	dialect dialect
	path    string
	now     func() time.Time
}

// Option customizes a Store at open time.
type Option func(*Store)

// WithClock overrides the time source used for timestamps and TTL checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open initializes or connects to the configured database.
func Open(cfg *config.Config, opts ...Option) (*Store, error) {
	var (
		d   dialect
		dsn string
	)
	switch cfg.Store.Driver {
	case config.StorePostgres:
		d = postgresDialect
		dsn = cfg.Store.DSN
	default:
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, fmt.Errorf("ensure directories: %w", err)
		}
		d = sqliteDialect
		dsn = sqliteDSN(cfg.DatabasePath(), cfg.Store.BusyTimeoutMS)
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", d.name, err)
	}
	if cfg.Store.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Store.MaxOpenConns)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", d.name, err)
	}

	store := &Store{db: db, dialect: d, path: cfg.DatabasePath(), now: time.Now}
	if d.name == config.StorePostgres {
		store.path = ""
	}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.initSchema(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// sqliteDSN applies pragmas through the connection string so every pooled
// connection gets them, not just the first.
func sqliteDSN(path string, busyTimeoutMS int) string {
	values := url.Values{}
	values.Add("_pragma", "journal_mode(WAL)")
	values.Add("_pragma", "foreign_keys(1)")
	values.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	values.Set("_txlock", "immediate")
	return "file:" + path + "?" + values.Encode()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Driver returns the dialect name (sqlite or postgres).
func (s *Store) Driver() string {
	return s.dialect.name
}

// Path returns the sqlite database path, empty for postgres.
func (s *Store) Path() string {
	return s.path
}

// Now returns the store clock's current time in UTC.
func (s *Store) Now() time.Time {
	return s.now().UTC()
}
