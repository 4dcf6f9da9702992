// Package sqlite is the embedded SQL storage engine behind the graph store:
// four primary tables, FTS5 shadow indices kept current by triggers, and a
// single-writer-lock transaction discipline, all driven through
// github.com/ncruces/go-sqlite3 — the pure-Go, CGO-free SQLite driver the
// teacher repo (steveyegge-beads) uses throughout
// (internal/storage/ephemeral/store.go, cmd/bd/doctor.go).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/kgmemory/kgmemory/internal/storage/sqlite/migrations"
)

// Store is the concrete storage.Store implementation over an embedded
// SQLite database file. Reads run concurrently through the standard
// database/sql pool; writes are serialized by beginImmediateWithRetry against
// a dedicated connection. closedMu additionally guards against operations
// racing a Close(), mirroring the teacher's reconnectMu read/write split in
// internal/storage/sqlite/queries.go (GetIssue takes reconnectMu.RLock()).
type Store struct {
	db     *sql.DB
	tuning EngineTuning

	closedMu sync.RWMutex
	closed   bool
}

// Options configures Open.
type Options struct {
	Tuning EngineTuning
}

// Open opens (creating if necessary) the SQLite database at path, applies
// engine-tuning pragmas, the base schema, and any pending migrations.
// path may be ":memory:" for ephemeral/test stores.
func Open(path string, opts Options) (*Store, error) {
	if opts.Tuning == (EngineTuning{}) {
		opts.Tuning = DefaultEngineTuning()
	}

	dsn := buildDSN(path, opts.Tuning)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// A single shared in-memory database otherwise loses its contents when
	// the pool opens more than one connection to it.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: run migrations: %w", err)
	}

	return &Store{db: db, tuning: opts.Tuning}, nil
}

func (s *Store) checkOpen() error {
	s.closedMu.RLock()
	defer s.closedMu.RUnlock()
	if s.closed {
		return errClosed
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.closedMu.Lock()
	defer s.closedMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive, for the health probe
// background task (spec.md §5).
func (s *Store) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.db.PingContext(ctx); err != nil {
		return wrapDBError("ping", err)
	}
	return nil
}

func (s *Store) CountNodes(ctx context.Context) (int64, error) {
	return s.countTable(ctx, "nodes")
}

func (s *Store) CountEdges(ctx context.Context) (int64, error) {
	return s.countTable(ctx, "edges")
}

func (s *Store) CountEpisodes(ctx context.Context) (int64, error) {
	return s.countTable(ctx, "episodes")
}

func (s *Store) countTable(ctx context.Context, table string) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	var n int64
	// table is one of a fixed, hardcoded set of identifiers above; never
	// derived from caller input, so this string-built query carries no
	// injection risk.
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
	if err != nil {
		return 0, wrapDBError("count "+table, err)
	}
	return n, nil
}

// ClearAll destructively wipes every graph table and both FTS tables;
// schema_meta is kept. Admin-gated by the caller
// (internal/resilience auth gate); Storage itself performs no authorization.
func (s *Store) ClearAll(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return withWriteTx(ctx, s.db, func(conn *sql.Conn) error {
		tables := []string{"embeddings", "episode_entities", "episodes", "edges", "nodes", "nodes_fts", "episodes_fts"}
		for _, t := range tables {
			if _, err := conn.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return wrapDBError("clear "+t, err)
			}
		}
		return nil
	})
}

func runMigrations(db *sql.DB) error {
	for _, m := range migrations.All() {
		if err := m.Run(db); err != nil {
			return fmt.Errorf("migration %s: %w", m.Name, err)
		}
	}
	return nil
}
