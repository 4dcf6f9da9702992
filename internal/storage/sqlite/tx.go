package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// beginImmediateWithRetry starts an IMMEDIATE transaction on conn, retrying
// with bounded exponential backoff when SQLite reports SQLITE_BUSY. This is
// the teacher's internal/storage/sqlite/queries.go pattern
// (beginImmediateWithRetry): database/sql's BeginTx cannot express
// transaction mode, and modernc/ncruces drivers default to DEFERRED, so the
// mode is set with raw SQL on a dedicated connection instead.
func beginImmediateWithRetry(ctx context.Context, conn *sql.Conn) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 2 * time.Second

	return backoff.Retry(func() error {
		_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err != nil && isBusy(err) {
			return err // retryable
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

func isBusy(err error) bool {
	return strings.Contains(err.Error(), "SQLITE_BUSY") || strings.Contains(err.Error(), "database is locked")
}

// withWriteTx runs fn inside a single BEGIN IMMEDIATE ... COMMIT transaction
// on a dedicated connection, rolling back on any error or panic. Every
// Store write path (InsertNode, InsertEdge, InsertEpisode, StoreEmbedding,
// DeleteEpisode, DeleteEdge, ClearAll) funnels through this helper so the
// single-writer-lock semantics of spec.md §4.1 hold uniformly.
func withWriteTx(ctx context.Context, db *sql.DB, fn func(conn *sql.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	if err := beginImmediateWithRetry(ctx, conn); err != nil {
		return err
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(conn); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return err
	}
	committed = true
	return nil
}

var errClosed = errors.New("sqlite: store is closed")
