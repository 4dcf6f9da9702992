package sqlite

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

// wrapDBError classifies a raw database/sql error into the uniform Kind
// taxonomy, the same role the teacher's wrapDBError plays in
// internal/storage/sqlite/errors.go (operation name -> typed, wrapped error).
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return graphtypes.Wrap(graphtypes.KindNotFound, err, op)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return graphtypes.Wrap(graphtypes.KindConflict, err, op)
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return graphtypes.Wrap(graphtypes.KindConflict, err, op)
	case strings.Contains(msg, "database disk image is malformed"),
		strings.Contains(msg, "file is not a database"):
		return graphtypes.Wrap(graphtypes.KindStorageCorruption, err, op)
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "disk I/O error"),
		strings.Contains(msg, "SQLITE_BUSY"):
		return graphtypes.Wrap(graphtypes.KindStorageTransient, err, op)
	default:
		return graphtypes.Wrap(graphtypes.KindInternal, err, op)
	}
}
