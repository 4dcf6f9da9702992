// Package migrations holds numbered, idempotent schema steps applied after
// the base schema, one file per migration — the same convention the teacher
// repo uses under internal/storage/sqlite/migrations (e.g. 026_additional_indexes.go):
// a single Migrate<Name>(db *sql.DB) error function per file, safe to re-run.
package migrations

import "database/sql"

// Migration pairs a stable name (used for logging, never for ordering) with
// the function that applies it.
type Migration struct {
	Name string
	Run  func(db *sql.DB) error
}

// All returns the ordered list of migrations to apply after the base schema.
// New migrations are appended here, never inserted or reordered, so a
// database that has already run an earlier subset never re-applies it out of
// order.
func All() []Migration {
	return []Migration{
		{Name: "001_page_cache_metadata", Run: MigratePageCacheMetadata},
	}
}
