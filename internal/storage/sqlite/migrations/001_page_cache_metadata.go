package migrations

import "database/sql"

// MigratePageCacheMetadata records a created_by_version marker in
// schema_meta the first time this database is opened; INSERT OR IGNORE
// leaves an existing marker untouched. It records no engine-tuning values.
func MigratePageCacheMetadata(db *sql.DB) error {
	_, err := db.Exec(`
		INSERT OR IGNORE INTO schema_meta (key, value)
		VALUES ('created_by_version', '1')
	`)
	return err
}
