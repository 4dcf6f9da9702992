package sqlite

import "database/sql"

// schemaStatements creates the primary tables, their indices, the FTS5
// shadow tables, and the sync triggers, in this order: each primary table
// followed by its own indices, then FTS, then triggers. Every statement is
// idempotent (CREATE ... IF NOT EXISTS) so it can run against an existing
// database on every open, matching the teacher's migration convention of
// re-runnable DDL (internal/storage/sqlite/migrations/026_additional_indexes.go).
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS nodes (
		uuid        TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		node_type   TEXT NOT NULL,
		summary     TEXT NOT NULL DEFAULT '',
		group_id    TEXT NOT NULL DEFAULT '',
		metadata    TEXT NOT NULL DEFAULT '{}',
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_group_id ON nodes(group_id)`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_node_type ON nodes(node_type)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_nodes_dedup ON nodes(group_id, name, node_type)`,

	`CREATE TABLE IF NOT EXISTS edges (
		uuid          TEXT PRIMARY KEY,
		source        TEXT NOT NULL REFERENCES nodes(uuid),
		target        TEXT NOT NULL REFERENCES nodes(uuid),
		relation_type TEXT NOT NULL,
		summary       TEXT NOT NULL DEFAULT '',
		weight        REAL NOT NULL DEFAULT 0,
		group_id      TEXT NOT NULL DEFAULT '',
		metadata      TEXT NOT NULL DEFAULT '{}',
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_group_id ON edges(group_id)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_edges_dedup ON edges(group_id, source, target, relation_type)`,

	`CREATE TABLE IF NOT EXISTS episodes (
		uuid               TEXT PRIMARY KEY,
		name               TEXT NOT NULL,
		content            TEXT NOT NULL,
		source_kind        TEXT NOT NULL,
		source_description TEXT NOT NULL DEFAULT '',
		group_id           TEXT NOT NULL DEFAULT '',
		created_at         TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_episodes_group_id ON episodes(group_id)`,
	`CREATE INDEX IF NOT EXISTS idx_episodes_created_at ON episodes(created_at)`,

	`CREATE TABLE IF NOT EXISTS episode_entities (
		episode_uuid TEXT NOT NULL REFERENCES episodes(uuid) ON DELETE CASCADE,
		entity_uuid  TEXT NOT NULL,
		kind         TEXT NOT NULL CHECK (kind IN ('node', 'edge'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_episode_entities_episode ON episode_entities(episode_uuid)`,

	`CREATE TABLE IF NOT EXISTS embeddings (
		entity_uuid TEXT NOT NULL,
		kind        TEXT NOT NULL,
		vector      BLOB NOT NULL,
		dimension   INTEGER NOT NULL,
		PRIMARY KEY (entity_uuid, kind)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_embeddings_kind ON embeddings(kind)`,

	// FTS5 shadow tables, standalone (no content= option binding them to a
	// source table) so the triggers below are the sole sync mechanism,
	// keeping the sync story explicit per spec §4.1 rather than relying on
	// SQLite's built-in external-content shadowing.
	`CREATE VIRTUAL TABLE IF NOT EXISTS nodes_fts USING fts5(uuid UNINDEXED, name, summary)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS episodes_fts USING fts5(uuid UNINDEXED, name, content)`,

	`CREATE TRIGGER IF NOT EXISTS trg_nodes_ai AFTER INSERT ON nodes BEGIN
		INSERT INTO nodes_fts(uuid, name, summary) VALUES (new.uuid, new.name, new.summary);
	END`,
	`CREATE TRIGGER IF NOT EXISTS trg_nodes_au AFTER UPDATE ON nodes BEGIN
		DELETE FROM nodes_fts WHERE uuid = old.uuid;
		INSERT INTO nodes_fts(uuid, name, summary) VALUES (new.uuid, new.name, new.summary);
	END`,
	`CREATE TRIGGER IF NOT EXISTS trg_nodes_ad AFTER DELETE ON nodes BEGIN
		DELETE FROM nodes_fts WHERE uuid = old.uuid;
	END`,

	`CREATE TRIGGER IF NOT EXISTS trg_episodes_ai AFTER INSERT ON episodes BEGIN
		INSERT INTO episodes_fts(uuid, name, content) VALUES (new.uuid, new.name, new.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS trg_episodes_au AFTER UPDATE ON episodes BEGIN
		DELETE FROM episodes_fts WHERE uuid = old.uuid;
		INSERT INTO episodes_fts(uuid, name, content) VALUES (new.uuid, new.name, new.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS trg_episodes_ad AFTER DELETE ON episodes BEGIN
		DELETE FROM episodes_fts WHERE uuid = old.uuid;
	END`,

	`CREATE TABLE IF NOT EXISTS schema_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
}

// applySchema runs every schema statement inside a single transaction so a
// partially-applied schema never exists on disk.
func applySchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schemaStatements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}
