package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

// InsertNode upserts n by {name, type, group_id} (the deduplication key from
// spec.md §3): if a node with the same identity already exists within the
// group, its UUID is returned unchanged and no new row is written.
func (s *Store) InsertNode(ctx context.Context, n *graphtypes.Node) (graphtypes.UUID, error) {
	if err := s.checkOpen(); err != nil {
		return graphtypes.Nil, err
	}

	existing, err := s.findNodeByIdentity(ctx, n.Name, n.Type, n.GroupID)
	if err != nil {
		return graphtypes.Nil, err
	}
	if existing != graphtypes.Nil {
		return existing, nil
	}

	if n.UUID.IsNil() {
		n.UUID = graphtypes.NewUUID()
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.UpdatedAt.Before(n.CreatedAt) {
		n.UpdatedAt = n.CreatedAt
	}

	metaJSON, err := json.Marshal(nonNilMeta(n.Metadata))
	if err != nil {
		return graphtypes.Nil, graphtypes.Wrap(graphtypes.KindInvalidParameters, err, "marshal node metadata")
	}

	err = withWriteTx(ctx, s.db, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO nodes (uuid, name, node_type, summary, group_id, metadata, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			n.UUID.String(), n.Name, n.Type, n.Summary, n.GroupID, string(metaJSON),
			formatTime(n.CreatedAt), formatTime(n.UpdatedAt))
		return err
	})
	if err != nil {
		return graphtypes.Nil, wrapDBError("insert node", err)
	}
	return n.UUID, nil
}

func (s *Store) findNodeByIdentity(ctx context.Context, name, typ, groupID string) (graphtypes.UUID, error) {
	var uuidStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT uuid FROM nodes WHERE group_id = ? AND name = ? AND node_type = ?`,
		groupID, name, typ).Scan(&uuidStr)
	if errors.Is(err, sql.ErrNoRows) {
		return graphtypes.Nil, nil
	}
	if err != nil {
		return graphtypes.Nil, wrapDBError("find node by identity", err)
	}
	return graphtypes.ParseUUID(uuidStr)
}

// GetNode returns the node record, or a KindNotFound error if absent.
func (s *Store) GetNode(ctx context.Context, id graphtypes.UUID) (*graphtypes.Node, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT uuid, name, node_type, summary, group_id, metadata, created_at, updated_at
		FROM nodes WHERE uuid = ?`, id.String())
	n, err := scanNode(row)
	if err != nil {
		return nil, wrapDBError("get node "+id.String(), err)
	}
	return n, nil
}

// DeleteNode removes a node. Referential integrity (spec.md §3, Edge
// invariants) means callers must remove dependent edges first; SQLite
// enforces this via the foreign key declared in the edges table.
func (s *Store) DeleteNode(ctx context.Context, id graphtypes.UUID) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return withWriteTx(ctx, s.db, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, `DELETE FROM nodes WHERE uuid = ?`, id.String())
		if err != nil {
			return wrapDBError("delete node", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return graphtypes.Newf(graphtypes.KindNotFound, "node %s not found", id)
		}
		return nil
	})
}

// AllNodes returns every node in the given group (or every node if groupID
// is empty), ordered by name. Used by offline clustering/outlier detection
// (spec.md §4.5) and by index rebuilds.
func (s *Store) AllNodes(ctx context.Context, groupID string) ([]graphtypes.Node, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var rows *sql.Rows
	var err error
	if groupID == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT uuid, name, node_type, summary, group_id, metadata, created_at, updated_at
			FROM nodes ORDER BY name`)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT uuid, name, node_type, summary, group_id, metadata, created_at, updated_at
			FROM nodes WHERE group_id = ? ORDER BY name`, groupID)
	}
	if err != nil {
		return nil, wrapDBError("all nodes", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

func scanNode(row *sql.Row) (*graphtypes.Node, error) {
	var n graphtypes.Node
	var uuidStr, createdAt, updatedAt, metaJSON string
	if err := row.Scan(&uuidStr, &n.Name, &n.Type, &n.Summary, &n.GroupID, &metaJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	return finishNode(&n, uuidStr, createdAt, updatedAt, metaJSON)
}

func scanNodes(rows *sql.Rows) ([]graphtypes.Node, error) {
	var out []graphtypes.Node
	for rows.Next() {
		var n graphtypes.Node
		var uuidStr, createdAt, updatedAt, metaJSON string
		if err := rows.Scan(&uuidStr, &n.Name, &n.Type, &n.Summary, &n.GroupID, &metaJSON, &createdAt, &updatedAt); err != nil {
			return nil, wrapDBError("scan node", err)
		}
		np, err := finishNode(&n, uuidStr, createdAt, updatedAt, metaJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, *np)
	}
	return out, rows.Err()
}

func finishNode(n *graphtypes.Node, uuidStr, createdAt, updatedAt, metaJSON string) (*graphtypes.Node, error) {
	id, err := graphtypes.ParseUUID(uuidStr)
	if err != nil {
		return nil, graphtypes.Wrap(graphtypes.KindStorageCorruption, err, "parse node uuid")
	}
	n.UUID = id
	n.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, graphtypes.Wrap(graphtypes.KindStorageCorruption, err, "parse node created_at")
	}
	n.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, graphtypes.Wrap(graphtypes.KindStorageCorruption, err, "parse node updated_at")
	}
	if err := json.Unmarshal([]byte(metaJSON), &n.Metadata); err != nil {
		return nil, graphtypes.Wrap(graphtypes.KindStorageCorruption, err, "parse node metadata")
	}
	return n, nil
}

func nonNilMeta(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
