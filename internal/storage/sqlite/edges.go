package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

// InsertEdge upserts e by {source, target, relation_type, group_id}, the
// edge deduplication key from spec.md §3. Self-loops (source == target) are
// permitted. Referential integrity to existing nodes is enforced by the
// foreign key declared in schema.go; a violation surfaces as KindConflict.
func (s *Store) InsertEdge(ctx context.Context, e *graphtypes.Edge) (graphtypes.UUID, error) {
	if err := s.checkOpen(); err != nil {
		return graphtypes.Nil, err
	}

	existing, err := s.findEdgeByIdentity(ctx, e.Source, e.Target, e.RelationType, e.GroupID)
	if err != nil {
		return graphtypes.Nil, err
	}
	if existing != graphtypes.Nil {
		return existing, nil
	}

	if e.UUID.IsNil() {
		e.UUID = graphtypes.NewUUID()
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.Before(e.CreatedAt) {
		e.UpdatedAt = e.CreatedAt
	}

	metaJSON, err := json.Marshal(nonNilMeta(e.Metadata))
	if err != nil {
		return graphtypes.Nil, graphtypes.Wrap(graphtypes.KindInvalidParameters, err, "marshal edge metadata")
	}

	err = withWriteTx(ctx, s.db, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO edges (uuid, source, target, relation_type, summary, weight, group_id, metadata, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.UUID.String(), e.Source.String(), e.Target.String(), e.RelationType,
			e.Summary, e.Weight, e.GroupID, string(metaJSON),
			formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
		return err
	})
	if err != nil {
		return graphtypes.Nil, wrapDBError("insert edge", err)
	}
	return e.UUID, nil
}

func (s *Store) findEdgeByIdentity(ctx context.Context, src, tgt graphtypes.UUID, relType, groupID string) (graphtypes.UUID, error) {
	var uuidStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT uuid FROM edges WHERE group_id = ? AND source = ? AND target = ? AND relation_type = ?`,
		groupID, src.String(), tgt.String(), relType).Scan(&uuidStr)
	if errors.Is(err, sql.ErrNoRows) {
		return graphtypes.Nil, nil
	}
	if err != nil {
		return graphtypes.Nil, wrapDBError("find edge by identity", err)
	}
	return graphtypes.ParseUUID(uuidStr)
}

// GetEdge returns the edge record, or a KindNotFound error if absent.
func (s *Store) GetEdge(ctx context.Context, id graphtypes.UUID) (*graphtypes.Edge, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT uuid, source, target, relation_type, summary, weight, group_id, metadata, created_at, updated_at
		FROM edges WHERE uuid = ?`, id.String())
	e, err := scanEdge(row)
	if err != nil {
		return nil, wrapDBError("get edge "+id.String(), err)
	}
	return e, nil
}

// GetEdgesBetween returns all edges from src to tgt, weight-descending.
func (s *Store) GetEdgesBetween(ctx context.Context, src, tgt graphtypes.UUID) ([]graphtypes.Edge, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT uuid, source, target, relation_type, summary, weight, group_id, metadata, created_at, updated_at
		FROM edges WHERE source = ? AND target = ? ORDER BY weight DESC`, src.String(), tgt.String())
	if err != nil {
		return nil, wrapDBError("get edges between", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// AllEdges returns every edge in the given group (or every edge if groupID
// is empty). Used by offline graph analytics (spec.md §4.5 centrality and
// clustering), mirroring AllNodes.
func (s *Store) AllEdges(ctx context.Context, groupID string) ([]graphtypes.Edge, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var rows *sql.Rows
	var err error
	if groupID == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT uuid, source, target, relation_type, summary, weight, group_id, metadata, created_at, updated_at
			FROM edges ORDER BY created_at`)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT uuid, source, target, relation_type, summary, weight, group_id, metadata, created_at, updated_at
			FROM edges WHERE group_id = ? ORDER BY created_at`, groupID)
	}
	if err != nil {
		return nil, wrapDBError("all edges", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// DeleteEdge removes an edge and cascades to its embedding row.
// Fails with KindNotFound when the edge does not exist (spec.md §4.1).
func (s *Store) DeleteEdge(ctx context.Context, id graphtypes.UUID) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return withWriteTx(ctx, s.db, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, `DELETE FROM edges WHERE uuid = ?`, id.String())
		if err != nil {
			return wrapDBError("delete edge", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return graphtypes.Newf(graphtypes.KindNotFound, "edge %s not found", id)
		}
		if _, err := conn.ExecContext(ctx, `DELETE FROM embeddings WHERE entity_uuid = ? AND kind = 'edge'`, id.String()); err != nil {
			return wrapDBError("cascade delete edge embedding", err)
		}
		return nil
	})
}

func scanEdge(row *sql.Row) (*graphtypes.Edge, error) {
	var e graphtypes.Edge
	var uuidStr, src, tgt, createdAt, updatedAt, metaJSON string
	if err := row.Scan(&uuidStr, &src, &tgt, &e.RelationType, &e.Summary, &e.Weight, &e.GroupID, &metaJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	return finishEdge(&e, uuidStr, src, tgt, createdAt, updatedAt, metaJSON)
}

func scanEdges(rows *sql.Rows) ([]graphtypes.Edge, error) {
	var out []graphtypes.Edge
	for rows.Next() {
		var e graphtypes.Edge
		var uuidStr, src, tgt, createdAt, updatedAt, metaJSON string
		if err := rows.Scan(&uuidStr, &src, &tgt, &e.RelationType, &e.Summary, &e.Weight, &e.GroupID, &metaJSON, &createdAt, &updatedAt); err != nil {
			return nil, wrapDBError("scan edge", err)
		}
		ep, err := finishEdge(&e, uuidStr, src, tgt, createdAt, updatedAt, metaJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, *ep)
	}
	return out, rows.Err()
}

func finishEdge(e *graphtypes.Edge, uuidStr, src, tgt, createdAt, updatedAt, metaJSON string) (*graphtypes.Edge, error) {
	var err error
	if e.UUID, err = graphtypes.ParseUUID(uuidStr); err != nil {
		return nil, graphtypes.Wrap(graphtypes.KindStorageCorruption, err, "parse edge uuid")
	}
	if e.Source, err = graphtypes.ParseUUID(src); err != nil {
		return nil, graphtypes.Wrap(graphtypes.KindStorageCorruption, err, "parse edge source")
	}
	if e.Target, err = graphtypes.ParseUUID(tgt); err != nil {
		return nil, graphtypes.Wrap(graphtypes.KindStorageCorruption, err, "parse edge target")
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, graphtypes.Wrap(graphtypes.KindStorageCorruption, err, "parse edge created_at")
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, graphtypes.Wrap(graphtypes.KindStorageCorruption, err, "parse edge updated_at")
	}
	if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
		return nil, graphtypes.Wrap(graphtypes.KindStorageCorruption, err, "parse edge metadata")
	}
	return e, nil
}
