package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

// InsertEpisode writes the episode row and its junction rows
// (episode_entities) in the same transaction, per spec.md §4.1: "No partial
// writes: an episode insert also writes the junction rows in the same
// transaction."
func (s *Store) InsertEpisode(ctx context.Context, ep *graphtypes.Episode) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if ep.UUID.IsNil() {
		ep.UUID = graphtypes.NewUUID()
	}
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = time.Now().UTC()
	}

	return withWriteTx(ctx, s.db, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO episodes (uuid, name, content, source_kind, source_description, group_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ep.UUID.String(), ep.Name, ep.Content, string(ep.Source), ep.SourceDescription,
			ep.GroupID, formatTime(ep.CreatedAt))
		if err != nil {
			return wrapDBError("insert episode", err)
		}

		for _, id := range ep.EntityRefs {
			if _, err := conn.ExecContext(ctx, `
				INSERT INTO episode_entities (episode_uuid, entity_uuid, kind) VALUES (?, ?, 'node')`,
				ep.UUID.String(), id.String()); err != nil {
				return wrapDBError("insert episode entity ref", err)
			}
		}
		for _, id := range ep.EdgeRefs {
			if _, err := conn.ExecContext(ctx, `
				INSERT INTO episode_entities (episode_uuid, entity_uuid, kind) VALUES (?, ?, 'edge')`,
				ep.UUID.String(), id.String()); err != nil {
				return wrapDBError("insert episode edge ref", err)
			}
		}

		if len(ep.Embedding) > 0 {
			if err := storeEmbeddingTx(ctx, conn, ep.UUID, graphtypes.EmbeddingEpisode, ep.Embedding); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetEpisode returns the episode along with its entity/edge refs, assembled
// from the junction table, or a KindNotFound error if absent.
func (s *Store) GetEpisode(ctx context.Context, id graphtypes.UUID) (*graphtypes.Episode, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT uuid, name, content, source_kind, source_description, group_id, created_at
		FROM episodes WHERE uuid = ?`, id.String())

	ep, err := scanEpisode(row)
	if err != nil {
		return nil, wrapDBError("get episode "+id.String(), err)
	}

	if err := s.loadEpisodeRefs(ctx, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

func (s *Store) loadEpisodeRefs(ctx context.Context, ep *graphtypes.Episode) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_uuid, kind FROM episode_entities WHERE episode_uuid = ?`, ep.UUID.String())
	if err != nil {
		return wrapDBError("load episode refs", err)
	}
	defer rows.Close()
	for rows.Next() {
		var uuidStr, kind string
		if err := rows.Scan(&uuidStr, &kind); err != nil {
			return wrapDBError("scan episode ref", err)
		}
		id, err := graphtypes.ParseUUID(uuidStr)
		if err != nil {
			return graphtypes.Wrap(graphtypes.KindStorageCorruption, err, "parse episode ref uuid")
		}
		if kind == "node" {
			ep.EntityRefs = append(ep.EntityRefs, id)
		} else {
			ep.EdgeRefs = append(ep.EdgeRefs, id)
		}
	}
	return rows.Err()
}

// GetRecentEpisodes returns the n most recently created episodes in the
// given group (or all groups if groupID is empty), newest first.
func (s *Store) GetRecentEpisodes(ctx context.Context, groupID string, n int) ([]graphtypes.Episode, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var rows *sql.Rows
	var err error
	if groupID == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT uuid, name, content, source_kind, source_description, group_id, created_at
			FROM episodes ORDER BY created_at DESC LIMIT ?`, n)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT uuid, name, content, source_kind, source_description, group_id, created_at
			FROM episodes WHERE group_id = ? ORDER BY created_at DESC LIMIT ?`, groupID, n)
	}
	if err != nil {
		return nil, wrapDBError("get recent episodes", err)
	}
	defer rows.Close()

	eps, err := scanEpisodes(rows)
	if err != nil {
		return nil, err
	}
	for i := range eps {
		if err := s.loadEpisodeRefs(ctx, &eps[i]); err != nil {
			return nil, err
		}
	}
	return eps, nil
}

// DeleteEpisode removes the episode and cascades to its junction rows and
// embedding row, per spec.md §8's Cascade property. Fails with KindNotFound
// when the episode does not exist.
func (s *Store) DeleteEpisode(ctx context.Context, id graphtypes.UUID) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return withWriteTx(ctx, s.db, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, `DELETE FROM episodes WHERE uuid = ?`, id.String())
		if err != nil {
			return wrapDBError("delete episode", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return graphtypes.Newf(graphtypes.KindNotFound, "episode %s not found", id)
		}
		// episode_entities cascades via ON DELETE CASCADE; embeddings do not
		// reference episodes with a foreign key (entity_uuid spans three
		// kinds), so the cascade is explicit here.
		if _, err := conn.ExecContext(ctx, `DELETE FROM embeddings WHERE entity_uuid = ? AND kind = 'episode'`, id.String()); err != nil {
			return wrapDBError("cascade delete episode embedding", err)
		}
		return nil
	})
}

func scanEpisode(row *sql.Row) (*graphtypes.Episode, error) {
	var ep graphtypes.Episode
	var uuidStr, source, createdAt string
	if err := row.Scan(&uuidStr, &ep.Name, &ep.Content, &source, &ep.SourceDescription, &ep.GroupID, &createdAt); err != nil {
		return nil, err
	}
	return finishEpisode(&ep, uuidStr, source, createdAt)
}

func scanEpisodes(rows *sql.Rows) ([]graphtypes.Episode, error) {
	var out []graphtypes.Episode
	for rows.Next() {
		var ep graphtypes.Episode
		var uuidStr, source, createdAt string
		if err := rows.Scan(&uuidStr, &ep.Name, &ep.Content, &source, &ep.SourceDescription, &ep.GroupID, &createdAt); err != nil {
			return nil, wrapDBError("scan episode", err)
		}
		epp, err := finishEpisode(&ep, uuidStr, source, createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, *epp)
	}
	return out, rows.Err()
}

func finishEpisode(ep *graphtypes.Episode, uuidStr, source, createdAt string) (*graphtypes.Episode, error) {
	var err error
	if ep.UUID, err = graphtypes.ParseUUID(uuidStr); err != nil {
		return nil, graphtypes.Wrap(graphtypes.KindStorageCorruption, err, "parse episode uuid")
	}
	ep.Source = graphtypes.SourceKind(source)
	if ep.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, graphtypes.Wrap(graphtypes.KindStorageCorruption, err, "parse episode created_at")
	}
	return ep, nil
}
