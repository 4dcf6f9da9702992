package sqlite

import (
	"context"
	"strings"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

// SearchNodesByText runs an FTS5 MATCH query against nodes_fts(name, summary)
// and returns matching nodes rank-ordered, per spec.md §4.1. A term ending in
// * (textsearch's wildcard mode appends one) stays an FTS5 prefix query, so
// short queries still match longer words.
func (s *Store) SearchNodesByText(ctx context.Context, query string, groupID string, limit int) ([]graphtypes.Node, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	matchQuery := ftsMatchQuery(query)

	args := []any{matchQuery}
	sqlQuery := `
		SELECT n.uuid, n.name, n.node_type, n.summary, n.group_id, n.metadata, n.created_at, n.updated_at
		FROM nodes_fts f
		JOIN nodes n ON n.uuid = f.uuid
		WHERE nodes_fts MATCH ?`
	if groupID != "" {
		sqlQuery += ` AND n.group_id = ?`
		args = append(args, groupID)
	}
	sqlQuery += ` ORDER BY rank LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, wrapDBError("search nodes by text", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// SearchEdgesByText performs a substring match over relation_type and
// summary, per spec.md §4.1 ("substring over relevant text fields" — edges
// have no FTS shadow table since relation_type/summary are typically short,
// structured strings rather than prose).
func (s *Store) SearchEdgesByText(ctx context.Context, query string, groupID string, limit int) ([]graphtypes.Edge, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	like := "%" + query + "%"
	args := []any{like, like}
	sqlQuery := `
		SELECT uuid, source, target, relation_type, summary, weight, group_id, metadata, created_at, updated_at
		FROM edges WHERE (relation_type LIKE ? OR summary LIKE ?)`
	if groupID != "" {
		sqlQuery += ` AND group_id = ?`
		args = append(args, groupID)
	}
	sqlQuery += ` ORDER BY weight DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, wrapDBError("search edges by text", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// SearchEpisodesByContent runs an FTS5 MATCH query against
// episodes_fts(name, content).
func (s *Store) SearchEpisodesByContent(ctx context.Context, query string, groupID string, limit int) ([]graphtypes.Episode, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	matchQuery := ftsMatchQuery(query)

	args := []any{matchQuery}
	sqlQuery := `
		SELECT p.uuid, p.name, p.content, p.source_kind, p.source_description, p.group_id, p.created_at
		FROM episodes_fts f
		JOIN episodes p ON p.uuid = f.uuid
		WHERE episodes_fts MATCH ?`
	if groupID != "" {
		sqlQuery += ` AND p.group_id = ?`
		args = append(args, groupID)
	}
	sqlQuery += ` ORDER BY rank LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, wrapDBError("search episodes by content", err)
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

// ftsMatchQuery quotes each term so punctuation in user queries (URLs,
// emails) doesn't break FTS5's query-string grammar, keeping a trailing * of
// a term outside the quotes as a prefix marker, then joins terms with an
// implicit AND — FTS5's default — unless the caller already used FTS5
// operators (AND, OR, NOT or NEAR(...)), in which case the raw query passes
// through (textsearch's boolean and phrase paths build their own FTS5
// syntax).
func ftsMatchQuery(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return `""`
	}
	fields := strings.Fields(query)
	for _, f := range fields {
		if f == "AND" || f == "OR" || f == "NOT" || strings.HasPrefix(f, "NEAR(") {
			return query
		}
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		prefix := ""
		if len(f) > 1 && strings.HasSuffix(f, "*") {
			f, prefix = strings.TrimSuffix(f, "*"), "*"
		}
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"` + prefix
	}
	return strings.Join(quoted, " ")
}
