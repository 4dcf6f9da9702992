package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

// StoreEmbedding writes the little-endian float32 blob and its dimension for
// {id, kind}, per spec.md §3's Embedding record invariant (blob length = 4 *
// dimension).
func (s *Store) StoreEmbedding(ctx context.Context, id graphtypes.UUID, kind graphtypes.EmbeddingKind, vector []float32) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return withWriteTx(ctx, s.db, func(conn *sql.Conn) error {
		return storeEmbeddingTx(ctx, conn, id, kind, vector)
	})
}

func storeEmbeddingTx(ctx context.Context, conn *sql.Conn, id graphtypes.UUID, kind graphtypes.EmbeddingKind, vector []float32) error {
	blob := encodeVector(vector)
	_, err := conn.ExecContext(ctx, `
		INSERT INTO embeddings (entity_uuid, kind, vector, dimension)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (entity_uuid, kind) DO UPDATE SET vector = excluded.vector, dimension = excluded.dimension`,
		id.String(), string(kind), blob, len(vector))
	if err != nil {
		return wrapDBError("store embedding", err)
	}
	return nil
}

// GetEmbedding returns the stored vector for {id, kind}, or KindNotFound.
func (s *Store) GetEmbedding(ctx context.Context, id graphtypes.UUID, kind graphtypes.EmbeddingKind) (*graphtypes.EmbeddingRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var blob []byte
	var dim int
	err := s.db.QueryRowContext(ctx, `
		SELECT vector, dimension FROM embeddings WHERE entity_uuid = ? AND kind = ?`,
		id.String(), string(kind)).Scan(&blob, &dim)
	if err != nil {
		return nil, wrapDBError("get embedding "+id.String(), err)
	}
	vec, err := decodeVector(blob, dim)
	if err != nil {
		return nil, graphtypes.Wrap(graphtypes.KindStorageCorruption, err, "decode embedding")
	}
	return &graphtypes.EmbeddingRecord{EntityUUID: id, Kind: kind, Vector: vec, Dimension: dim}, nil
}

// AllEmbeddings returns every stored embedding of the given kind, optionally
// scoped to a group by joining against the owning entity's table. Used by
// vector search to build its candidate pool.
func (s *Store) AllEmbeddings(ctx context.Context, kind graphtypes.EmbeddingKind, groupID string) ([]graphtypes.EmbeddingRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query, args := embeddingsQuery(kind, groupID)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("all embeddings", err)
	}
	defer rows.Close()

	var out []graphtypes.EmbeddingRecord
	for rows.Next() {
		var uuidStr string
		var blob []byte
		var dim int
		if err := rows.Scan(&uuidStr, &blob, &dim); err != nil {
			return nil, wrapDBError("scan embedding", err)
		}
		id, err := graphtypes.ParseUUID(uuidStr)
		if err != nil {
			return nil, graphtypes.Wrap(graphtypes.KindStorageCorruption, err, "parse embedding uuid")
		}
		vec, err := decodeVector(blob, dim)
		if err != nil {
			return nil, graphtypes.Wrap(graphtypes.KindStorageCorruption, err, "decode embedding")
		}
		out = append(out, graphtypes.EmbeddingRecord{EntityUUID: id, Kind: kind, Vector: vec, Dimension: dim})
	}
	return out, rows.Err()
}

func embeddingsQuery(kind graphtypes.EmbeddingKind, groupID string) (string, []any) {
	if groupID == "" {
		return `SELECT entity_uuid, vector, dimension FROM embeddings WHERE kind = ?`, []any{string(kind)}
	}
	switch kind {
	case graphtypes.EmbeddingNode:
		return `SELECT e.entity_uuid, e.vector, e.dimension FROM embeddings e
			JOIN nodes n ON n.uuid = e.entity_uuid WHERE e.kind = ? AND n.group_id = ?`, []any{string(kind), groupID}
	case graphtypes.EmbeddingEdge:
		return `SELECT e.entity_uuid, e.vector, e.dimension FROM embeddings e
			JOIN edges g ON g.uuid = e.entity_uuid WHERE e.kind = ? AND g.group_id = ?`, []any{string(kind), groupID}
	default:
		return `SELECT e.entity_uuid, e.vector, e.dimension FROM embeddings e
			JOIN episodes p ON p.uuid = e.entity_uuid WHERE e.kind = ? AND p.group_id = ?`, []any{string(kind), groupID}
	}
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(blob []byte, dim int) ([]float32, error) {
	if len(blob) != 4*dim {
		return nil, graphtypes.Newf(graphtypes.KindStorageCorruption, "embedding blob length %d does not match dimension %d", len(blob), dim)
	}
	out := make([]float32, dim)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out, nil
}
