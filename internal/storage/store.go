// Package storage defines the persistent graph store contract. The concrete
// implementation lives in the sqlite subpackage; this package holds the
// interface and the option types shared by callers, following the split the
// teacher repo uses between internal/storage (provider.go, the contract) and
// internal/storage/sqlite (the concrete engine).
package storage

import (
	"context"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

// Store is the single writer-authoritative contract over the persistent
// graph, per spec.md §4.1. Every method is synchronous from the caller's
// point of view; the concrete implementation serializes writes internally.
type Store interface {
	InsertNode(ctx context.Context, n *graphtypes.Node) (graphtypes.UUID, error)
	InsertEdge(ctx context.Context, e *graphtypes.Edge) (graphtypes.UUID, error)
	InsertEpisode(ctx context.Context, ep *graphtypes.Episode) error

	GetNode(ctx context.Context, id graphtypes.UUID) (*graphtypes.Node, error)
	GetEdge(ctx context.Context, id graphtypes.UUID) (*graphtypes.Edge, error)
	GetEpisode(ctx context.Context, id graphtypes.UUID) (*graphtypes.Episode, error)

	SearchNodesByText(ctx context.Context, query string, groupID string, limit int) ([]graphtypes.Node, error)
	SearchEdgesByText(ctx context.Context, query string, groupID string, limit int) ([]graphtypes.Edge, error)
	SearchEpisodesByContent(ctx context.Context, query string, groupID string, limit int) ([]graphtypes.Episode, error)

	GetEdgesBetween(ctx context.Context, src, tgt graphtypes.UUID) ([]graphtypes.Edge, error)
	GetRecentEpisodes(ctx context.Context, groupID string, n int) ([]graphtypes.Episode, error)

	StoreEmbedding(ctx context.Context, id graphtypes.UUID, kind graphtypes.EmbeddingKind, vector []float32) error
	GetEmbedding(ctx context.Context, id graphtypes.UUID, kind graphtypes.EmbeddingKind) (*graphtypes.EmbeddingRecord, error)
	AllEmbeddings(ctx context.Context, kind graphtypes.EmbeddingKind, groupID string) ([]graphtypes.EmbeddingRecord, error)

	DeleteEpisode(ctx context.Context, id graphtypes.UUID) error
	DeleteEdge(ctx context.Context, id graphtypes.UUID) error
	DeleteNode(ctx context.Context, id graphtypes.UUID) error
	ClearAll(ctx context.Context) error

	CountNodes(ctx context.Context) (int64, error)
	CountEdges(ctx context.Context) (int64, error)
	CountEpisodes(ctx context.Context) (int64, error)

	AllNodes(ctx context.Context, groupID string) ([]graphtypes.Node, error)
	AllEdges(ctx context.Context, groupID string) ([]graphtypes.Edge, error)

	Ping(ctx context.Context) error
	Close() error
}
