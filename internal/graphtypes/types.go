// Package graphtypes defines the persistent and transient record types shared
// across the storage, extraction, and search layers: nodes, edges, episodes,
// embedding records, and the polymorphic search result container.
package graphtypes

import "time"

// SourceKind identifies the shape of an episode's raw content.
type SourceKind string

const (
	SourceText    SourceKind = "text"
	SourceJSON    SourceKind = "json"
	SourceMessage SourceKind = "message"
)

// EmbeddingKind identifies which kind of entity an embedding record belongs to.
type EmbeddingKind string

const (
	EmbeddingNode    EmbeddingKind = "node"
	EmbeddingEdge    EmbeddingKind = "edge"
	EmbeddingEpisode EmbeddingKind = "episode"
)

// Node is a graph entity: a person, concept, tool, URL, or any other thing
// the extractor recognized in an episode's content.
type Node struct {
	UUID      UUID
	Name      string
	Type      string
	Summary   string
	GroupID   string
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Edge is a directed, weighted relationship between two nodes.
type Edge struct {
	UUID         UUID
	Source       UUID
	Target       UUID
	RelationType string
	Summary      string
	Weight       float64
	GroupID      string
	Metadata     map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Episode is a single ingested observation: raw content plus the entity and
// edge UUIDs that were extracted from it.
type Episode struct {
	UUID              UUID
	Name              string
	Content           string
	Source            SourceKind
	SourceDescription string
	GroupID           string
	Embedding         []float32
	EntityRefs        []UUID
	EdgeRefs          []UUID
	CreatedAt         time.Time
}

// EmbeddingRecord is a stored vector keyed by the entity it describes.
type EmbeddingRecord struct {
	EntityUUID UUID
	Kind       EmbeddingKind
	Vector     []float32
	Dimension  int
}

// ScoredUUID pairs an entity identifier with a retrieval score.
type ScoredUUID struct {
	UUID  UUID
	Score float64
}

// SearchResult is the transient, polymorphic retrieval record described in
// spec.md Design Notes: three parallel ranked lists sharing one score map,
// rather than a class hierarchy per record kind.
type SearchResult struct {
	Nodes    []UUID
	Edges    []UUID
	Episodes []UUID
	Scores   map[UUID]float64
}

// NewSearchResult returns an empty, ready-to-populate SearchResult.
func NewSearchResult() *SearchResult {
	return &SearchResult{Scores: make(map[UUID]float64)}
}

// AddNode appends a node to the result with its score.
func (r *SearchResult) AddNode(id UUID, score float64) {
	r.Nodes = append(r.Nodes, id)
	r.Scores[id] = score
}

// AddEdge appends an edge to the result with its score.
func (r *SearchResult) AddEdge(id UUID, score float64) {
	r.Edges = append(r.Edges, id)
	r.Scores[id] = score
}

// AddEpisode appends an episode to the result with its score.
func (r *SearchResult) AddEpisode(id UUID, score float64) {
	r.Episodes = append(r.Episodes, id)
	r.Scores[id] = score
}
