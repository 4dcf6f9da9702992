package extractor

import "github.com/kgmemory/kgmemory/internal/graphtypes"

// Extractor wraps the entity and relationship extractors behind the single
// call toolhandlers' ingest dispatcher needs, per spec.md §4.3's contract
// ("returns plain records; the ingest dispatcher maps them to persistent
// rows").
type Extractor struct {
	entities      *EntityExtractor
	relationships *RelationshipExtractor
}

// New builds an Extractor from the given entity and relationship
// configurations.
func New(entityCfg EntityConfig, relCfg RelationshipConfig) *Extractor {
	return &Extractor{
		entities:      NewEntityExtractor(entityCfg),
		relationships: NewRelationshipExtractor(relCfg),
	}
}

// Result bundles the entities and relationships extracted from one episode.
type Result struct {
	Entities      []Entity
	Relationships []Relationship
}

// Extract runs entity extraction over content, then relationship extraction
// over the resulting entity list and the same content.
func (x *Extractor) Extract(content string, source graphtypes.SourceKind, episodeName string) Result {
	entities := x.entities.Extract(content, source, episodeName)
	rels := x.relationships.Extract(entities, content, episodeName)
	return Result{Entities: entities, Relationships: rels}
}
