// Package extractor turns raw episode content into candidate nodes and
// edges without touching storage, per spec.md §4.3 ("the extractor does not
// call Storage; it returns plain records"). The ingest dispatcher in
// toolhandlers maps its output onto persistent rows.
package extractor

import "github.com/kgmemory/kgmemory/internal/graphtypes"

// EntityConfig tunes entity extraction. Every field is independently
// configurable so the ingest dispatcher can tighten or loosen recall per
// group, per spec.md §4.3 ("Extractor pluggability").
type EntityConfig struct {
	MinEntityLength      int
	MaxEntityLength      int
	MinConfidence        float64
	MaxEntitiesPerText   int
	ExtractFromJSON      bool
	ExtractTechnicalTerm bool
	ExtractProperNoun    bool
	ExtractQuotedText    bool
	CustomPatterns       []EntityPattern
}

// DefaultEntityConfig matches the reference implementation's tuning.
func DefaultEntityConfig() EntityConfig {
	return EntityConfig{
		MinEntityLength:      2,
		MaxEntityLength:      50,
		MinConfidence:        0.3,
		MaxEntitiesPerText:   100,
		ExtractFromJSON:      true,
		ExtractTechnicalTerm: true,
		ExtractProperNoun:    true,
		ExtractQuotedText:    true,
	}
}

// EntityPattern is a constructor-injected custom entity rule: a regex, the
// entity type it produces, and its baseline confidence.
type EntityPattern struct {
	Name       string
	Pattern    string
	EntityType string
	Confidence float64
}

// RelationshipConfig tunes relationship extraction.
type RelationshipConfig struct {
	MinConfidence           float64
	MaxRelationshipsPerText int
	EnableSemanticAnalysis  bool
	CoOccurrenceWindowChars int
	CustomPatterns          []RelationshipPattern
}

// DefaultRelationshipConfig matches the reference implementation's tuning.
func DefaultRelationshipConfig() RelationshipConfig {
	return RelationshipConfig{
		MinConfidence:           0.6,
		MaxRelationshipsPerText: 50,
		EnableSemanticAnalysis:  true,
		CoOccurrenceWindowChars: 100,
	}
}

// RelationshipPattern is a constructor-injected custom relationship rule.
type RelationshipPattern struct {
	Name             string
	Pattern          string
	RelationshipType string
	Confidence       float64
}

// Entity is a candidate node discovered in an episode's content, not yet
// assigned a UUID or deduplicated against existing storage.
type Entity struct {
	Name       string
	Type       string
	Summary    string
	Confidence float64
	Context    string
	Metadata   map[string]any
}

// Relationship is a candidate edge between two entity names, keyed by name
// rather than UUID since it is produced before dedup/insert resolves names
// to persistent identifiers.
type Relationship struct {
	SourceEntity string
	TargetEntity string
	RelationType string
	Summary      string
	Confidence   float64
	Context      string
	Weight       float64
	Metadata     map[string]any
}

// entityKey identifies an entity for dedup by (name, type), per spec.md
// §4.3.
type entityKey struct {
	name       string
	entityType string
}

func keyOf(e Entity) entityKey { return entityKey{name: e.Name, entityType: e.Type} }

// isJSONSource reports whether k selects the JSON extraction branch.
func isJSONSource(k graphtypes.SourceKind) bool { return k == graphtypes.SourceJSON }
