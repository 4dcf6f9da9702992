package extractor

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	usagePattern      = regexp.MustCompile(`\b(\w+)\s+(?:uses?|with|via|through|using)\s+(\w+)\b`)
	comparisonPattern = regexp.MustCompile(`\b(\w+)\s+(?:vs|versus|compared to|better than|worse than)\s+(\w+)\b`)
	causationPattern  = regexp.MustCompile(`\b(\w+)\s+(?:causes?|leads to|results in|enables?)\s+(\w+)\b`)
	temporalPattern   = regexp.MustCompile(`\b(\w+)\s+(?:before|after|during|while)\s+(\w+)\b`)
	locationPattern   = regexp.MustCompile(`\b(\w+)\s+(?:at|in|on|from)\s+(\w+)\b`)
)

// domainBrowsers and domainTechnologies seed the browser-technology and
// browser-URL cross-product relationships in extractDomainPatterns, per
// spec.md §4.3 ("domain patterns via cross-product of browser-tool x
// technology and browser x URL entities").
var (
	domainBrowsers     = []string{"Chrome", "Firefox", "Safari", "Edge", "Patchright", "Playwright"}
	domainTechnologies = []string{"WebAuthn", "OAuth", "SAML", "JWT", "API", "REST"}
)

type semanticPattern struct {
	re           *regexp.Regexp
	relationType string
	confidence   float64
}

var semanticPatterns = []semanticPattern{
	{usagePattern, "uses", 0.8},
	{comparisonPattern, "compared_to", 0.7},
	{causationPattern, "causes", 0.9},
	{temporalPattern, "temporal_relation", 0.6},
	{locationPattern, "located_at", 0.7},
}

// RelationshipExtractor derives candidate edges from an entity list plus
// the episode content they were extracted from.
type RelationshipExtractor struct {
	cfg      RelationshipConfig
	patterns []compiledRelationshipPattern
}

type compiledRelationshipPattern struct {
	name             string
	re               *regexp.Regexp
	relationshipType string
	confidence       float64
}

// NewRelationshipExtractor compiles cfg.CustomPatterns; an invalid custom
// pattern is skipped.
func NewRelationshipExtractor(cfg RelationshipConfig) *RelationshipExtractor {
	r := &RelationshipExtractor{cfg: cfg}
	for _, cp := range cfg.CustomPatterns {
		re, err := regexp.Compile(cp.Pattern)
		if err != nil {
			continue
		}
		r.patterns = append(r.patterns, compiledRelationshipPattern{
			name: cp.Name, re: re, relationshipType: cp.RelationshipType, confidence: cp.Confidence,
		})
	}
	return r
}

// Extract returns candidate relationships between entities and within
// content: co-occurrence first, then (if enabled) semantic patterns, then
// domain cross-products, then any custom patterns — filtered by
// MinConfidence and truncated to MaxRelationshipsPerText, per spec.md §4.3.
func (r *RelationshipExtractor) Extract(entities []Entity, content, episodeName string) []Relationship {
	var rels []Relationship
	rels = append(rels, r.coOccurrence(entities, content, episodeName)...)
	if r.cfg.EnableSemanticAnalysis {
		rels = append(rels, r.semantic(content, episodeName)...)
	}
	rels = append(rels, r.domainPatterns(content, episodeName)...)
	rels = append(rels, r.custom(content, episodeName)...)

	out := rels[:0]
	for _, rel := range rels {
		if rel.Confidence >= r.cfg.MinConfidence {
			out = append(out, rel)
		}
	}
	if len(out) > r.cfg.MaxRelationshipsPerText {
		out = out[:r.cfg.MaxRelationshipsPerText]
	}
	return out
}

// coOccurrence links every entity pair within CoOccurrenceWindowChars of
// each other in content, with confidence decaying linearly from 1 at
// distance 0 to 0 at the window edge, per spec.md §4.3.
func (r *RelationshipExtractor) coOccurrence(entities []Entity, content, episodeName string) []Relationship {
	window := r.cfg.CoOccurrenceWindowChars
	if window <= 0 {
		window = 100
	}
	var rels []Relationship
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			a, b := entities[i], entities[j]
			dist, ok := entityDistance(content, a.Name, b.Name)
			if !ok || dist > window {
				continue
			}
			confidence := 1.0 - float64(dist)/float64(window)
			rels = append(rels, Relationship{
				SourceEntity: a.Name,
				TargetEntity: b.Name,
				RelationType: "co_occurs_with",
				Summary:      fmt.Sprintf("%s co-occurs with %s in %s", a.Name, b.Name, episodeName),
				Confidence:   confidence,
				Context:      betweenContext(content, a.Name, b.Name),
				Weight:       confidence,
				Metadata:     map[string]any{"distance": dist, "episode": episodeName},
			})
		}
	}
	return rels
}

func (r *RelationshipExtractor) semantic(content, episodeName string) []Relationship {
	var rels []Relationship
	for _, p := range semanticPatterns {
		for _, m := range p.re.FindAllStringSubmatch(content, -1) {
			if len(m) < 3 {
				continue
			}
			source, target := m[1], m[2]
			rels = append(rels, Relationship{
				SourceEntity: source,
				TargetEntity: target,
				RelationType: p.relationType,
				Summary:      fmt.Sprintf("%s %s %s in %s", source, p.relationType, target, episodeName),
				Confidence:   p.confidence,
				Context:      context(content, m[0]),
				Weight:       p.confidence,
			})
		}
	}
	return rels
}

// domainPatterns builds browser-supports-technology and browser-accesses-URL
// relationships by cross-product over fixed whitelists plus URLs literally
// present in content, per spec.md §4.3.
func (r *RelationshipExtractor) domainPatterns(content, episodeName string) []Relationship {
	var present []string
	for _, b := range domainBrowsers {
		if strings.Contains(content, b) {
			present = append(present, b)
		}
	}
	var techPresent []string
	for _, t := range domainTechnologies {
		if strings.Contains(content, t) {
			techPresent = append(techPresent, t)
		}
	}
	var urls []string
	for _, word := range strings.Fields(content) {
		if strings.HasPrefix(word, "http") {
			urls = append(urls, word)
		}
	}

	var rels []Relationship
	for _, b := range present {
		for _, t := range techPresent {
			rels = append(rels, Relationship{
				SourceEntity: b, TargetEntity: t, RelationType: "supports",
				Summary:    fmt.Sprintf("%s supports %s technology in %s", b, t, episodeName),
				Confidence: 0.8, Weight: 0.8,
				Context: fmt.Sprintf("Browser %s and technology %s mentioned together", b, t),
			})
		}
		for _, u := range urls {
			rels = append(rels, Relationship{
				SourceEntity: b, TargetEntity: u, RelationType: "accesses",
				Summary:    fmt.Sprintf("%s accesses %s in %s", b, u, episodeName),
				Confidence: 0.9, Weight: 0.9,
				Context: fmt.Sprintf("Browser %s accessing URL %s", b, u),
			})
		}
	}
	return rels
}

func (r *RelationshipExtractor) custom(content, episodeName string) []Relationship {
	var rels []Relationship
	for _, p := range r.patterns {
		for _, m := range p.re.FindAllStringSubmatch(content, -1) {
			if len(m) < 3 {
				continue
			}
			rels = append(rels, Relationship{
				SourceEntity: m[1], TargetEntity: m[2], RelationType: p.relationshipType,
				Summary:    fmt.Sprintf("%s from %s", p.name, episodeName),
				Confidence: p.confidence, Weight: p.confidence,
				Context: context(content, m[0]),
			})
		}
	}
	return rels
}

func entityDistance(content, a, b string) (int, bool) {
	posA := strings.Index(content, a)
	posB := strings.Index(content, b)
	if posA < 0 || posB < 0 {
		return 0, false
	}
	if posA < posB {
		return posB - posA, true
	}
	return posA - posB, true
}

func betweenContext(content, a, b string) string {
	posA := strings.Index(content, a)
	posB := strings.Index(content, b)
	if posA < 0 || posB < 0 {
		return ""
	}
	start := posA
	if posB < start {
		start = posB
	}
	end := posA + len(a)
	if e := posB + len(b); e > end {
		end = e
	}
	if end > len(content) {
		end = len(content)
	}
	return content[start:end]
}
