package extractor

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

var (
	urlPattern           = regexp.MustCompile(`https?://[^\s]+`)
	emailPattern         = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	browserToolPattern   = regexp.MustCompile(`(?i)\b(chrome|firefox|safari|edge|chromium|webkit|playwright|puppeteer|selenium|camoufox|patchright|rebrowser)\b`)
	technologyPattern    = regexp.MustCompile(`(?i)\b(webauthn|oauth|saml|jwt|api|rest|graphql|json|xml|html|css|javascript|python|rust|docker|kubernetes|aws|gcp|azure)\b`)
	quotedTextPattern    = regexp.MustCompile(`"([^"]+)"|'([^']+)'|` + "`([^`]+)`")
	technicalTermPattern = regexp.MustCompile(`\b[A-Z][a-zA-Z]*(?:[A-Z][a-zA-Z]*)+\b`)
	properNounPattern    = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)
)

var properNounStopWords = map[string]bool{
	"The": true, "This": true, "That": true, "And": true, "Or": true, "But": true,
	"For": true, "With": true, "From": true, "To": true, "In": true, "On": true,
	"At": true, "By": true, "A": true, "An": true,
}

var technicalTermStopWords = map[string]bool{
	"The": true, "This": true, "That": true, "And": true, "Or": true, "But": true,
	"For": true, "With": true, "From": true, "To": true, "In": true, "On": true, "At": true, "By": true,
}

var meaningfulKeyStopList = map[string]bool{
	"id": true, "uuid": true, "type": true, "name": true, "value": true, "data": true, "info": true,
}

// EntityExtractor recognizes candidate entities in episode content. It holds
// no mutable state beyond its configuration and custom patterns, so one
// instance is safe to share across concurrent ingest calls.
type EntityExtractor struct {
	cfg      EntityConfig
	patterns []compiledEntityPattern
}

type compiledEntityPattern struct {
	name       string
	re         *regexp.Regexp
	entityType string
	confidence float64
}

// NewEntityExtractor compiles cfg.CustomPatterns alongside the built-in
// cascade. An invalid custom pattern is skipped rather than failing
// construction, matching the reference extractor's tolerance for bad
// user-supplied regexes.
func NewEntityExtractor(cfg EntityConfig) *EntityExtractor {
	e := &EntityExtractor{cfg: cfg}
	for _, cp := range cfg.CustomPatterns {
		re, err := regexp.Compile(cp.Pattern)
		if err != nil {
			continue
		}
		e.patterns = append(e.patterns, compiledEntityPattern{
			name: cp.Name, re: re, entityType: cp.EntityType, confidence: cp.Confidence,
		})
	}
	return e
}

// Extract returns deduplicated, filtered entities for content, branching on
// source's shape per spec.md §4.3.
func (e *EntityExtractor) Extract(content string, source graphtypes.SourceKind, episodeName string) []Entity {
	var entities []Entity
	if isJSONSource(source) {
		entities = e.extractFromJSON(content, episodeName)
	} else {
		entities = e.extractFromText(content, episodeName)
	}
	entities = e.dedup(entities)
	entities = e.filter(entities)
	if len(entities) > e.cfg.MaxEntitiesPerText {
		entities = entities[:e.cfg.MaxEntitiesPerText]
	}
	return entities
}

func (e *EntityExtractor) dedup(entities []Entity) []Entity {
	seen := make(map[entityKey]bool, len(entities))
	out := entities[:0]
	for _, ent := range entities {
		k := keyOf(ent)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, ent)
	}
	return out
}

func (e *EntityExtractor) filter(entities []Entity) []Entity {
	out := entities[:0]
	for _, ent := range entities {
		if ent.Confidence <= e.cfg.MinConfidence {
			continue
		}
		n := len(ent.Name)
		if n < e.cfg.MinEntityLength || n > e.cfg.MaxEntityLength {
			continue
		}
		out = append(out, ent)
	}
	return out
}

func (e *EntityExtractor) extractFromJSON(content, episodeName string) []Entity {
	if e.cfg.ExtractFromJSON {
		var parsed any
		if err := json.Unmarshal([]byte(content), &parsed); err == nil {
			// walkJSON runs every string leaf through the text cascade, so
			// the raw document is not scanned again (a raw scan would turn
			// every quoted key, stop-listed ones included, into quoted_text).
			return e.walkJSON(parsed, episodeName, "")
		}
	}
	// Content that is not walked as JSON is scanned as plain text.
	return e.extractFromText(content, episodeName)
}

func (e *EntityExtractor) walkJSON(value any, episodeName, path string) []Entity {
	var entities []Entity
	switch v := value.(type) {
	case map[string]any:
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			if isMeaningfulKey(key) {
				entities = append(entities, Entity{
					Name:       key,
					Type:       "json_key",
					Summary:    fmt.Sprintf("JSON key from %s", episodeName),
					Confidence: 0.6,
					Context:    newPath,
					Metadata: map[string]any{
						"json_path":  newPath,
						"value_type": jsonValueTypeName(val),
					},
				})
			}
			entities = append(entities, e.walkJSON(val, episodeName, newPath)...)
		}
	case []any:
		for i, val := range v {
			entities = append(entities, e.walkJSON(val, episodeName, fmt.Sprintf("%s[%d]", path, i))...)
		}
	case string:
		if len(v) >= e.cfg.MinEntityLength && len(v) <= e.cfg.MaxEntityLength && isMeaningfulStringValue(v) {
			entities = append(entities, Entity{
				Name:       v,
				Type:       classifyStringEntity(v),
				Summary:    fmt.Sprintf("Value from JSON path: %s", path),
				Confidence: 0.7,
				Context:    path,
				Metadata:   map[string]any{"json_path": path, "source": "json_value"},
			})
		}
		entities = append(entities, e.extractFromText(v, episodeName)...)
	}
	return entities
}

func isMeaningfulKey(key string) bool {
	if len(key) < 2 {
		return false
	}
	if isAllDigits(key) {
		return false
	}
	return !meaningfulKeyStopList[strings.ToLower(key)]
}

func isMeaningfulStringValue(v string) bool {
	if isAllDigits(v) || strings.TrimSpace(v) == "" {
		return false
	}
	return len(strings.Fields(v)) <= 5
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func classifyStringEntity(v string) string {
	switch {
	case urlPattern.MatchString(v):
		return "url"
	case emailPattern.MatchString(v):
		return "email"
	case browserToolPattern.MatchString(v):
		return "browser_tool"
	case technologyPattern.MatchString(v):
		return "technology"
	case hasUpper(v):
		return "identifier"
	default:
		return "string_value"
	}
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

func jsonValueTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "unknown"
	}
}

// extractFromText applies the fixed regex cascade in priority order: URL,
// email, browser/automation tool whitelist, technology whitelist, quoted
// text, CamelCase technical term, proper noun, then any constructor-injected
// custom patterns — per spec.md §4.3.
func (e *EntityExtractor) extractFromText(content, episodeName string) []Entity {
	var entities []Entity

	for _, m := range urlPattern.FindAllString(content, -1) {
		entities = append(entities, Entity{
			Name: m, Type: "url", Summary: fmt.Sprintf("URL mentioned in %s", episodeName),
			Confidence: 0.9, Context: context(content, m),
			Metadata: map[string]any{"domain": urlDomain(m)},
		})
	}
	for _, m := range emailPattern.FindAllString(content, -1) {
		entities = append(entities, Entity{
			Name: m, Type: "email", Summary: fmt.Sprintf("Email address mentioned in %s", episodeName),
			Confidence: 0.9, Context: context(content, m),
		})
	}
	for _, m := range browserToolPattern.FindAllString(content, -1) {
		entities = append(entities, Entity{
			Name: m, Type: "browser_tool", Summary: fmt.Sprintf("Browser/automation tool mentioned in %s", episodeName),
			Confidence: 0.8, Context: context(content, m),
		})
	}
	for _, m := range technologyPattern.FindAllString(content, -1) {
		entities = append(entities, Entity{
			Name: m, Type: "technology", Summary: fmt.Sprintf("Technology mentioned in %s", episodeName),
			Confidence: 0.7, Context: context(content, m),
		})
	}

	if e.cfg.ExtractQuotedText {
		for _, m := range quotedTextPattern.FindAllStringSubmatch(content, -1) {
			inner := firstNonEmpty(m[1], m[2], m[3])
			if n := len(inner); n >= e.cfg.MinEntityLength && n <= e.cfg.MaxEntityLength {
				entities = append(entities, Entity{
					Name: inner, Type: "quoted_text", Summary: fmt.Sprintf("Quoted text from %s", episodeName),
					Confidence: 0.6, Context: context(content, inner),
				})
			}
		}
	}

	if e.cfg.ExtractTechnicalTerm {
		for _, m := range technicalTermPattern.FindAllString(content, -1) {
			if len(m) >= e.cfg.MinEntityLength && isTechnicalTerm(m) {
				entities = append(entities, Entity{
					Name: m, Type: "technical_term", Summary: fmt.Sprintf("Technical term from %s", episodeName),
					Confidence: 0.5, Context: context(content, m),
				})
			}
		}
	}

	if e.cfg.ExtractProperNoun {
		for _, m := range properNounPattern.FindAllString(content, -1) {
			if len(m) >= e.cfg.MinEntityLength && isMeaningfulProperNoun(m) {
				entities = append(entities, Entity{
					Name: m, Type: "proper_noun", Summary: fmt.Sprintf("Proper noun from %s", episodeName),
					Confidence: 0.4, Context: context(content, m),
				})
			}
		}
	}

	for _, p := range e.patterns {
		for _, m := range p.re.FindAllString(content, -1) {
			entities = append(entities, Entity{
				Name: m, Type: p.entityType, Summary: fmt.Sprintf("%s from %s", p.name, episodeName),
				Confidence: p.confidence, Context: context(content, m),
			})
		}
	}

	return entities
}

func isTechnicalTerm(term string) bool {
	return len(term) >= 3 && hasUpper(term) && !technicalTermStopWords[term]
}

func isMeaningfulProperNoun(noun string) bool {
	return len(noun) >= 3 && !properNounStopWords[noun]
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

// context returns up to 50 characters on either side of match's first
// occurrence in content, for the Entity's Context field.
func context(content, match string) string {
	idx := strings.Index(content, match)
	if idx < 0 {
		return ""
	}
	const radius = 50
	start := idx - radius
	if start < 0 {
		start = 0
	}
	end := idx + len(match) + radius
	if end > len(content) {
		end = len(content)
	}
	return content[start:end]
}

func urlDomain(u string) string {
	idx := strings.Index(u, "://")
	if idx < 0 {
		return u
	}
	rest := u[idx+3:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		return rest[:slash]
	}
	return rest
}
