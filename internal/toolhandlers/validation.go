// Package toolhandlers implements the five tools the Tool Dispatcher (C9)
// exposes over JSON-RPC: add_memory, search_memory, analyze_patterns,
// manage_graph, and index_codebase, per spec.md §4.9. It owns parameter
// validation, dedup-on-ingest, and response-verbosity formatting; routing
// and wire framing live in internal/rpcserver.
package toolhandlers

import (
	"path/filepath"
	"strings"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

// Verbosity selects how much detail a response carries, per spec.md §4.9.
type Verbosity string

const (
	VerbositySummary Verbosity = "summary"
	VerbosityCompact Verbosity = "compact"
	VerbosityFull    Verbosity = "full"
)

func parseVerbosity(s string) Verbosity {
	switch Verbosity(strings.ToLower(s)) {
	case VerbositySummary, VerbosityCompact, VerbosityFull:
		return Verbosity(strings.ToLower(s))
	default:
		return VerbosityCompact
	}
}

// maxQueryLength and maxNameLength bound user-supplied strings against
// accidental multi-megabyte payloads, per spec.md §4.9 ("length bounds").
const (
	maxQueryLength   = 2000
	maxNameLength    = 500
	maxContentLength = 1 << 20 // 1 MiB
	defaultLimit     = 10
	maxLimit         = 500
)

func requireNonEmpty(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return graphtypes.New(graphtypes.KindInvalidParameters, "must not be empty").WithField(field)
	}
	return nil
}

func requireMaxLength(field, value string, max int) error {
	if len(value) > max {
		return graphtypes.Newf(graphtypes.KindInvalidParameters, "exceeds maximum length of %d", max).WithField(field)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func validEnum(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return graphtypes.Newf(graphtypes.KindInvalidParameters, "must be one of %v", allowed).WithField(field)
}

// sanitizeRelativePath rejects path traversal and home-directory escapes
// and resolves root/rel to a path guaranteed to stay under root, per
// SPEC_FULL.md §9 ("reject .. and ~ segments and require the resolved path
// to stay under the configured root"), grounded on original_source/src/security.
func sanitizeRelativePath(root, rel string) (string, error) {
	if strings.Contains(rel, "~") {
		return "", graphtypes.New(graphtypes.KindInvalidParameters, "path must not contain '~'").WithField("path")
	}
	cleaned := filepath.Clean(rel)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || filepath.IsAbs(cleaned) {
		return "", graphtypes.New(graphtypes.KindInvalidParameters, "path must not escape the index root").WithField("path")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", graphtypes.Wrap(graphtypes.KindInvalidParameters, err, "resolve index root").WithField("path")
	}
	resolved := filepath.Join(absRoot, cleaned)
	if resolved != absRoot && !strings.HasPrefix(resolved, absRoot+string(filepath.Separator)) {
		return "", graphtypes.New(graphtypes.KindInvalidParameters, "path must not escape the index root").WithField("path")
	}
	return resolved, nil
}
