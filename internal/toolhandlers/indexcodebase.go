package toolhandlers

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

// indexCodebaseParams is the index_codebase tool's argument shape, per
// spec.md §4.9 item 5.
type indexCodebaseParams struct {
	Path     string `json:"path"`
	GroupID  string `json:"group_id"`
	MaxFiles int    `json:"max_files"`
}

const defaultMaxIndexFiles = 2000

// languageByExtension classifies a file's language for the episode's
// source_description, per spec.md §4.9 ("per-file language classification").
var languageByExtension = map[string]string{
	".go":     "go",
	".py":     "python",
	".js":     "javascript",
	".ts":     "typescript",
	".tsx":    "typescript",
	".jsx":    "javascript",
	".java":   "java",
	".rb":     "ruby",
	".rs":     "rust",
	".c":      "c",
	".h":      "c",
	".cc":     "cpp",
	".cpp":    "cpp",
	".hpp":    "cpp",
	".cs":     "csharp",
	".md":     "markdown",
	".json":   "json",
	".yaml":   "yaml",
	".yml":    "yaml",
	".toml":   "toml",
	".sh":     "shell",
	".sql":    "sql",
	".proto":  "protobuf",
}

// skippedDirs are never descended into, regardless of the index root.
var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"__pycache__":  true,
}

func (h *Handlers) handleIndexCodebase(ctx context.Context, raw json.RawMessage) (any, error) {
	var p indexCodebaseParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, graphtypes.Wrap(graphtypes.KindInvalidParameters, err, "malformed index_codebase arguments")
	}
	if err := requireNonEmpty("path", p.Path); err != nil {
		return nil, err
	}
	if p.MaxFiles <= 0 {
		p.MaxFiles = defaultMaxIndexFiles
	}

	root := h.deps.IndexCodebaseRoot
	if root == "" {
		root = "."
	}
	resolved, err := sanitizeRelativePath(root, p.Path)
	if err != nil {
		return nil, err
	}

	langs, err := loadLanguageRules(h.deps.LanguageRulesPath)
	if err != nil {
		return nil, graphtypes.Wrap(graphtypes.KindInvalidParameters, err, "load language rules").WithField("language_rules_path")
	}

	files, truncated, err := walkSourceFiles(resolved, p.MaxFiles, langs)
	if err != nil {
		return nil, graphtypes.Wrap(graphtypes.KindInternal, err, "walk index root")
	}

	indexed := make([]map[string]any, 0, len(files))
	var failed int
	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			failed++
			continue
		}
		rel, _ := filepath.Rel(resolved, f)
		lang := langs[strings.ToLower(filepath.Ext(f))]

		params := addMemoryParams{
			Name:              rel,
			EpisodeBody:       string(content),
			Source:            string(graphtypes.SourceText),
			SourceDescription: "codebase:" + lang,
			GroupID:           p.GroupID,
		}
		result, err := h.ingest(ctx, params)
		if err != nil {
			failed++
			continue
		}
		indexed = append(indexed, map[string]any{
			"path":     rel,
			"language": lang,
			"episode":  result.EpisodeUUID,
		})
	}

	return map[string]any{
		"operation":     "index_codebase",
		"files_indexed": len(indexed),
		"files_failed":  failed,
		"truncated":     truncated,
		"files":         indexed,
	}, nil
}

// walkSourceFiles collects up to maxFiles recognized source files under
// root, skipping vendor/build directories. truncated reports whether the
// walk stopped early because the limit was hit.
func walkSourceFiles(root string, maxFiles int, langs map[string]string) ([]string, bool, error) {
	var files []string
	truncated := false
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if langs[strings.ToLower(filepath.Ext(path))] == "" {
			return nil
		}
		if len(files) >= maxFiles {
			truncated = true
			return filepath.SkipAll
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return files, truncated, nil
}

// languageRulesFile is the on-disk shape of an optional extension->language
// override file, following the teacher's ReposConfig pattern
// (internal/config/repos.go: a small YAML struct read with gopkg.in/yaml.v3
// to extend a built-in default without recompiling).
type languageRulesFile struct {
	Extensions map[string]string `yaml:"extensions"`
}

// loadLanguageRules reads path (if it exists) and merges its extension ->
// language entries over the built-in languageByExtension table, returning
// the merged map. A missing file is not an error, mirroring
// config.GetReposFromYAML's "absent file -> zero value" tolerance.
func loadLanguageRules(path string) (map[string]string, error) {
	merged := make(map[string]string, len(languageByExtension))
	for ext, lang := range languageByExtension {
		merged[ext] = lang
	}
	if path == "" {
		return merged, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return merged, nil
		}
		return nil, err
	}
	var rules languageRulesFile
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, err
	}
	for ext, lang := range rules.Extensions {
		merged[strings.ToLower(ext)] = lang
	}
	return merged, nil
}
