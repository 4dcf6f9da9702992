// Package appconfig loads the core's TOML configuration file and applies
// the environment-variable overlay named in spec.md §6 (MCP_TRANSPORT,
// MCP_PORT), following the teacher's LoadLocalConfigWithEnv pattern
// (internal/config/local_config.go: read the file, then let env vars win)
// adapted from YAML to github.com/BurntSushi/toml, the teacher's own TOML
// library (internal/formula/parser.go, cmd/bd/formula.go).
package appconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Transport selects how the RPC server listens, per spec.md §6
// (MCP_TRANSPORT).
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportSSE   Transport = "sse"
	TransportHTTP  Transport = "http"
)

// StorageConfig configures C1 (internal/storage/sqlite).
type StorageConfig struct {
	DataDir         string `toml:"data_dir"`
	DBFilename      string `toml:"db_filename"`
	PageCacheKiB    int    `toml:"page_cache_kib"`
	MmapSizeMiB     int    `toml:"mmap_size_mib"`
	EncryptedAtRest bool   `toml:"encrypted_at_rest"` // carried per spec.md §9 Open Question; never read elsewhere
	KeyFilePath     string `toml:"key_file_path"`     // carried per spec.md §9 Open Question; never read elsewhere
}

// EmbeddingConfig configures C2 (internal/embedding).
type EmbeddingConfig struct {
	Dimension        int      `toml:"dimension"`
	CacheCapacity    int      `toml:"cache_capacity"`
	BatchSize        int      `toml:"batch_size"`
	MaxConcurrency   int      `toml:"max_concurrency"`
	BatchTimeoutSecs int      `toml:"batch_timeout_secs"`
	WarmupQueries    []string `toml:"warmup_queries"`
}

// ExtractorConfig configures C3 (internal/extractor).
type ExtractorConfig struct {
	MinEntityLength        int     `toml:"min_entity_length"`
	MaxEntityLength         int     `toml:"max_entity_length"`
	MinEntityConfidence    float64 `toml:"min_entity_confidence"`
	MaxEntitiesPerText     int     `toml:"max_entities_per_text"`
	MinRelationConfidence  float64 `toml:"min_relation_confidence"`
	MaxRelationshipsPerText int    `toml:"max_relationships_per_text"`
	CoOccurrenceWindowChars int    `toml:"co_occurrence_window_chars"`
}

// TextSearchConfig configures C4.
type TextSearchConfig struct {
	NameWeight        float64 `toml:"name_weight"`
	TypeWeight        float64 `toml:"type_weight"`
	SummaryWeight     float64 `toml:"summary_weight"`
	MinScoreThreshold float64 `toml:"min_score_threshold"`
	CaseInsensitive   bool    `toml:"case_insensitive"`
	WildcardMode      bool    `toml:"wildcard_mode"`
}

// VectorSearchConfig configures C5.
type VectorSearchConfig struct {
	Metric              string  `toml:"metric"` // cosine | euclidean | dot_product | manhattan
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	Approximate         bool    `toml:"approximate"`
}

// HybridSearchConfig configures C6.
type HybridSearchConfig struct {
	Algorithm  string  `toml:"algorithm"`
	TextWeight float64 `toml:"text_weight"`
}

// CacheTierConfig mirrors memoryopt.CacheConfig for TOML decoding.
type CacheTierConfig struct {
	Capacity int `toml:"capacity"`
	TTLSecs  int `toml:"ttl_secs"`
}

// MemoryOptimizerConfig configures C7.
type MemoryOptimizerConfig struct {
	NodeByUUID         CacheTierConfig `toml:"node_by_uuid"`
	NodeListByQuery    CacheTierConfig `toml:"node_list_by_query"`
	EpisodeByUUID      CacheTierConfig `toml:"episode_by_uuid"`
	EmbeddingByText    CacheTierConfig `toml:"embedding_by_text"`
	QueryResult        CacheTierConfig `toml:"query_result"`
	GCIntervalSecs     int             `toml:"gc_interval_secs"`
	GCThreshold        float64         `toml:"gc_threshold"`
	MaxCacheSize       int             `toml:"max_cache_size"`
}

// BreakerConfig configures one named circuit breaker under C8.
type BreakerConfig struct {
	FailureThreshold    int `toml:"failure_threshold"`
	SuccessThreshold    int `toml:"success_threshold"`
	RecoveryTimeoutSecs int `toml:"recovery_timeout_secs"`
	CallTimeoutSecs     int `toml:"call_timeout_secs"`
}

// AuthConfig configures the auth gate under C8.
type AuthConfig struct {
	Enabled                    bool   `toml:"enabled"`
	APIKey                     string `toml:"api_key"`
	AdminOperationsRequireAuth bool   `toml:"admin_operations_require_auth"`
}

// RateLimitConfig configures the rate limiter under C8.
type RateLimitConfig struct {
	RequestsPerMinute int `toml:"requests_per_minute"`
	BurstPerTenSec    int `toml:"burst_per_ten_sec"`
	IdleTTLSecs       int `toml:"idle_ttl_secs"`
}

// ResilienceConfig bundles C8's breaker/auth/rate-limit tunables.
type ResilienceConfig struct {
	Breaker   BreakerConfig   `toml:"breaker"`
	Auth      AuthConfig      `toml:"auth"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

// ServerConfig configures the transport (C9), overridable by
// MCP_TRANSPORT/MCP_PORT per spec.md §6.
type ServerConfig struct {
	Transport           Transport `toml:"transport"`
	Port                int       `toml:"port"`
	GlobalDeadlineSecs  int       `toml:"global_deadline_secs"`
	IndexCodebaseRoot    string   `toml:"index_codebase_root"`
	LanguageRulesPath    string   `toml:"language_rules_path"`
}

// Config is the root of the TOML configuration file, one table per
// component named in spec.md §2.
type Config struct {
	Storage   StorageConfig         `toml:"storage"`
	Embedding EmbeddingConfig       `toml:"embedding"`
	Extractor ExtractorConfig       `toml:"extractor"`
	Text      TextSearchConfig      `toml:"text_search"`
	Vector    VectorSearchConfig    `toml:"vector_search"`
	Hybrid    HybridSearchConfig    `toml:"hybrid_search"`
	Memory    MemoryOptimizerConfig `toml:"memory_optimizer"`
	Resilience ResilienceConfig     `toml:"resilience"`
	Server    ServerConfig          `toml:"server"`
}

// Default returns a fully populated Config whose values match the defaults
// each component package sets for itself (textsearch, vectorsearch, hybrid,
// embedding, extractor, memoryopt, resilience).
func Default() Config {
	return Config{
		Storage: StorageConfig{
			DataDir:      "./data",
			DBFilename:   "kgmemory.db",
			PageCacheKiB: 8192,
			MmapSizeMiB:  256,
		},
		Embedding: EmbeddingConfig{
			Dimension:        256,
			CacheCapacity:    10000,
			BatchSize:        32,
			MaxConcurrency:   4,
			BatchTimeoutSecs: 10,
		},
		Extractor: ExtractorConfig{
			MinEntityLength:         2,
			MaxEntityLength:         50,
			MinEntityConfidence:     0.3,
			MaxEntitiesPerText:      100,
			MinRelationConfidence:   0.6,
			MaxRelationshipsPerText: 50,
			CoOccurrenceWindowChars: 100,
		},
		Text: TextSearchConfig{
			NameWeight: 2.0, TypeWeight: 1.5, SummaryWeight: 1.2,
			MinScoreThreshold: 0.1, CaseInsensitive: true, WildcardMode: true,
		},
		Vector: VectorSearchConfig{Metric: "cosine", SimilarityThreshold: 0.0},
		Hybrid: HybridSearchConfig{Algorithm: "linear_combination", TextWeight: 0.5},
		Memory: MemoryOptimizerConfig{
			NodeByUUID:      CacheTierConfig{Capacity: 5000, TTLSecs: 600},
			NodeListByQuery: CacheTierConfig{Capacity: 2000, TTLSecs: 300},
			EpisodeByUUID:   CacheTierConfig{Capacity: 5000, TTLSecs: 600},
			EmbeddingByText: CacheTierConfig{Capacity: 10000, TTLSecs: 1800},
			QueryResult:     CacheTierConfig{Capacity: 2000, TTLSecs: 120},
			GCIntervalSecs:  300,
			GCThreshold:     0.8,
			MaxCacheSize:    20000,
		},
		Resilience: ResilienceConfig{
			Breaker: BreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, RecoveryTimeoutSecs: 30, CallTimeoutSecs: 10},
			Auth:    AuthConfig{Enabled: false, AdminOperationsRequireAuth: true},
			RateLimit: RateLimitConfig{RequestsPerMinute: 60, BurstPerTenSec: 15, IdleTTLSecs: 300},
		},
		Server: ServerConfig{Transport: TransportStdio, Port: 8787, GlobalDeadlineSecs: 30},
	}
}

// Load reads path (a TOML file) on top of Default(), then applies the
// MCP_TRANSPORT/MCP_PORT environment overlay, per spec.md §6. A missing
// file is not an error: Load returns Default() with the env overlay
// applied, matching the teacher's "empty config, not nil" tolerance for a
// missing config.yaml.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("appconfig: decode %s: %w", path, err)
			}
		}
	}
	applyEnvOverlay(&cfg)
	return cfg, nil
}

// applyEnvOverlay mirrors LoadLocalConfigWithEnv's "environment variables
// take precedence over config file values" rule.
func applyEnvOverlay(cfg *Config) {
	if t := os.Getenv("MCP_TRANSPORT"); t != "" {
		cfg.Server.Transport = Transport(t)
	}
	if p := os.Getenv("MCP_PORT"); p != "" {
		if port, err := strconv.Atoi(p); err == nil {
			cfg.Server.Port = port
		}
		// A malformed MCP_PORT is ignored; the file/default value stands.
	}
}

func (c CacheTierConfig) ttl() time.Duration { return time.Duration(c.TTLSecs) * time.Second }
