package resilience

import (
	"crypto/subtle"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

// AdminOperations is the set of tool operations that require the API key
// even when the Enabled flag is off, as long as AdminOperationsRequireAuth is
// set; with both off they pass like any other operation.
var AdminOperations = map[string]bool{
	"delete_episode": true,
	"delete_edge":    true,
	"delete_node":    true,
	"clear_graph":    true,
	"manage_graph":   true,
}

// Auth is a stateless API-key gate. It carries no per-request state, so a
// single instance is shared across all dispatcher goroutines without
// locking.
type Auth struct {
	enabled                  bool
	adminOperationsRequire   bool
	key                      string
}

// AuthConfig tunes Auth.
type AuthConfig struct {
	Enabled                      bool
	APIKey                       string
	AdminOperationsRequireAuth   bool
}

// NewAuth returns an Auth gate from cfg.
func NewAuth(cfg AuthConfig) *Auth {
	return &Auth{enabled: cfg.Enabled, key: cfg.APIKey, adminOperationsRequire: cfg.AdminOperationsRequireAuth}
}

// Check validates providedKey against the configured key for the named
// operation. When auth is disabled, only admin operations (if
// adminOperationsRequire is set) are gated; everything else passes.
func (a *Auth) Check(operation, providedKey string) error {
	requires := a.enabled
	if !requires && a.adminOperationsRequire && AdminOperations[operation] {
		requires = true
	}
	if !requires {
		return nil
	}
	if a.key == "" {
		return graphtypes.New(graphtypes.KindAuthDenied, "no API key configured for a gated operation")
	}
	if subtle.ConstantTimeCompare([]byte(providedKey), []byte(a.key)) != 1 {
		return graphtypes.New(graphtypes.KindAuthDenied, "invalid API key")
	}
	return nil
}
