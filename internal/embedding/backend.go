package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// Backend produces raw (not necessarily normalized) embedding vectors for a
// single text. Service normalizes and caches on top of it. Swapping Backend
// is the seam for wiring a real model provider (e.g. the openai-go or
// any-llm-go clients present elsewhere in the retrieved pack) without
// touching the batching/caching/lifecycle machinery in this package — see
// SPEC_FULL.md §4.2.
type Backend interface {
	// Dimension is the fixed output vector length this backend produces.
	Dimension() int
	// EncodeOne produces a single raw embedding for text.
	EncodeOne(ctx context.Context, text string) ([]float32, error)
}

// HashBackend is a deterministic, dependency-free embedding backend: it
// hashes sliding n-grams of the input into a fixed-width vector. It has no
// semantic grounding, but it is stable (same text always yields the same
// vector, so caching and similarity ranking are meaningful for testing the
// rest of the pipeline) and requires no model artifact, which the core does
// not have access to (ONNX model loading is an explicitly external
// collaborator per spec.md §1).
type HashBackend struct {
	dim int
}

// NewHashBackend returns a HashBackend producing vectors of length dim.
func NewHashBackend(dim int) *HashBackend {
	if dim <= 0 {
		dim = 256
	}
	return &HashBackend{dim: dim}
}

func (h *HashBackend) Dimension() int { return h.dim }

func (h *HashBackend) EncodeOne(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dim)
	if text == "" {
		return vec, nil
	}

	grams := ngrams(text, 3)
	for _, g := range grams {
		sum := sha256.Sum256([]byte(g))
		for i := 0; i < len(sum)-4; i += 4 {
			bucket := binary.BigEndian.Uint32(sum[i:i+4]) % uint32(h.dim)
			sign := float32(1)
			if sum[i]&1 == 1 {
				sign = -1
			}
			vec[bucket] += sign
		}
	}
	return vec, nil
}

func ngrams(s string, n int) []string {
	runes := []rune(s)
	if len(runes) < n {
		return []string{s}
	}
	out := make([]string, 0, len(runes)-n+1)
	for i := 0; i+n <= len(runes); i++ {
		out = append(out, string(runes[i:i+n]))
	}
	return out
}

// normalize returns v scaled to unit L2 norm. A zero vector is returned
// unchanged (its norm is already 0, and the Service contract only promises
// unit norm for genuinely encoded text).
func normalize(v []float32) []float32 {
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = f / norm
	}
	return out
}
