// Package embedding defines the embedding provider contract and the wrappers
// (retry, rate limit, cache) composed around concrete providers.
package embedding

import (
	"context"
	"fmt"
)

// Provider converts texts to vectors. The result has the same length and
// order as the input.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
}

// CheckCount verifies a provider honored the one-vector-per-input contract.
func CheckCount(vectors [][]float32, texts []string) error {
	if len(vectors) != len(texts) {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(texts))
	}
	return nil
}
