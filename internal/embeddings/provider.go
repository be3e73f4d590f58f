// Package embeddings turns document text into fixed-dimension vectors
// using the Hugging Face Inference API.
package embeddings

import (
	"context"
	"errors"
)

var (
	// ErrInvalidConfig indicates the provider configuration is invalid.
	ErrInvalidConfig = errors.New("embeddings: invalid configuration")

	// ErrEmptyInput indicates an empty query text.
	ErrEmptyInput = errors.New("embeddings: empty input text")

	// ErrProvider indicates the inference API call failed.
	ErrProvider = errors.New("embeddings: provider request failed")

	// ErrInvalidResponse indicates the provider returned a payload that is
	// not a flat array of numbers of the configured dimension.
	ErrInvalidResponse = errors.New("embeddings: invalid provider response")

	// ErrCountMismatch indicates the provider returned a different number
	// of vectors than texts submitted.
	ErrCountMismatch = errors.New("embeddings: vector count mismatch")
)

// Provider generates embedding vectors for texts.
type Provider interface {
	// Embed returns one vector per input text, in input order. An empty
	// input yields an empty result and no error.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedBatched splits texts into sequential groups of batchSize and
	// embeds each group, pausing between groups. A batchSize of zero or
	// less uses the configured default.
	EmbedBatched(ctx context.Context, texts []string, batchSize int) ([][]float32, error)

	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension reports the vector size this provider produces.
	Dimension() int
}
