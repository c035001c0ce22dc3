// Package embedding turns text into vectors: a local ONNX model, an
// OpenAI-compatible API, or a deterministic mock, with an LRU query cache.
package embedding

import (
	"context"
	"errors"
)

// ErrProvider signals a failed or malformed response from an embedding provider.
var ErrProvider = errors.New("embedding provider error")

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
