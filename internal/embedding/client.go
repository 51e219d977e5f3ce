package embedding

import "context"

// Embedder turns a batch of texts into vectors, one per text and in the same
// order. All vectors from one embedder share a dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
