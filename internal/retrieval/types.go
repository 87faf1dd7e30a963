// Package retrieval defines the similarity-search surface the answer pipeline
// consumes, plus a sqlite-backed Q&A corpus implementation.
package retrieval

import "context"

// Result is one scored corpus hit. Scores are cosine-style similarities in
// [0, 1] for normalized embeddings.
type Result struct {
	Score    float64
	Question string
	Answer   string
	Category string
	Keywords []string
}

// Searcher returns candidate answers for a query, ordered descending by score.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Embedder turns text into an embedding vector. Implemented by the providers
// package; declared here so the corpus does not depend on a concrete backend.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
