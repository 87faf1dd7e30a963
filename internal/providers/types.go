// Package providers holds the thin clients for the external model backends:
// answer generation (chat completions) and query embedding. Anything
// OpenAI-compatible works; prompt construction stays minimal on purpose.
package providers

import (
	"context"

	"github.com/nextlevelbuilder/deskbot/internal/retrieval"
)

// Message is one prior conversation turn handed to the generator.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// Generator synthesizes an answer from the query, recent history, and the
// retrieved Q&A candidates.
type Generator interface {
	Generate(ctx context.Context, query string, history []Message, refs []retrieval.Result) (string, error)
}

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
