package retrieval

import (
	"context"
	"path/filepath"
	"testing"
)

// fixedEmbedder maps known texts to preset vectors so scores are predictable.
type fixedEmbedder struct {
	vectors map[string][]float64
}

func (f fixedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float64{0, 0, 1}, nil
}

func newTestCorpus(t *testing.T, emb Embedder, limit int) *Corpus {
	t.Helper()
	c, err := OpenCorpus(filepath.Join(t.TempDir(), "corpus.db"), emb, limit)
	if err != nil {
		t.Fatalf("OpenCorpus: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSearchOrdersByScore(t *testing.T) {
	emb := fixedEmbedder{vectors: map[string][]float64{
		"reset password": {1, 0, 0},
		"change email":   {0, 1, 0},
		"close account":  {0.5, 0.5, 0},
		"forgot my password": {0.9, 0.1, 0},
	}}
	c := newTestCorpus(t, emb, 10)
	ctx := context.Background()

	for _, e := range []struct{ q, a, cat string }{
		{"reset password", "Use the reset link.", "account"},
		{"change email", "Open settings.", "account"},
		{"close account", "Contact support.", "account"},
	} {
		if err := c.Add(ctx, e.q, e.a, e.cat, []string{"account"}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	results, err := c.Search(ctx, "forgot my password")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if results[0].Question != "reset password" {
		t.Errorf("top hit = %q, want reset password", results[0].Question)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not descending at %d: %f > %f", i, results[i].Score, results[i-1].Score)
		}
	}
	if results[0].Answer != "Use the reset link." || results[0].Category != "account" {
		t.Errorf("top hit fields wrong: %+v", results[0])
	}
	if len(results[0].Keywords) != 1 || results[0].Keywords[0] != "account" {
		t.Errorf("keywords = %v", results[0].Keywords)
	}
}

func TestSearchLimitsResults(t *testing.T) {
	emb := fixedEmbedder{vectors: map[string][]float64{}}
	c := newTestCorpus(t, emb, 2)
	ctx := context.Background()

	for _, q := range []string{"a", "b", "c", "d"} {
		if err := c.Add(ctx, q, "answer", "", nil); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	results, err := c.Search(ctx, "anything")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("results = %d, want limit 2", len(results))
	}
}

func TestSearchEmptyCorpus(t *testing.T) {
	c := newTestCorpus(t, fixedEmbedder{}, 5)
	results, err := c.Search(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}
}

func TestCount(t *testing.T) {
	c := newTestCorpus(t, fixedEmbedder{}, 5)
	ctx := context.Background()
	if err := c.Add(ctx, "q", "a", "", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	n, err := c.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}
