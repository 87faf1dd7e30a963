package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/deskbot/internal/retrieval"
)

func TestGenerateBuildsPromptAndParsesReply(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("auth header = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  Ship in 3 days.  "}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", APIBase: srv.URL, ChatModel: "gpt-test"})
	reply, err := c.Generate(context.Background(), "when does it ship?",
		[]Message{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}},
		[]retrieval.Result{{Question: "shipping time?", Answer: "3 days."}},
	)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply != "Ship in 3 days." {
		t.Errorf("reply = %q", reply)
	}
	if got.Model != "gpt-test" {
		t.Errorf("model = %q", got.Model)
	}
	// system prompt, reference block, two history turns, query
	if len(got.Messages) != 5 {
		t.Fatalf("messages = %d, want 5", len(got.Messages))
	}
	if !strings.Contains(got.Messages[1].Content, "shipping time?") {
		t.Errorf("reference block missing retrieved question: %q", got.Messages[1].Content)
	}
	if last := got.Messages[4]; last.Role != "user" || last.Content != "when does it ship?" {
		t.Errorf("final message = %+v", last)
	}
}

func TestGenerateErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{APIBase: srv.URL})
	if _, err := c.Generate(context.Background(), "q", nil, nil); err == nil {
		t.Fatal("expected error on non-200")
	} else if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should carry status: %v", err)
	}
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Input != "hello" {
			t.Errorf("input = %q", req.Input)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{0.1, 0.2, 0.3}}},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{APIBase: srv.URL, EmbedModel: "embed-test"})
	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.2 {
		t.Errorf("vec = %v", vec)
	}
}

func TestEmbedEmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{}})
	}))
	defer srv.Close()

	c := NewClient(Config{APIBase: srv.URL})
	if _, err := c.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected error on empty data")
	}
}
