package answer

import (
	"strings"
	"testing"

	"github.com/nextlevelbuilder/deskbot/internal/retrieval"
)

func results(scores ...float64) []retrieval.Result {
	out := make([]retrieval.Result, len(scores))
	for i, s := range scores {
		out[i] = retrieval.Result{Score: s, Question: "q", Answer: "a"}
	}
	return out
}

func TestDecide(t *testing.T) {
	cases := []struct {
		name    string
		results []retrieval.Result
		want    Mode
	}{
		{"empty never direct", nil, ModeGenerate},
		{"confident and separated", results(0.92, 0.60), ModeDirect},
		{"confident but near tie", results(0.92, 0.88), ModeGenerate},
		{"below threshold", results(0.70, 0.10), ModeGenerate},
		{"single result treats second as zero", results(0.90), ModeDirect},
		{"single result below threshold", results(0.80), ModeGenerate},
		{"exactly at both thresholds", results(0.85, 0.75), ModeDirect},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Decide(tc.results, 0.85, 0.10); got != tc.want {
				t.Errorf("Decide = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEnsureHandoffInvitation(t *testing.T) {
	low := NoConfidentAnswer + " Maybe try rephrasing."

	once := EnsureHandoffInvitation(low)
	if !strings.Contains(once, HandoffInvitation) {
		t.Fatal("invitation not appended to low-confidence reply")
	}
	if got := EnsureHandoffInvitation(once); got != once {
		t.Error("appending must be idempotent")
	}
	if strings.Count(once, HandoffInvitation) != 1 {
		t.Errorf("invitation appears %d times, want 1", strings.Count(once, HandoffInvitation))
	}

	confident := "Your order ships tomorrow."
	if got := EnsureHandoffInvitation(confident); got != confident {
		t.Errorf("confident reply must pass unchanged, got %q", got)
	}
}

func TestFallbackReply(t *testing.T) {
	rs := []retrieval.Result{
		{Question: "How do I reset my password?"},
		{Question: "How do I change my email?"},
		{Question: "How do I close my account?"},
		{Question: "never shown"},
	}
	text := FallbackReply(rs)
	if !strings.HasPrefix(text, NoConfidentAnswer) {
		t.Error("fallback must lead with the low-confidence phrase")
	}
	for _, q := range rs[:3] {
		if !strings.Contains(text, q.Question) {
			t.Errorf("missing suggestion %q", q.Question)
		}
	}
	if strings.Contains(text, "never shown") {
		t.Error("suggestions must cap at three")
	}
	if !strings.Contains(EnsureHandoffInvitation(text), HandoffInvitation) {
		t.Error("fallback must trigger the handoff invitation")
	}

	if got := FallbackReply(nil); got != NoConfidentAnswer {
		t.Errorf("empty results fallback = %q, want bare phrase", got)
	}
}

func TestSplit(t *testing.T) {
	t.Run("short text is one chunk", func(t *testing.T) {
		got := Split("hello", 100)
		if len(got) != 1 || got[0] != "hello" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("prefers newline break", func(t *testing.T) {
		text := strings.Repeat("a", 90) + "\n" + strings.Repeat("b", 50)
		got := Split(text, 100)
		if len(got) != 2 {
			t.Fatalf("chunks = %d, want 2", len(got))
		}
		if got[0] != strings.Repeat("a", 90) {
			t.Errorf("first chunk = %q", got[0])
		}
	})

	t.Run("falls back to sentence punctuation", func(t *testing.T) {
		text := strings.Repeat("a", 80) + "。" + strings.Repeat("b", 60)
		got := Split(text, 100)
		if len(got) != 2 {
			t.Fatalf("chunks = %d, want 2", len(got))
		}
		if !strings.HasSuffix(got[0], "。") {
			t.Errorf("first chunk should end at the sentence: %q", got[0])
		}
		if got[1] != strings.Repeat("b", 60) {
			t.Errorf("second chunk = %q", got[1])
		}
	})

	t.Run("hard cut when no break point", func(t *testing.T) {
		text := strings.Repeat("x", 250)
		got := Split(text, 100)
		if len(got) != 3 {
			t.Fatalf("chunks = %d, want 3", len(got))
		}
		for i, c := range got[:2] {
			if len([]rune(c)) != 100 {
				t.Errorf("chunk %d len = %d, want 100", i, len([]rune(c)))
			}
		}
	})

	t.Run("rune-counted for multibyte text", func(t *testing.T) {
		text := strings.Repeat("あ", 150)
		got := Split(text, 100)
		if len(got) != 2 {
			t.Fatalf("chunks = %d, want 2", len(got))
		}
		if n := len([]rune(got[0])); n != 100 {
			t.Errorf("first chunk runes = %d, want 100", n)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if got := Split("   ", 100); got != nil {
			t.Errorf("got %v, want nil", got)
		}
	})
}
