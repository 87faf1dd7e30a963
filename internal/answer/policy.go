// Package answer decides how an inbound query gets answered: returned verbatim
// from the best retrieval hit, or synthesized by the generation backend. It
// also owns the low-confidence fallback wording and the outbound splitter.
package answer

import (
	"strings"

	"github.com/nextlevelbuilder/deskbot/internal/retrieval"
)

// Mode is the selected answering strategy for one query.
type Mode int

const (
	// ModeGenerate synthesizes an answer from the retrieved candidates.
	ModeGenerate Mode = iota
	// ModeDirect returns the top retrieval hit's stored answer verbatim.
	ModeDirect
)

func (m Mode) String() string {
	if m == ModeDirect {
		return "direct"
	}
	return "generate"
}

// Decide picks direct mode only when the best hit is both confident in
// absolute terms and clearly separated from the runner-up. A high score with a
// near-tied second candidate is ambiguous and goes to generation, which can
// weigh both candidates. Results must be sorted descending by score.
func Decide(results []retrieval.Result, simThreshold, margin float64) Mode {
	if len(results) == 0 {
		return ModeGenerate
	}
	best := results[0].Score
	second := 0.0
	if len(results) > 1 {
		second = results[1].Score
	}
	if best >= simThreshold && best-second >= margin {
		return ModeDirect
	}
	return ModeGenerate
}

// NoConfidentAnswer is the phrase that marks a generated reply as
// low-confidence. The fallback template starts with it, and generation prompts
// instruct the model to emit it when unsure.
const NoConfidentAnswer = "I couldn't find a confident answer to that."

// HandoffInvitation is appended to low-confidence replies exactly once.
const HandoffInvitation = `If you'd like to talk to a person, just type "human" and a member of our staff will follow up.`

// EnsureHandoffInvitation appends the handoff invitation to text when it is a
// low-confidence reply and does not already carry the invitation. Calling it
// again on its own output is a no-op.
func EnsureHandoffInvitation(text string) string {
	if !strings.Contains(text, NoConfidentAnswer) {
		return text
	}
	if strings.Contains(text, HandoffInvitation) {
		return text
	}
	return strings.TrimRight(text, "\n") + "\n\n" + HandoffInvitation
}
