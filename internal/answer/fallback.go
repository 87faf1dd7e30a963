package answer

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/deskbot/internal/retrieval"
)

const maxSuggestions = 3

// FallbackReply builds the static reply used when the generation backend
// fails or declines. It leads with the low-confidence phrase so the handoff
// invitation gets appended downstream, and suggests the closest stored
// questions so the user can rephrase.
func FallbackReply(results []retrieval.Result) string {
	var b strings.Builder
	b.WriteString(NoConfidentAnswer)

	n := len(results)
	if n > maxSuggestions {
		n = maxSuggestions
	}
	if n > 0 {
		b.WriteString("\n\nThese look related — does one of them match what you meant?")
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, "\n- %s", results[i].Question)
		}
	}
	return b.String()
}
