package answer

import "strings"

// splitWindow is how far back from the hard limit Split looks for a natural
// break before giving up and cutting mid-sentence.
const splitWindow = 200

var sentenceEnders = []rune("。．.!?！？")

// Split breaks text into chunks of at most limit runes. Within the window
// before the limit it prefers breaking at a newline, then after sentence
// punctuation; otherwise it cuts hard at the limit. Empty input yields no
// chunks.
func Split(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := breakpoint(runes, limit)
		chunk := strings.TrimSpace(string(runes[:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = []rune(strings.TrimLeft(string(runes[cut:]), " \n"))
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

// breakpoint returns the cut index (exclusive) for the next chunk.
func breakpoint(runes []rune, limit int) int {
	floor := limit - splitWindow
	if floor < 1 {
		floor = 1
	}
	for i := limit; i >= floor; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	for i := limit; i >= floor; i-- {
		if isSentenceEnd(runes[i-1]) {
			return i
		}
	}
	return limit
}

func isSentenceEnd(r rune) bool {
	for _, e := range sentenceEnders {
		if r == e {
			return true
		}
	}
	return false
}
