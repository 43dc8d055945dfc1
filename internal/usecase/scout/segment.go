package scout

import "strings"

// SentenceSegmenter splits text into sentence-granularity units: paragraphs
// first, then sentence boundaries on terminal punctuation followed by
// whitespace. Units keep their original text so concatenation in order
// reconstructs the relevant subset verbatim.
type SentenceSegmenter struct{}

// Segment implements Segmenter.
func (SentenceSegmenter) Segment(text string) []string {
	var units []string
	for _, para := range strings.Split(text, "\n\n") {
		units = append(units, splitSentences(para)...)
	}
	return units
}

func splitSentences(text string) []string {
	var units []string
	start := 0
	runes := []rune(text)

	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		// Consume runs of terminal punctuation ("?!", "...").
		for i+1 < len(runes) && isTerminal(runes[i+1]) {
			i++
		}
		if i+1 < len(runes) && !isSpace(runes[i+1]) {
			continue
		}
		if unit := strings.TrimSpace(string(runes[start : i+1])); unit != "" {
			units = append(units, unit)
		}
		start = i + 1
	}

	if unit := strings.TrimSpace(string(runes[start:])); unit != "" {
		units = append(units, unit)
	}
	return units
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
