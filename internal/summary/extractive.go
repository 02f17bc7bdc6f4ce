package summary

import (
	"regexp"
	"strings"
)

// reObligation matches sentences carrying legal obligations or
// governing terms. The extractive fallback keeps these over narrative
// text.
var reObligation = regexp.MustCompile(`(?i)\b(shall|must|agree|agrees|warrant|warrants|indemnify|indemnifies|terminate|terminates|govern|governs|governed|jurisdiction|liability)\b`)

// reSentenceEnd splits text into rough sentences at terminal
// punctuation followed by whitespace.
var reSentenceEnd = regexp.MustCompile(`[.!?]\s+`)

// maxObligationSentences bounds how many obligation sentences the
// fallback appends after the first paragraph.
const maxObligationSentences = 3

// extractiveSummary produces a deterministic summary without a
// generation provider: the first paragraph plus up to three obligation
// sentences not already inside it.
func extractiveSummary(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	firstParagraph := text
	if idx := strings.Index(text, "\n\n"); idx >= 0 {
		firstParagraph = strings.TrimSpace(text[:idx])
	}

	var picked []string
	for _, sentence := range splitSentences(text) {
		if len(picked) >= maxObligationSentences {
			break
		}
		if !reObligation.MatchString(sentence) {
			continue
		}
		if strings.Contains(firstParagraph, sentence) {
			continue
		}
		picked = append(picked, sentence)
	}

	if len(picked) == 0 {
		return firstParagraph
	}
	return firstParagraph + " " + strings.Join(picked, " ")
}

// splitSentences breaks text into trimmed sentences, keeping terminal
// punctuation with each sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for _, loc := range reSentenceEnd.FindAllStringIndex(text, -1) {
		// loc[0] is the punctuation position; keep it.
		sentence := strings.TrimSpace(text[start : loc[0]+1])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = loc[1]
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}
