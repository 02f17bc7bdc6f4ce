package chunker

import (
	"regexp"
	"strings"
)

var (
	reCaseCitation    = regexp.MustCompile(`\b([A-Z][A-Za-z'.]+(?:\s+[A-Z][A-Za-z'.]+)*)\s+v\.\s+([A-Z][A-Za-z'.]+(?:\s+[A-Z][A-Za-z'.]+)*)`)
	reReporterCite    = regexp.MustCompile(`\b\d+\s+(?:U\.S\.|F\.\s*(?:2d|3d|4th)|S\.\s*Ct\.|A\.\s*(?:2d|3d)|P\.\s*(?:2d|3d))\s+\d+\b`)
	reStatuteCitation = regexp.MustCompile(`\b\d+\s+U\.S\.C\.\s*§+\s*[\dA-Za-z()\-]+`)
	reSectionRef      = regexp.MustCompile(`(?i)(?:section|article|§)\s*(\d+(?:\.\d+)*(?:\([a-z]\))?)`)
	reDefinitionRef   = regexp.MustCompile(`(?i)(?:as defined (?:in|under)|see definition of)\s+"?([A-Za-z][A-Za-z ]{1,40}?)"?(?:[.,;]|$)`)

	reDefinitionChunk = regexp.MustCompile(`(?i)"[^"]+"\s+(?:shall mean|means|shall have the meaning|is defined as)`)
	reSignatureChunk  = regexp.MustCompile(`(?i)(?:in witness whereof|/s/|by:\s*_{2,}|signature:)`)
	reRecitalChunk    = regexp.MustCompile(`(?im)^\s*(?:whereas\b|recitals\b|now,? therefore\b)`)
	reEnumLine        = regexp.MustCompile(`(?m)^\s*(?:\d+\.|\([a-z]\)|\([ivx]+\)|[-*•])\s+`)
)

// classifyChunk assigns a semantic type by first-match priority:
// citation block, definition, recital, signature block, enumerated
// list, else body.
func classifyChunk(text string) SemanticType {
	citations := len(reReporterCite.FindAllString(text, -1)) + len(reStatuteCitation.FindAllString(text, -1))
	if citations >= 2 {
		return SemanticCitation
	}
	if reDefinitionChunk.MatchString(text) {
		return SemanticDefinition
	}
	if reRecitalChunk.MatchString(text) {
		return SemanticRecital
	}
	if reSignatureChunk.MatchString(text) {
		return SemanticSignature
	}
	if len(reEnumLine.FindAllString(text, -1)) >= 3 {
		return SemanticEnumeration
	}
	return SemanticBody
}

// maxRefsPerChunk bounds extraction on pathological inputs.
const maxRefsPerChunk = 32

// extractCrossRefs pulls candidate cross-references from chunk text as
// structured tuples for later relationship graph construction.
func extractCrossRefs(text string) []CrossReference {
	var refs []CrossReference
	seen := make(map[string]bool)

	add := func(kind RefKind, target string, loc []int) {
		target = strings.TrimSpace(target)
		if target == "" || len(refs) >= maxRefsPerChunk {
			return
		}
		key := string(kind) + ":" + strings.ToLower(target)
		if seen[key] {
			return
		}
		seen[key] = true
		refs = append(refs, CrossReference{
			Kind:    kind,
			Target:  target,
			Context: snippet(text, loc[0], loc[1]),
		})
	}

	for _, loc := range reCaseCitation.FindAllStringSubmatchIndex(text, -1) {
		add(RefCase, text[loc[0]:loc[1]], loc)
	}
	for _, loc := range reStatuteCitation.FindAllStringIndex(text, -1) {
		add(RefStatute, text[loc[0]:loc[1]], loc)
	}
	for _, loc := range reSectionRef.FindAllStringSubmatchIndex(text, -1) {
		add(RefSection, text[loc[2]:loc[3]], loc)
	}
	for _, loc := range reDefinitionRef.FindAllStringSubmatchIndex(text, -1) {
		add(RefDefinition, text[loc[2]:loc[3]], loc)
	}
	return refs
}

// snippet returns up to 40 characters of context on each side of a match.
func snippet(text string, start, end int) string {
	lo := start - 40
	if lo < 0 {
		lo = 0
	}
	hi := end + 40
	if hi > len(text) {
		hi = len(text)
	}
	return strings.TrimSpace(text[lo:hi])
}
