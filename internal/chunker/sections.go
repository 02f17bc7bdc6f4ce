package chunker

import (
	"regexp"
	"sort"
	"strings"
)

// boundary marks the start of a structural section within document text.
type boundary struct {
	offset int
	marker string
}

// sectionPatterns is the ordered library of section-marker patterns.
// Order matters only for marker naming when two patterns match the same
// offset; merging is positional.
var sectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*ARTICLE\s+[IVXLC\d]+[^\n]*`),
	regexp.MustCompile(`(?m)^\s*(?:SECTION|Section)\s*\d+(?:\.\d+)*[^\n]*`),
	regexp.MustCompile(`(?m)^\s*§+\s*\d+(?:\.\d+)*[^\n]*`),
	regexp.MustCompile(`(?m)^\s*(?:WHEREAS\b|RECITALS\b|W I T N E S S E T H)[^\n]*`),
	regexp.MustCompile(`(?m)^\s*(?:BACKGROUND|DISCUSSION|ANALYSIS|CONCLUSION|FACTS|PROCEDURAL HISTORY|STANDARD OF REVIEW)\s*$`),
	regexp.MustCompile(`(?m)^\s*(?:COUNT\s+[IVXLC\d]+|(?:FIRST|SECOND|THIRD|FOURTH|FIFTH)\s+CAUSE\s+OF\s+ACTION|PRAYER\s+FOR\s+RELIEF)[^\n]*`),
	regexp.MustCompile(`(?m)^\s*(?:EXHIBIT|SCHEDULE|APPENDIX)\s+[A-Z\d]+[^\n]*`),
	regexp.MustCompile(`(?m)^\s*\d+\.\s+[A-Z][^\n]{3,80}$`),
}

// locateBoundaries finds structural section starts, merging boundaries
// closer than mergeDistance to avoid degenerate micro-chunks.
func locateBoundaries(text string, mergeDistance int) []boundary {
	var found []boundary
	for _, pattern := range sectionPatterns {
		for _, loc := range pattern.FindAllStringIndex(text, -1) {
			marker := strings.TrimSpace(text[loc[0]:loc[1]])
			if len(marker) > 80 {
				marker = marker[:80]
			}
			found = append(found, boundary{offset: loc[0], marker: marker})
		}
	}
	if len(found) == 0 {
		return nil
	}

	sort.Slice(found, func(i, j int) bool { return found[i].offset < found[j].offset })

	merged := found[:1]
	for _, b := range found[1:] {
		if b.offset-merged[len(merged)-1].offset < mergeDistance {
			continue
		}
		merged = append(merged, b)
	}
	return merged
}

// section is a contiguous span of document text under one marker.
type section struct {
	start  int
	end    int
	marker string
}

// sectionize splits text into sections at the located boundaries. Text
// before the first boundary becomes an unmarked leading section.
func sectionize(text string, mergeDistance int) []section {
	boundaries := locateBoundaries(text, mergeDistance)
	if len(boundaries) == 0 {
		return []section{{start: 0, end: len(text)}}
	}

	var sections []section
	if boundaries[0].offset > 0 {
		sections = append(sections, section{start: 0, end: boundaries[0].offset})
	}
	for i, b := range boundaries {
		end := len(text)
		if i+1 < len(boundaries) {
			end = boundaries[i+1].offset
		}
		sections = append(sections, section{start: b.offset, end: end, marker: b.marker})
	}
	return sections
}
