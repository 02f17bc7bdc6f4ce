// Package chunker turns legal document text into structured,
// context-annotated chunks.
//
// The pipeline classifies the document, locates structural section
// boundaries, splits sections into bounded chunks with deterministic
// overlap, classifies each chunk's semantic type, extracts candidate
// cross-references, and synthesizes the contextual text used for
// embedding.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Config holds chunk size bounds in characters.
type Config struct {
	// TargetSize is the preferred chunk size.
	TargetSize int
	// MaxSize is the hard ceiling; sections above it split at paragraph breaks.
	MaxSize int
	// MinSize is the minimum viable chunk; shorter documents yield no chunks.
	MinSize int
	// Overlap is carried from the tail of a chunk into the next on splits.
	Overlap int
	// MergeDistance merges section boundaries closer than this.
	MergeDistance int
}

// DefaultConfig returns chunking bounds tuned for legal prose.
func DefaultConfig() Config {
	return Config{
		TargetSize:    800,
		MaxSize:       1200,
		MinSize:       100,
		Overlap:       100,
		MergeDistance: 50,
	}
}

// Result is the output of chunking one document.
type Result struct {
	// Category is the classified document category.
	Category DocumentCategory

	// Jurisdiction is inferred from the head of the document, or empty.
	Jurisdiction string

	// Chunks are the ordered chunk records.
	Chunks []Chunk
}

// Chunker splits document text into context-annotated chunks.
type Chunker struct {
	config     Config
	classifier Classifier
	logger     *zap.Logger
}

// New creates a Chunker. A nil logger disables logging.
func New(config Config, classifier Classifier, logger *zap.Logger) *Chunker {
	if classifier == nil {
		classifier = NewClassifier()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chunker{config: config, classifier: classifier, logger: logger.Named("chunker")}
}

// Chunk runs the full chunking pipeline.
//
// Text shorter than the minimum chunk size yields an empty result with a
// nil error: an explicit reject, not a failure.
func (c *Chunker) Chunk(doc DocumentInfo, matter *MatterInfo, text string) Result {
	category := c.classifier.Classify(text)
	jurisdiction := inferJurisdiction(text, matter)

	result := Result{Category: category, Jurisdiction: jurisdiction}
	if len(strings.TrimSpace(text)) < c.config.MinSize {
		return result
	}

	position := 0
	for _, sec := range sectionize(text, c.config.MergeDistance) {
		secText := text[sec.start:sec.end]
		if strings.TrimSpace(secText) == "" {
			continue
		}

		pieces := c.splitSection(secText, sec.start)
		for i, p := range pieces {
			chunkText := p.text
			if i > 0 && c.config.Overlap > 0 {
				chunkText = tail(pieces[i-1].text, c.config.Overlap) + "\n" + chunkText
			}

			chunk := Chunk{
				DocumentID:    doc.ID,
				Position:      position,
				Text:          chunkText,
				StartOffset:   p.start,
				EndOffset:     p.end,
				SectionMarker: sec.marker,
				SemanticType:  classifyChunk(chunkText),
				CrossRefs:     extractCrossRefs(chunkText),
			}
			chunk.ContextText = contextHeader(doc, matter, category, jurisdiction, sec.marker) + "\n" + chunkText
			result.Chunks = append(result.Chunks, chunk)
			position++
		}
	}

	c.logger.Debug("chunked document",
		zap.String("document_id", doc.ID),
		zap.String("category", string(category)),
		zap.Int("chunks", len(result.Chunks)))
	return result
}

// piece is a chunk-sized span of section text before overlap annotation.
type piece struct {
	text  string
	start int
	end   int
}

// splitSection splits one section into pieces honoring the size bounds.
// Sections at or under the ceiling stay whole; larger ones split at
// paragraph breaks, with oversized paragraphs hard-split at word
// boundaries near the target size.
func (c *Chunker) splitSection(secText string, base int) []piece {
	if len(secText) <= c.config.MaxSize {
		return []piece{{text: secText, start: base, end: base + len(secText)}}
	}

	var pieces []piece
	var curStart, curEnd int
	haveCur := false

	flush := func() {
		if !haveCur {
			return
		}
		pieces = append(pieces, piece{
			text:  secText[curStart:curEnd],
			start: base + curStart,
			end:   base + curEnd,
		})
		haveCur = false
	}

	for _, span := range paragraphSpans(secText) {
		plen := span[1] - span[0]
		if plen > c.config.MaxSize {
			flush()
			for _, sub := range hardSplit(secText, span[0], span[1], c.config.TargetSize) {
				pieces = append(pieces, piece{
					text:  secText[sub[0]:sub[1]],
					start: base + sub[0],
					end:   base + sub[1],
				})
			}
			continue
		}
		if haveCur && span[1]-curStart > c.config.TargetSize {
			flush()
		}
		if !haveCur {
			curStart = span[0]
			haveCur = true
		}
		curEnd = span[1]
	}
	flush()

	return c.mergeShort(pieces)
}

// mergeShort folds pieces below the minimum size into their predecessor
// when the result stays under the ceiling. A section's final piece may
// remain short.
func (c *Chunker) mergeShort(pieces []piece) []piece {
	if len(pieces) < 2 {
		return pieces
	}
	merged := pieces[:1]
	for _, p := range pieces[1:] {
		last := &merged[len(merged)-1]
		if len(p.text) < c.config.MinSize && (p.end-last.start) <= c.config.MaxSize {
			last.text = last.text + p.text
			last.end = p.end
			continue
		}
		merged = append(merged, p)
	}
	return merged
}

// paragraphSpans returns the [start, end) spans of paragraphs in text,
// falling back to the whole text when no blank-line structure exists.
var reParagraphBreak = regexp.MustCompile(`\n[ \t]*\n+`)

func paragraphSpans(text string) [][2]int {
	breaks := reParagraphBreak.FindAllStringIndex(text, -1)
	if len(breaks) == 0 {
		return [][2]int{{0, len(text)}}
	}
	var spans [][2]int
	prev := 0
	for _, b := range breaks {
		if b[0] > prev {
			spans = append(spans, [2]int{prev, b[0]})
		}
		prev = b[1]
	}
	if prev < len(text) {
		spans = append(spans, [2]int{prev, len(text)})
	}
	return spans
}

// hardSplit cuts an oversized span into sub-spans near the target size,
// breaking at the last space before the limit when possible.
func hardSplit(text string, start, end, target int) [][2]int {
	var spans [][2]int
	for start < end {
		cut := start + target
		if cut >= end {
			spans = append(spans, [2]int{start, end})
			break
		}
		if idx := strings.LastIndexByte(text[start:cut], ' '); idx > 0 {
			cut = start + idx
		}
		spans = append(spans, [2]int{start, cut})
		start = cut
	}
	return spans
}

// tail returns the last n bytes of s, trimmed to a space boundary so the
// overlap does not begin mid-word.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	t := s[len(s)-n:]
	if idx := strings.IndexByte(t, ' '); idx >= 0 && idx < len(t)-1 {
		t = t[idx+1:]
	}
	return t
}

// contextHeader synthesizes the chunk's context prefix from document and
// matter facts. The header is embedded with the chunk so its vector
// encodes where the passage sits, not only its literal content.
func contextHeader(doc DocumentInfo, matter *MatterInfo, category DocumentCategory, jurisdiction, marker string) string {
	var parts []string
	if doc.Name != "" {
		parts = append(parts, "Document: "+doc.Name)
	}
	docType := doc.Type
	if docType == "" {
		docType = string(category)
	}
	parts = append(parts, "Type: "+docType)
	if matter != nil {
		if matter.Name != "" {
			m := "Matter: " + matter.Name
			if matter.Type != "" {
				m += " (" + matter.Type + ")"
			}
			parts = append(parts, m)
		}
		if matter.PracticeArea != "" {
			parts = append(parts, "Practice area: "+matter.PracticeArea)
		}
	}
	if jurisdiction != "" {
		parts = append(parts, "Jurisdiction: "+jurisdiction)
	}
	if !doc.CreatedAt.IsZero() {
		parts = append(parts, "Date: "+doc.CreatedAt.Format("2006-01-02"))
	}
	if doc.Author != "" {
		parts = append(parts, "Author: "+doc.Author)
	}
	if marker != "" {
		parts = append(parts, "Section: "+marker)
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, " | "))
}

// jurisdictionHead bounds how much of the document is scanned for
// court/jurisdiction phrases.
const jurisdictionHead = 1500

var (
	reStateOf      = regexp.MustCompile(`(?i)(?:laws of (?:the )?)?(?:state|commonwealth) of ([A-Z][a-z]+(?: [A-Z][a-z]+)?)`)
	reSupremeCourt = regexp.MustCompile(`(?i)supreme court of (?:the state of )?([A-Z][a-z]+(?: [A-Z][a-z]+)?)`)
	reFederalCourt = regexp.MustCompile(`(?i)united states (?:district court|court of appeals|supreme court)`)
	reDistrictOf   = regexp.MustCompile(`(?i)district of ([A-Z][a-z]+(?: [A-Z][a-z]+)?)`)
)

// inferJurisdiction pattern-matches court and jurisdiction phrases in the
// first portion of the document. An explicit matter hint wins.
func inferJurisdiction(text string, matter *MatterInfo) string {
	if matter != nil && matter.Jurisdiction != "" {
		return matter.Jurisdiction
	}
	head := text
	if len(head) > jurisdictionHead {
		head = head[:jurisdictionHead]
	}
	if m := reSupremeCourt.FindStringSubmatch(head); m != nil {
		return m[1]
	}
	if m := reStateOf.FindStringSubmatch(head); m != nil {
		return m[1]
	}
	if reFederalCourt.MatchString(head) {
		if m := reDistrictOf.FindStringSubmatch(head); m != nil {
			return "federal (" + m[1] + ")"
		}
		return "federal"
	}
	return ""
}
