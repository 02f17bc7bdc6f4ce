package chunker

import "regexp"

// Classifier scores text against category-specific pattern sets and
// returns the best-matching document category. The pattern tables are
// data, so alternative classifiers can be swapped in for testing.
type Classifier interface {
	Classify(text string) DocumentCategory
}

// categoryPatterns maps each category to the patterns that indicate it.
// Scoring counts matching patterns, not occurrences, so one repeated
// phrase cannot dominate.
var categoryPatterns = map[DocumentCategory][]*regexp.Regexp{
	CategoryContract: {
		regexp.MustCompile(`(?i)\bthis agreement\b`),
		regexp.MustCompile(`(?i)\bwhereas\b`),
		regexp.MustCompile(`(?i)\bin witness whereof\b`),
		regexp.MustCompile(`(?i)\bgoverning law\b`),
		regexp.MustCompile(`(?i)\bindemnif(y|ies|ication)\b`),
		regexp.MustCompile(`(?i)\bterm and termination\b`),
		regexp.MustCompile(`(?i)\bthe parties\b`),
	},
	CategoryCaseLaw: {
		regexp.MustCompile(`\b[A-Z][A-Za-z'.]+ v\. [A-Z][A-Za-z'.]+`),
		regexp.MustCompile(`(?i)\bopinion of the court\b`),
		regexp.MustCompile(`(?i)\bappell(ant|ee)\b`),
		regexp.MustCompile(`(?i)\bwe (affirm|reverse|remand)\b`),
		regexp.MustCompile(`\b\d+\s+F\.\s*(2d|3d|4th)\s+\d+\b`),
		regexp.MustCompile(`\b\d+\s+U\.S\.\s+\d+\b`),
	},
	CategoryPleading: {
		regexp.MustCompile(`(?i)\bcomes? now\b`),
		regexp.MustCompile(`(?i)\bcomplaint\b`),
		regexp.MustCompile(`(?i)\bprayer for relief\b`),
		regexp.MustCompile(`(?i)\bcause[s]? of action\b`),
		regexp.MustCompile(`(?i)\bcase no\.`),
		regexp.MustCompile(`(?i)\bplaintiff[s]?\b`),
	},
	CategoryMemo: {
		regexp.MustCompile(`(?im)^\s*memorandum\b`),
		regexp.MustCompile(`(?im)^\s*re:\s`),
		regexp.MustCompile(`(?i)\bquestion presented\b`),
		regexp.MustCompile(`(?i)\bbrief answer\b`),
		regexp.MustCompile(`(?im)^\s*to:\s`),
	},
	CategoryLetter: {
		regexp.MustCompile(`(?im)^\s*dear\s+[A-Z]`),
		regexp.MustCompile(`(?i)\b(sincerely|very truly yours|best regards)\b`),
		regexp.MustCompile(`(?i)\bon behalf of\b`),
		regexp.MustCompile(`(?i)\bplease (find|be advised)\b`),
	},
	CategoryStatute: {
		regexp.MustCompile(`(?i)\bshall mean\b`),
		regexp.MustCompile(`(?i)\bpublic law\b`),
		regexp.MustCompile(`(?i)\bu\.s\.c\.`),
		regexp.MustCompile(`(?i)\bsubsection\b`),
		regexp.MustCompile(`(?i)\bis amended by\b`),
		regexp.MustCompile(`§`),
	},
}

// patternClassifier is the default pattern-table classifier.
type patternClassifier struct{}

// NewClassifier returns the default pattern-based document classifier.
func NewClassifier() Classifier {
	return patternClassifier{}
}

// Classify picks the highest-scoring category; a zero-score tie falls
// back to the generic category.
func (patternClassifier) Classify(text string) DocumentCategory {
	best := CategoryGeneral
	bestScore := 0
	// Deterministic order so equal scores resolve stably.
	for _, category := range []DocumentCategory{
		CategoryContract, CategoryCaseLaw, CategoryPleading,
		CategoryMemo, CategoryLetter, CategoryStatute,
	} {
		score := 0
		for _, pattern := range categoryPatterns[category] {
			if pattern.MatchString(text) {
				score++
			}
		}
		if score > bestScore {
			best = category
			bestScore = score
		}
	}
	return best
}
