package retrieval

import "strings"

// Intent classifies what kind of answer a query wants.
type Intent string

const (
	IntentCaseLawLookup  Intent = "case_law_lookup"
	IntentClauseSearch   Intent = "clause_search"
	IntentPrecedentChain Intent = "precedent_chain"
	IntentGeneral        Intent = "general"
)

// Keyword sets per intent, checked in priority order: precedent-chain
// phrasing is the most specific, clause phrasing the least.
var (
	precedentKeywords = []string{
		"precedent", "cites", "cited", "citing", "relied on", "relies on",
		"line of cases", "chain of authority", "overruled", "followed by",
	}
	caseLawKeywords = []string{
		" v. ", " v ", "case law", "opinion", "court held", "holding",
		"ruling", "decision", "appellate", "supreme court",
	}
	clauseKeywords = []string{
		"clause", "provision", "section", "article", "term", "covenant",
		"agreement", "contract", "warranty", "indemnification", "exhibit",
	}
)

// classifyIntent picks the query intent via keyword heuristics.
func classifyIntent(query string) Intent {
	q := " " + strings.ToLower(query) + " "
	for _, kw := range precedentKeywords {
		if strings.Contains(q, kw) {
			return IntentPrecedentChain
		}
	}
	for _, kw := range caseLawKeywords {
		if strings.Contains(q, kw) {
			return IntentCaseLawLookup
		}
	}
	for _, kw := range clauseKeywords {
		if strings.Contains(q, kw) {
			return IntentClauseSearch
		}
	}
	return IntentGeneral
}

// synonyms is the domain expansion table. Expansion adds terms; the
// original query text is always kept.
var synonyms = map[string][]string{
	"damages":         {"remedy", "relief", "compensation"},
	"terminate":       {"termination", "cancel", "rescind"},
	"termination":     {"terminate", "cancel", "rescind"},
	"indemnification": {"indemnity", "hold harmless"},
	"indemnify":       {"indemnity", "hold harmless"},
	"breach":          {"default", "violation", "nonperformance"},
	"jurisdiction":    {"venue", "forum", "governing law"},
	"confidential":    {"proprietary", "nondisclosure"},
	"negligence":      {"duty of care", "tort"},
	"assign":          {"assignment", "transfer", "delegate"},
	"liability":       {"liable", "responsibility"},
}

// expandQuery returns the synonym terms added for the query, without
// the original words.
func expandQuery(query string) []string {
	seen := map[string]bool{}
	var expanded []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, ".,;:?!\"'()")
		for _, syn := range synonyms[word] {
			if !seen[syn] {
				seen[syn] = true
				expanded = append(expanded, syn)
			}
		}
	}
	return expanded
}

// intentTypeAffinity weights document types per intent. Missing entries
// mean no adjustment.
var intentTypeAffinity = map[Intent]map[string]float64{
	IntentCaseLawLookup: {
		"case_law": 1.3,
		"statute":  1.1,
		"contract": 0.9,
	},
	IntentClauseSearch: {
		"contract": 1.3,
		"memo":     1.05,
		"case_law": 0.9,
	},
	IntentPrecedentChain: {
		"case_law": 1.35,
		"statute":  1.1,
	},
}
