package retrieval

import (
	"fmt"
	"sort"
)

// candidate is one hit from a single source, before fusion.
type candidate struct {
	key           string
	documentID    string
	position      int
	text          string
	similarity    float64
	score         float64
	docType       string
	sectionMarker string
	jurisdiction  string
	matterID      string
	year          int
	summaryLevel  int
	hopDepth      int
	edgeType      string
	provenance    string
}

// sourceList is one source's candidates, ranked best-first.
type sourceList struct {
	name       string
	candidates []candidate
}

// fused merges a candidate's appearances across sources. Chosen over
// score normalization because vector similarity, bm25, and edge
// confidence are not comparable distributions; RRF only consumes ranks.
type fused struct {
	candidate
	rrf         float64
	score       float64
	sources     []string
	provenance  []string
	multiSource bool
}

// fuse combines ranked source lists with reciprocal rank fusion:
// each appearance contributes 1/(k + rank). Candidates present in two
// or more sources are flagged multi-source-confirmed.
func fuse(lists []sourceList, k int) []*fused {
	if k <= 0 {
		k = 60
	}

	byKey := map[string]*fused{}
	var order []string

	for _, list := range lists {
		for rank, c := range list.candidates {
			f, ok := byKey[c.key]
			if !ok {
				f = &fused{candidate: c}
				byKey[c.key] = f
				order = append(order, c.key)
			} else {
				mergeCandidate(f, c)
			}
			f.rrf += 1.0 / float64(k+rank+1)
			f.sources = append(f.sources, list.name)
			f.provenance = append(f.provenance, c.provenance)
		}
	}

	results := make([]*fused, 0, len(order))
	for _, key := range order {
		f := byKey[key]
		f.multiSource = len(f.sources) >= 2
		results = append(results, f)
	}
	return results
}

// mergeCandidate fills fields the first-seen source left empty and
// keeps the best raw similarity.
func mergeCandidate(f *fused, c candidate) {
	if f.text == "" {
		f.text = c.text
	}
	if f.docType == "" {
		f.docType = c.docType
	}
	if f.sectionMarker == "" {
		f.sectionMarker = c.sectionMarker
	}
	if f.jurisdiction == "" {
		f.jurisdiction = c.jurisdiction
	}
	if f.matterID == "" {
		f.matterID = c.matterID
	}
	if f.year == 0 {
		f.year = c.year
	}
	if c.similarity > f.similarity {
		f.similarity = c.similarity
	}
}

// sortFused orders by weighted score descending, breaking ties by key
// for deterministic output.
func sortFused(results []*fused) {
	sort.SliceStable(results, func(a, b int) bool {
		if results[a].score != results[b].score {
			return results[a].score > results[b].score
		}
		return results[a].key < results[b].key
	})
}

func confirmedNote(sources int) string {
	return fmt.Sprintf("confirmed by %d sources", sources)
}
