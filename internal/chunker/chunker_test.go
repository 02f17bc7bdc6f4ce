package chunker

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDoc() DocumentInfo {
	return DocumentInfo{
		ID:        "doc-1",
		Name:      "Master Services Agreement",
		Type:      "contract",
		CreatedAt: time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC),
		Author:    "jsmith",
	}
}

func contractText() string {
	var b strings.Builder
	b.WriteString("MASTER SERVICES AGREEMENT\n\n")
	b.WriteString("This Agreement is made under the laws of the State of Delaware between the parties.\n\n")
	b.WriteString("WHEREAS, the parties desire to enter into this Agreement;\n\n")
	for i := 1; i <= 4; i++ {
		b.WriteString(fmt.Sprintf("ARTICLE %d. OBLIGATIONS\n\n", i))
		for j := 0; j < 3; j++ {
			b.WriteString(strings.Repeat(fmt.Sprintf("The Contractor shall perform services under clause %d.%d with due care. ", i, j), 12))
			b.WriteString("\n\n")
		}
	}
	b.WriteString("IN WITNESS WHEREOF, the parties have executed this Agreement.\n/s/ ________\n")
	return b.String()
}

func TestChunkSizeBounds(t *testing.T) {
	c := New(DefaultConfig(), nil, nil)
	result := c.Chunk(testDoc(), nil, contractText())

	require.NotEmpty(t, result.Chunks)
	assert.Equal(t, CategoryContract, result.Category)

	// Group chunks by section to identify section-final chunks, which are
	// allowed below the minimum.
	bySection := make(map[string][]Chunk)
	for _, ch := range result.Chunks {
		bySection[ch.SectionMarker] = append(bySection[ch.SectionMarker], ch)
	}
	for marker, chunks := range bySection {
		for i, ch := range chunks {
			// Overlap is prepended on continuation chunks, so allow it on
			// top of the ceiling.
			maxAllowed := DefaultConfig().MaxSize + DefaultConfig().Overlap + 1
			assert.LessOrEqual(t, len(ch.Text), maxAllowed,
				"section %q chunk %d exceeds ceiling", marker, i)
			if i < len(chunks)-1 {
				assert.GreaterOrEqual(t, len(ch.Text), DefaultConfig().MinSize,
					"section %q chunk %d under minimum", marker, i)
			}
		}
	}
}

func TestChunkPositionsAreOrdered(t *testing.T) {
	c := New(DefaultConfig(), nil, nil)
	result := c.Chunk(testDoc(), nil, contractText())

	for i, ch := range result.Chunks {
		assert.Equal(t, i, ch.Position)
		assert.Equal(t, "doc-1", ch.DocumentID)
	}
}

func TestShortTextYieldsZeroChunks(t *testing.T) {
	c := New(DefaultConfig(), nil, nil)
	result := c.Chunk(testDoc(), nil, "Too short to chunk.")
	assert.Empty(t, result.Chunks)
}

func TestUnstructuredTextFallsBackToParagraphs(t *testing.T) {
	c := New(DefaultConfig(), nil, nil)
	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString(strings.Repeat("plain prose without any recognizable legal structure at all. ", 8))
		b.WriteString("\n\n")
	}

	result := c.Chunk(testDoc(), nil, b.String())
	require.NotEmpty(t, result.Chunks)
	for _, ch := range result.Chunks {
		assert.Empty(t, ch.SectionMarker)
	}
}

func TestOverlapCarriedAcrossSplit(t *testing.T) {
	cfg := DefaultConfig()
	c := New(cfg, nil, nil)

	// One long unstructured section forced to split.
	text := strings.Repeat("The indemnification obligations survive termination of this Agreement. ", 40)
	paragraphs := strings.Repeat(text+"\n\n", 2)

	result := c.Chunk(testDoc(), nil, paragraphs)
	require.Greater(t, len(result.Chunks), 1)

	prev := result.Chunks[0]
	next := result.Chunks[1]
	overlapTail := tail(prev.Text, cfg.Overlap)
	assert.True(t, strings.HasPrefix(next.Text, overlapTail),
		"continuation chunk must start with the previous chunk's tail")
}

func TestContextualTextPrefixesHeader(t *testing.T) {
	c := New(DefaultConfig(), nil, nil)
	matter := &MatterInfo{Name: "Acme v. Initech", Type: "litigation", PracticeArea: "commercial"}
	result := c.Chunk(testDoc(), matter, contractText())

	require.NotEmpty(t, result.Chunks)
	first := result.Chunks[0]
	assert.True(t, strings.HasPrefix(first.ContextText, "["))
	assert.Contains(t, first.ContextText, "Master Services Agreement")
	assert.Contains(t, first.ContextText, "Acme v. Initech")
	assert.Contains(t, first.ContextText, "Delaware")
	assert.Contains(t, first.ContextText, "2023-06-15")
	assert.True(t, strings.HasSuffix(first.ContextText, first.Text))
	// The raw text never carries the header.
	assert.False(t, strings.HasPrefix(first.Text, "["))
}

func TestClassifier(t *testing.T) {
	tests := []struct {
		name string
		text string
		want DocumentCategory
	}{
		{
			name: "contract",
			text: "This Agreement is entered into by the parties. WHEREAS the parties agree; governing law applies. IN WITNESS WHEREOF.",
			want: CategoryContract,
		},
		{
			name: "case law",
			text: "Smith v. Jones, 123 F. 3d 456. The opinion of the court was delivered. Appellant argues error; we affirm.",
			want: CategoryCaseLaw,
		},
		{
			name: "pleading",
			text: "COMES NOW the Plaintiff and files this Complaint. Case No. 22-1234. Prayer for relief follows the cause of action.",
			want: CategoryPleading,
		},
		{
			name: "no signal",
			text: "The quarterly report shows steady growth in all segments.",
			want: CategoryGeneral,
		},
	}

	classifier := NewClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifier.Classify(tt.text))
		})
	}
}

func TestClassifyChunkPriority(t *testing.T) {
	tests := []struct {
		name string
		text string
		want SemanticType
	}{
		{
			name: "citation block",
			text: "See 123 U.S. 456 and 42 U.S.C. § 1983 for the controlling standard.",
			want: SemanticCitation,
		},
		{
			name: "definition",
			text: `"Confidential Information" shall mean any nonpublic information disclosed by a party.`,
			want: SemanticDefinition,
		},
		{
			name: "recital",
			text: "WHEREAS, the parties wish to set forth their mutual understanding;",
			want: SemanticRecital,
		},
		{
			name: "signature",
			text: "IN WITNESS WHEREOF, the undersigned have executed this Agreement.\nBy: ____",
			want: SemanticSignature,
		},
		{
			name: "enumeration",
			text: "1. First obligation\n2. Second obligation\n3. Third obligation\n",
			want: SemanticEnumeration,
		},
		{
			name: "body",
			text: "The contractor will deliver the services described above in a timely manner.",
			want: SemanticBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyChunk(tt.text))
		})
	}
}

func TestExtractCrossRefs(t *testing.T) {
	text := `Pursuant to Section 4.2, the parties refer to Smith v. Jones and 42 U.S.C. § 1983. ` +
		`The term is used as defined in "Net Revenue".`

	refs := extractCrossRefs(text)
	kinds := make(map[RefKind][]string)
	for _, r := range refs {
		kinds[r.Kind] = append(kinds[r.Kind], r.Target)
	}

	assert.Contains(t, kinds[RefSection], "4.2")
	require.NotEmpty(t, kinds[RefCase])
	assert.Contains(t, kinds[RefCase][0], "Smith v. Jones")
	require.NotEmpty(t, kinds[RefStatute])
	assert.Contains(t, kinds[RefStatute][0], "1983")
}

func TestInferJurisdiction(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		matter *MatterInfo
		want   string
	}{
		{
			name: "state from governing law",
			text: "This Agreement is governed by the laws of the State of Delaware.",
			want: "Delaware",
		},
		{
			name: "federal district court",
			text: "IN THE UNITED STATES DISTRICT COURT FOR THE DISTRICT OF Oregon",
			want: "federal (Oregon)",
		},
		{
			name:   "matter hint wins",
			text:   "laws of the State of Delaware",
			matter: &MatterInfo{Jurisdiction: "New York"},
			want:   "New York",
		},
		{
			name: "no signal",
			text: "An unremarkable memo about scheduling.",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inferJurisdiction(tt.text, tt.matter))
		})
	}
}
