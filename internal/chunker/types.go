package chunker

import "time"

// DocumentCategory classifies a whole document.
type DocumentCategory string

const (
	CategoryContract DocumentCategory = "contract"
	CategoryCaseLaw  DocumentCategory = "case_law"
	CategoryPleading DocumentCategory = "pleading"
	CategoryMemo     DocumentCategory = "memo"
	CategoryLetter   DocumentCategory = "letter"
	CategoryStatute  DocumentCategory = "statute"
	CategoryGeneral  DocumentCategory = "general"
)

// SemanticType classifies a single chunk.
type SemanticType string

const (
	SemanticCitation    SemanticType = "citation"
	SemanticDefinition  SemanticType = "definition"
	SemanticRecital     SemanticType = "recital"
	SemanticSignature   SemanticType = "signature"
	SemanticEnumeration SemanticType = "enumeration"
	SemanticBody        SemanticType = "body"
)

// RefKind classifies an extracted cross-reference.
type RefKind string

const (
	RefSection    RefKind = "section_ref"
	RefCase       RefKind = "case_citation"
	RefStatute    RefKind = "statute_citation"
	RefDefinition RefKind = "definition_ref"
)

// CrossReference is a structured reference extracted from chunk text,
// used later for relationship graph construction.
type CrossReference struct {
	Kind RefKind `json:"kind"`

	// Target is the referenced identifier (section number, case name,
	// statute citation, or defined term).
	Target string `json:"target"`

	// Context is a short snippet around the reference.
	Context string `json:"context"`
}

// DocumentInfo describes the document being chunked.
type DocumentInfo struct {
	ID        string
	Name      string
	Type      string
	CreatedAt time.Time
	Author    string
}

// MatterInfo describes the case/matter the document belongs to (optional).
type MatterInfo struct {
	Name         string
	Type         string
	PracticeArea string
	Jurisdiction string
}

// Chunk is a bounded text window from a document.
//
// Text is the raw chunk content, used for display, content hashing, and
// keyword search. ContextText is the raw text prefixed with a synthesized
// context header and is what embedding operates on - never shown to users.
type Chunk struct {
	DocumentID    string
	Position      int
	Text          string
	ContextText   string
	StartOffset   int
	EndOffset     int
	SectionMarker string
	SemanticType  SemanticType
	CrossRefs     []CrossReference
}
