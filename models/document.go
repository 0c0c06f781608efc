package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// DocumentStatus is the Document lifecycle state from spec §4.6.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "PENDING"
	DocumentStatusQueued     DocumentStatus = "QUEUED"
	DocumentStatusProcessing DocumentStatus = "PROCESSING"
	DocumentStatusCompleted  DocumentStatus = "COMPLETED"
	DocumentStatusFailed     DocumentStatus = "FAILED"
)

// legalTransitions encodes the state machine from spec §4.6. reset_for_reprocessing
// is a side channel, not a plain transition, and is handled separately by Store.
var legalTransitions = map[DocumentStatus]map[DocumentStatus]bool{
	DocumentStatusPending:    {DocumentStatusQueued: true},
	DocumentStatusQueued:     {DocumentStatusProcessing: true},
	DocumentStatusProcessing: {DocumentStatusCompleted: true, DocumentStatusFailed: true, DocumentStatusQueued: true},
	DocumentStatusCompleted:  {},
	DocumentStatusFailed:     {},
}

// CanTransition reports whether from -> to is a legal transition per spec §4.6.
// COMPLETED -> QUEUED and FAILED -> QUEUED are deliberately excluded here;
// those only happen via the explicit reset_for_reprocessing operation.
func CanTransition(from, to DocumentStatus) bool {
	next, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// Document is the central entity of the catalog (spec §3.1).
type Document struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Filename  string `gorm:"size:255;not null" json:"filename"`
	BlobKey   string `gorm:"size:512;not null" json:"blob_key"`
	SizeBytes *int64 `json:"size_bytes"`

	Status   DocumentStatus `gorm:"size:16;not null;index:idx_documents_status_created,priority:1;index:idx_documents_status_updated,priority:1" json:"status"`
	Progress int            `gorm:"not null;default:0" json:"progress"`
	Error    *string        `json:"error,omitempty"`

	CreatedAt   time.Time  `gorm:"not null;index:idx_documents_status_created,priority:2;index:,sort:desc" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null;index:idx_documents_status_updated,priority:2" json:"updated_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	ExtractedText *string           `json:"extracted_text,omitempty"`
	AIAnalysis    datatypes.JSON    `json:"ai_analysis,omitempty"`
	Keywords      datatypes.JSON    `json:"keywords,omitempty"`
	Metadata      datatypes.JSON    `json:"metadata,omitempty"`
	SearchVector  *pgvector.Vector  `gorm:"type:vector(1536)" json:"-"`
	FullTextIndex string            `gorm:"type:tsvector;->" json:"-"` // generated column, read-only from Go
	PreviewKey    *string           `json:"-"`

	TaxonomyMaps []DocumentTaxonomyMap `gorm:"foreignKey:DocumentID" json:"-"`
}

func (Document) TableName() string { return "documents" }

// IsIncomplete reports the spec §3.1 invariant violation: a COMPLETED
// document missing any required derived field is "incomplete" and eligible
// for reprocessing.
func (d *Document) IsIncomplete() bool {
	if d.Status != DocumentStatusCompleted {
		return false
	}
	return d.ExtractedText == nil || len(d.AIAnalysis) == 0 || d.SearchVector == nil
}

// AIAnalysisShape is the recognized structure of ai_analysis (spec §3.2).
// Unknown fields are preserved verbatim via the Extra map but ignored by
// search.
type AIAnalysisShape struct {
	Summary          string            `json:"summary"`
	DocumentType     string            `json:"document_type,omitempty"`
	CampaignType     string            `json:"campaign_type,omitempty"`
	DocumentTone     string            `json:"document_tone,omitempty"`
	Categories       []string          `json:"categories,omitempty"`
	KeywordMappings  []KeywordMapping  `json:"keyword_mappings,omitempty"`
	Extra            map[string]any    `json:"-"`
}

// KeywordMapping is a (verbatim_term, mapped_canonical_term?) pair emitted
// by the AI for a document (spec §3.2, Glossary).
type KeywordMapping struct {
	VerbatimTerm        string  `json:"verbatim_term"`
	MappedCanonicalTerm *string `json:"mapped_canonical_term,omitempty"`
}

// SearchQuery is the append-only analytics record from spec §3.1.
type SearchQuery struct {
	ID       int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	QueryText string   `gorm:"size:1024;not null" json:"query_text"`
	At        time.Time `gorm:"not null;index" json:"at"`
	ActorID  *string   `gorm:"size:255" json:"actor_id,omitempty"`
}

func (SearchQuery) TableName() string { return "search_queries" }
