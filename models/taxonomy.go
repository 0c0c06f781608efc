package models

// TaxonomyTerm is a canonical term in the controlled vocabulary hierarchy
// (spec §3.1). ParentID is a self-reference; the Taxonomy Engine never sets
// it and performs no cycle check on it.
type TaxonomyTerm struct {
	ID              int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	Term            string  `gorm:"size:255;not null;uniqueIndex" json:"term"`
	PrimaryCategory *string `gorm:"size:255;index" json:"primary_category,omitempty"`
	Subcategory     *string `gorm:"size:255" json:"subcategory,omitempty"`
	Description     *string `json:"description,omitempty"`
	ParentID        *int64  `json:"parent_id,omitempty"`

	Synonyms []TaxonomySynonym `gorm:"foreignKey:TermID" json:"synonyms,omitempty"`
}

func (TaxonomyTerm) TableName() string { return "taxonomy_terms" }

// TaxonomySynonym is an alternative spelling/label for a TaxonomyTerm,
// unique on (term_id, synonym) per spec §3.1.
type TaxonomySynonym struct {
	ID      int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TermID  int64  `gorm:"not null;uniqueIndex:idx_term_synonym,priority:1" json:"term_id"`
	Synonym string `gorm:"size:255;not null;uniqueIndex:idx_term_synonym,priority:2" json:"synonym"`
}

func (TaxonomySynonym) TableName() string { return "taxonomy_synonyms" }

// DocumentTaxonomyMap is the many-to-many association between Document and
// TaxonomyTerm (spec §3.1). Deleted when either side is deleted.
type DocumentTaxonomyMap struct {
	DocumentID int64 `gorm:"primaryKey;autoIncrement:false" json:"document_id"`
	TermID     int64 `gorm:"primaryKey;autoIncrement:false" json:"term_id"`
}

func (DocumentTaxonomyMap) TableName() string { return "document_taxonomy_map" }

// TaxonomyRow is the tabular source shape accepted by initialize (spec §4.4).
type TaxonomyRow struct {
	PrimaryCategory string
	Subcategory     string
	Term            string
	Synonyms        []string
}

// Hierarchy is the nested shape returned by hierarchy() (spec §4.4):
// primary -> subcategory -> [term].
type Hierarchy map[string]map[string][]string

// Statistics is the shape returned by statistics() (spec §4.4).
type Statistics struct {
	TotalTerms        int `json:"total_terms"`
	TotalSynonyms     int `json:"total_synonyms"`
	PrimaryCategories int `json:"primary_categories"`
}

// ValidationResult is the shape returned by validate_mapping (spec §4.4).
type ValidationResult struct {
	Valid    []KeywordMapping `json:"valid"`
	Rejected []KeywordMapping `json:"rejected"`
}
