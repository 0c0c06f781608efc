package store

// Schema holds the raw-SQL DDL for the pieces gorm's AutoMigrate can't
// express: the pgvector extension, the vector column, the generated
// tsvector column, and their indexes. Grounded on
// other_examples/.../pgedge-loadgen/internal/apps/docmgmt/schema.go, which
// uses the identical `vector(%d)` + `ivfflat ... vector_cosine_ops` shape
// for a document-catalog schema.
//
// AutoMigrate creates the base tables (documents, taxonomy_terms,
// taxonomy_synonyms, document_taxonomy_map, search_queries) from the gorm
// model tags; ExtensionDDL runs before it and the rest of this DDL runs
// afterward to add the columns/indexes gorm doesn't know how to declare
// natively. See cmd/migrate.
const (
	ExtensionDDL = `CREATE EXTENSION IF NOT EXISTS vector;`

	// %d is the configured vector dimension (spec §4.1, §6.3 vector_dim).
	VectorColumnDDLTemplate = `ALTER TABLE documents ADD COLUMN IF NOT EXISTS search_vector vector(%d);`

	FullTextColumnDDL = `
ALTER TABLE documents ADD COLUMN IF NOT EXISTS full_text_index tsvector
	GENERATED ALWAYS AS (to_tsvector('english', coalesce(filename, '') || ' ' || coalesce(extracted_text, ''))) STORED;`

	// %d is ivfflat's "lists" parameter; cmd/migrate passes a fixed 100 (see
	// DESIGN.md Open Question 4). There is no ann_index_params option, and
	// out_degree is not recorded anywhere.
	VectorIndexDDLTemplate = `
CREATE INDEX IF NOT EXISTS idx_documents_search_vector ON documents
	USING ivfflat (search_vector vector_cosine_ops) WITH (lists = %d);`

	FullTextIndexDDL = `CREATE INDEX IF NOT EXISTS idx_documents_full_text ON documents USING GIN (full_text_index);`

	KeywordsIndexDDL = `CREATE INDEX IF NOT EXISTS idx_documents_keywords ON documents USING GIN (keywords);`
)
