package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/doccat/server/apperr"
	"github.com/doccat/server/config"
	"github.com/doccat/server/logger"
	"github.com/doccat/server/models"
)

var log = logger.New("store")

// gormStore is the production Store implementation: gorm for the relational
// tables (documents, taxonomy_terms, taxonomy_synonyms,
// document_taxonomy_map, search_queries), a raw pgx pool for the vector and
// tsvector statements gorm's query builder can't express. Grounded on the
// teacher's cmd/main.go initDB() connection-pool setup and on
// other_examples' pgedge-loadgen docmgmt/schema.go vector(%d)/ivfflat
// pattern (see DESIGN.md).
type gormStore struct {
	db   *gorm.DB
	pool *pgxpool.Pool
	cfg  *config.Config
}

// New opens the gorm connection, configures the pool the way the teacher's
// initDB does, and wires a parallel pgx pool for raw vector queries.
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, pool *pgxpool.Pool) (Store, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.MaxLifetime) * time.Second)

	return &gormStore{db: db, pool: pool, cfg: cfg}, nil
}

func (s *gormStore) CreateDocument(ctx context.Context, filename, blobKey string, size *int64) (*models.Document, error) {
	now := time.Now()
	doc := &models.Document{
		Filename:  filename,
		BlobKey:   blobKey,
		SizeBytes: size,
		Status:    models.DocumentStatusPending,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "create document")
	}
	return doc, nil
}

func (s *gormStore) Get(ctx context.Context, id int64) (*models.Document, error) {
	var doc models.Document
	if err := s.db.WithContext(ctx).Preload("TaxonomyMaps").First(&doc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "document not found")
		}
		return nil, apperr.Wrap(apperr.KindStorage, err, "get document")
	}
	return &doc, nil
}

// UpdateStatus is atomic and rejects illegal transitions per spec §4.6,
// serialized by row-level locking (SELECT ... FOR UPDATE) so two workers
// racing on the same document never both succeed.
func (s *gormStore) UpdateStatus(ctx context.Context, id int64, status models.DocumentStatus, progress *int, errMsg *string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc models.Document
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&doc, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.KindNotFound, "document not found")
			}
			return apperr.Wrap(apperr.KindStorage, err, "lock document")
		}
		// same-status writes are progress updates (e.g. PROCESSING 25 -> 55)
		if doc.Status != status && !models.CanTransition(doc.Status, status) {
			return apperr.New(apperr.KindConflictingState, fmt.Sprintf("illegal transition %s -> %s", doc.Status, status))
		}
		updates := map[string]any{"status": status, "updated_at": time.Now()}
		if progress != nil {
			updates["progress"] = *progress
		}
		if errMsg != nil {
			updates["error"] = *errMsg
		}
		if status == models.DocumentStatusCompleted {
			updates["processed_at"] = time.Now()
		}
		if err := tx.Model(&models.Document{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return apperr.Wrap(apperr.KindStorage, err, "update status")
		}
		return nil
	})
}

func (s *gormStore) UpdateContent(ctx context.Context, id int64, extractedText string, aiAnalysis, keywords, metadata []byte, previewKey *string) error {
	updates := map[string]any{
		"extracted_text": extractedText,
		"ai_analysis":     aiAnalysis,
		"keywords":        keywords,
		"metadata":        metadata,
		"updated_at":      time.Now(),
	}
	if previewKey != nil {
		updates["preview_key"] = *previewKey
	}
	if err := s.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "update content")
	}
	// full_text_index is a generated tsvector column (see cmd/migrate DDL);
	// Postgres re-derives it automatically on UPDATE, no extra statement needed.
	return nil
}

func (s *gormStore) UpdateEmbedding(ctx context.Context, id int64, vector []float32) error {
	if len(vector) != s.cfg.AI.VectorDim {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("embedding length %d != configured dimension %d", len(vector), s.cfg.AI.VectorDim))
	}
	v := toVector(vector)
	if err := s.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", id).
		Update("search_vector", v).Error; err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "update embedding")
	}
	return nil
}

// ResetForReprocessing clears derived fields and the taxonomy map, and
// resets the document to QUEUED (spec §4.1, §4.6). Rejected while the
// document is PROCESSING: an operator must wait for a terminal state.
func (s *gormStore) ResetForReprocessing(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc models.Document
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&doc, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.KindNotFound, "document not found")
			}
			return apperr.Wrap(apperr.KindStorage, err, "lock document")
		}
		if doc.Status == models.DocumentStatusProcessing {
			return apperr.New(apperr.KindConflictingState, "cannot reprocess a document that is currently processing")
		}
		if err := tx.Where("document_id = ?", id).Delete(&models.DocumentTaxonomyMap{}).Error; err != nil {
			return apperr.Wrap(apperr.KindStorage, err, "clear taxonomy map")
		}
		updates := map[string]any{
			"status":         models.DocumentStatusQueued,
			"progress":       0,
			"error":          nil,
			"extracted_text": nil,
			"ai_analysis":    nil,
			"keywords":       nil,
			"search_vector":  nil,
			"updated_at":     time.Now(),
		}
		if err := tx.Model(&models.Document{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return apperr.Wrap(apperr.KindStorage, err, "reset document")
		}
		return nil
	})
}

func (s *gormStore) Delete(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&models.DocumentTaxonomyMap{}).Error; err != nil {
			return apperr.Wrap(apperr.KindStorage, err, "cascade delete taxonomy map")
		}
		if err := tx.Delete(&models.Document{}, "id = ?", id).Error; err != nil {
			return apperr.Wrap(apperr.KindStorage, err, "delete document")
		}
		return nil
	})
}

func (s *gormStore) QueryDocuments(ctx context.Context, filter models.DocumentFilter, sort models.SortKey, dir models.SortDirection, page models.Page) (*models.QueryResult, error) {
	q := s.db.WithContext(ctx).Model(&models.Document{})
	q = applyFilter(q, filter)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "count documents")
	}

	orderCol := map[models.SortKey]string{
		models.SortRelevance: "created_at", // relevance sort is handled by the search package, not Store
		models.SortCreatedAt: "created_at",
		models.SortFilename:  "filename",
		models.SortSize:      "size_bytes",
	}[sort]
	if orderCol == "" {
		orderCol = "created_at"
	}
	order := orderCol + " " + string(dir)

	var rows []models.Document
	if err := q.Order(order).Offset(page.Offset()).Limit(page.PerPage).Find(&rows).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "query documents")
	}
	return &models.QueryResult{Rows: rows, Total: total}, nil
}

func applyFilter(q *gorm.DB, filter models.DocumentFilter) *gorm.DB {
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.CanonicalTerm != nil && *filter.CanonicalTerm != "" {
		q = q.Joins("JOIN document_taxonomy_map dtm ON dtm.document_id = documents.id").
			Joins("JOIN taxonomy_terms tt ON tt.id = dtm.term_id").
			Where("tt.term = ?", *filter.CanonicalTerm)
	}
	if filter.PrimaryCategory != nil && *filter.PrimaryCategory != "" {
		q = q.Where("EXISTS (SELECT 1 FROM document_taxonomy_map dtm2 JOIN taxonomy_terms tt2 ON tt2.id = dtm2.term_id "+
			"WHERE dtm2.document_id = documents.id AND tt2.primary_category = ?)", *filter.PrimaryCategory)
	}
	if filter.FreeText != nil && *filter.FreeText != "" {
		q = q.Where("full_text_index @@ plainto_tsquery('english', ?)", *filter.FreeText)
	}
	return q
}

// taxonomyFilterSQL renders DocumentFilter's status/taxonomy predicates as a
// raw-SQL WHERE suffix (" AND ...") plus the positional args it consumes,
// for the pgx-pool queries (VectorSearch, FulltextSearch) that can't use
// gorm's query builder. argStart is the last positional parameter already
// used by the caller's base query; appended placeholders start at argStart+1.
// Mirrors applyFilter's predicates so every Store read path honors the same
// filter (spec §4.7).
func taxonomyFilterSQL(filter models.DocumentFilter, argStart int) (where string, args []any) {
	n := argStart
	var conds []string
	if filter.Status != nil {
		n++
		conds = append(conds, fmt.Sprintf("documents.status = $%d", n))
		args = append(args, *filter.Status)
	}
	if filter.CanonicalTerm != nil && *filter.CanonicalTerm != "" {
		n++
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM document_taxonomy_map dtm JOIN taxonomy_terms tt ON tt.id = dtm.term_id "+
				"WHERE dtm.document_id = documents.id AND tt.term = $%d)", n))
		args = append(args, *filter.CanonicalTerm)
	}
	if filter.PrimaryCategory != nil && *filter.PrimaryCategory != "" {
		n++
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM document_taxonomy_map dtm JOIN taxonomy_terms tt ON tt.id = dtm.term_id "+
				"WHERE dtm.document_id = documents.id AND tt.primary_category = $%d)", n))
		args = append(args, *filter.PrimaryCategory)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(conds, " AND "), args
}

// VectorSearch runs an approximate nearest-neighbor query using pgvector's
// cosine-distance operator (<=>) via the raw pgx pool, matching the DDL in
// cmd/migrate (ivfflat ... vector_cosine_ops).
func (s *gormStore) VectorSearch(ctx context.Context, queryVec []float32, k int, filter models.DocumentFilter) ([]models.VectorMatch, error) {
	v := toVector(queryVec)
	where, filterArgs := taxonomyFilterSQL(filter, 2)
	sql := fmt.Sprintf(`SELECT id, 1 - (search_vector <=> $1) AS cosine_score
	        FROM documents
	        WHERE search_vector IS NOT NULL%s
	        ORDER BY search_vector <=> $1
	        LIMIT $2`, where)
	args := append([]any{v, k}, filterArgs...)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "vector search")
	}
	defer rows.Close()

	var out []models.VectorMatch
	for rows.Next() {
		var m models.VectorMatch
		if err := rows.Scan(&m.DocumentID, &m.CosineScore); err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, err, "scan vector match")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// FulltextSearch ranks documents by Postgres's English-stemmed tsvector
// (generated column, see cmd/migrate), matching spec §4.1's "language-aware
// tokenization (English stemmer, stopwords)" requirement.
func (s *gormStore) FulltextSearch(ctx context.Context, queryText string, filter models.DocumentFilter) ([]models.TextMatch, error) {
	where, filterArgs := taxonomyFilterSQL(filter, 1)
	sql := fmt.Sprintf(`SELECT id, ts_rank_cd(full_text_index, plainto_tsquery('english', $1)) AS rank
	        FROM documents
	        WHERE full_text_index @@ plainto_tsquery('english', $1)%s
	        ORDER BY rank DESC
	        LIMIT 100`, where)
	args := append([]any{queryText}, filterArgs...)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "fulltext search")
	}
	defer rows.Close()

	var out []models.TextMatch
	for rows.Next() {
		var m models.TextMatch
		if err := rows.Scan(&m.DocumentID, &m.Rank); err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, err, "scan text match")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *gormStore) TaxonomyBulkUpsert(ctx context.Context, terms []models.TaxonomyTerm, synonyms []models.TaxonomySynonym) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range terms {
			t := terms[i]
			if err := tx.Where("term = ?", t.Term).FirstOrCreate(&t).Error; err != nil {
				return apperr.Wrap(apperr.KindStorage, err, "upsert taxonomy term")
			}
		}
		for i := range synonyms {
			sy := synonyms[i]
			if err := tx.Where("term_id = ? AND synonym = ?", sy.TermID, sy.Synonym).FirstOrCreate(&sy).Error; err != nil {
				return apperr.Wrap(apperr.KindStorage, err, "upsert taxonomy synonym")
			}
		}
		return nil
	})
}

func (s *gormStore) GetTaxonomyTerm(ctx context.Context, id int64) (*models.TaxonomyTerm, error) {
	var t models.TaxonomyTerm
	if err := s.db.WithContext(ctx).Preload("Synonyms").First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "taxonomy term not found")
		}
		return nil, apperr.Wrap(apperr.KindStorage, err, "get taxonomy term")
	}
	return &t, nil
}

func (s *gormStore) FindTaxonomyTermByName(ctx context.Context, term string) (*models.TaxonomyTerm, error) {
	var t models.TaxonomyTerm
	err := s.db.WithContext(ctx).Preload("Synonyms").Where("LOWER(term) = LOWER(?)", term).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "find taxonomy term")
	}
	return &t, nil
}

func (s *gormStore) ListTaxonomyTerms(ctx context.Context) ([]models.TaxonomyTerm, error) {
	var terms []models.TaxonomyTerm
	if err := s.db.WithContext(ctx).Preload("Synonyms").Find(&terms).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "list taxonomy terms")
	}
	return terms, nil
}

func (s *gormStore) FindOrCreateTaxonomyTerm(ctx context.Context, term string, primaryCategory, subcategory *string) (*models.TaxonomyTerm, error) {
	var t models.TaxonomyTerm
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("term = ?", term).First(&t)
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			t = models.TaxonomyTerm{Term: term, PrimaryCategory: primaryCategory, Subcategory: subcategory}
			return tx.Create(&t).Error
		}
		return res.Error
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "find or create taxonomy term")
	}
	return &t, nil
}

func (s *gormStore) SetDocumentTaxonomyMap(ctx context.Context, documentID int64, termIDs []int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&models.DocumentTaxonomyMap{}).Error; err != nil {
			return apperr.Wrap(apperr.KindStorage, err, "clear taxonomy map")
		}
		for _, termID := range termIDs {
			m := models.DocumentTaxonomyMap{DocumentID: documentID, TermID: termID}
			if err := tx.Create(&m).Error; err != nil {
				return apperr.Wrap(apperr.KindStorage, err, "create taxonomy map entry")
			}
		}
		return nil
	})
}

func (s *gormStore) RecordSearchQuery(ctx context.Context, queryText string, actorID *string) error {
	q := models.SearchQuery{QueryText: queryText, At: time.Now(), ActorID: actorID}
	if err := s.db.WithContext(ctx).Create(&q).Error; err != nil {
		// analytics logging must never fail the caller's query (spec §4.7)
		log.Warnw("failed to record search query", "error", err)
	}
	return nil
}

func (s *gormStore) TopQueries(ctx context.Context, limit, sinceDays int) ([]TopQuery, error) {
	var out []TopQuery
	err := s.db.WithContext(ctx).Model(&models.SearchQuery{}).
		Select("query_text, COUNT(*) as count").
		Where("at >= ?", time.Now().AddDate(0, 0, -sinceDays)).
		Group("query_text").
		Order("count DESC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "top queries")
	}
	return out, nil
}

// FacetCounts groups documents by their mapped taxonomy terms' primary
// category and subcategory, over the whole corpus (not the result set),
// per spec §4.7.
func (s *gormStore) FacetCounts(ctx context.Context) ([]FacetCount, error) {
	var out []FacetCount
	err := s.db.WithContext(ctx).Table("document_taxonomy_map dtm").
		Select("tt.primary_category AS primary_category, tt.subcategory AS subcategory, COUNT(DISTINCT dtm.document_id) AS count").
		Joins("JOIN taxonomy_terms tt ON tt.id = dtm.term_id").
		Group("tt.primary_category, tt.subcategory").
		Scan(&out).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "facet counts")
	}
	return out, nil
}

func (s *gormStore) FindStuckDocuments(ctx context.Context, olderThanSeconds int) ([]models.Document, error) {
	cutoff := time.Now().Add(-time.Duration(olderThanSeconds) * time.Second)
	var docs []models.Document
	err := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []models.DocumentStatus{models.DocumentStatusPending, models.DocumentStatusQueued}, cutoff).
		Find(&docs).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "find stuck documents")
	}
	return docs, nil
}

