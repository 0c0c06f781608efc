package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/doccat/server/apperr"
	"github.com/doccat/server/blob"
	"github.com/doccat/server/config"
	"github.com/doccat/server/ingestion"
	"github.com/doccat/server/models"
	"github.com/doccat/server/search"
	"github.com/doccat/server/store"
)

// allowedExtensions is the upload allowlist from spec §6.1.
var allowedExtensions = map[string]bool{
	".pdf": true, ".jpg": true, ".jpeg": true, ".png": true, ".txt": true, ".docx": true,
}

// DocumentHandlers groups the spec §6.1 document endpoints. Grounded on the
// teacher's SkillHandlers{skillService} + NewSkillHandlers(...) constructor
// pattern (handlers/skill_handlers.go).
type DocumentHandlers struct {
	st       store.Store
	bl       blob.Store
	enqueuer *ingestion.Enqueuer
	engine   search.Engine
	cfg      config.IngestionConfig
}

func NewDocumentHandlers(st store.Store, bl blob.Store, enqueuer *ingestion.Enqueuer, engine search.Engine, cfg config.IngestionConfig) *DocumentHandlers {
	return &DocumentHandlers{st: st, bl: bl, enqueuer: enqueuer, engine: engine, cfg: cfg}
}

// sanitizeFilename rejects path traversal, null bytes, and empty names,
// per spec §6.1's upload validation.
func sanitizeFilename(name string) (string, error) {
	if name == "" {
		return "", apperr.New(apperr.KindValidation, "filename must not be empty")
	}
	if strings.ContainsRune(name, 0) {
		return "", apperr.New(apperr.KindValidation, "filename contains a null byte")
	}
	clean := filepath.Base(filepath.Clean(name))
	if clean == "." || clean == ".." || clean != name && strings.Contains(name, "..") {
		return "", apperr.New(apperr.KindValidation, "filename rejected (path traversal)")
	}
	if clean == "" {
		return "", apperr.New(apperr.KindValidation, "filename must not be empty")
	}
	return clean, nil
}

// Upload handles POST /documents/upload: one or more multipart files,
// each validated for extension/size and staggered into the ingestion
// pipeline (spec §4.6, §6.1).
func (h *DocumentHandlers) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		apperr.Respond(c, apperr.New(apperr.KindValidation, "expected multipart/form-data"))
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		apperr.Respond(c, apperr.New(apperr.KindValidation, "no files provided"))
		return
	}

	maxSize := h.cfg.MaxFileSizeBytes
	if maxSize <= 0 {
		maxSize = 100 * 1024 * 1024
	}

	type uploaded struct {
		Document *models.Document `json:"document"`
	}
	results := make([]uploaded, 0, len(files))

	for i, fh := range files {
		name, err := sanitizeFilename(fh.Filename)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		ext := strings.ToLower(filepath.Ext(name))
		if !allowedExtensions[ext] {
			apperr.Respond(c, apperr.New(apperr.KindValidation, fmt.Sprintf("extension %q is not allowed", ext)))
			return
		}
		if fh.Size <= 0 {
			apperr.Respond(c, apperr.New(apperr.KindValidation, "uploaded file is empty"))
			return
		}
		if fh.Size > maxSize {
			apperr.Respond(c, apperr.New(apperr.KindPayloadTooLarge, fmt.Sprintf("file %q exceeds the %d byte limit", name, maxSize)))
			return
		}

		f, err := fh.Open()
		if err != nil {
			apperr.Respond(c, apperr.Wrap(apperr.KindInternal, err, "failed to open uploaded file"))
			return
		}

		blobKey, err := h.bl.Put(c.Request.Context(), blob.NewKey(sanitizeKeySuffix(name)), f, mimeFromExt(ext))
		_ = f.Close()
		if err != nil {
			apperr.Respond(c, apperr.Wrap(apperr.KindStorage, err, "failed to store uploaded blob"))
			return
		}

		size := fh.Size
		doc, err := h.enqueuer.EnqueueUpload(c.Request.Context(), name, blobKey, &size, i)
		if err != nil {
			apperr.Respond(c, apperr.Wrap(apperr.KindStorage, err, "failed to enqueue document"))
			return
		}
		results = append(results, uploaded{Document: doc})
	}

	c.JSON(http.StatusCreated, gin.H{"documents": results})
}

// sanitizeKeySuffix strips characters blob.NewKey's fsStore backend
// rejects (path separators, leading dots) from the human-readable suffix
// it appends to the opaque random key.
func sanitizeKeySuffix(filename string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	s := r.Replace(filename)
	return strings.TrimLeft(s, ".")
}

func mimeFromExt(ext string) string {
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "text/plain"
	}
}

// Get handles GET /documents/{id}.
func (h *DocumentHandlers) Get(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	doc, err := h.st.Get(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.KindNotFound, err, "document not found"))
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Status handles GET /documents/{id}/status: a lightweight poll endpoint
// distinct from Get, returning only the lifecycle fields (spec §6.1).
func (h *DocumentHandlers) Status(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	doc, err := h.st.Get(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.KindNotFound, err, "document not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":       doc.ID,
		"status":   doc.Status,
		"progress": doc.Progress,
		"error":    doc.Error,
	})
}

// Download handles GET /documents/{id}/download: streams the original blob.
func (h *DocumentHandlers) Download(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	doc, err := h.st.Get(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.KindNotFound, err, "document not found"))
		return
	}
	h.streamBlob(c, doc.BlobKey, doc.Filename)
}

// Preview handles GET /documents/{id}/preview: streams the rendered
// preview blob, 404ing if none was produced (spec §4.6 step E is
// best-effort and may legitimately leave PreviewKey nil).
func (h *DocumentHandlers) Preview(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	doc, err := h.st.Get(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.KindNotFound, err, "document not found"))
		return
	}
	if doc.PreviewKey == nil || *doc.PreviewKey == "" {
		apperr.Respond(c, apperr.New(apperr.KindNotFound, "no preview available for this document"))
		return
	}
	h.streamBlob(c, *doc.PreviewKey, doc.Filename)
}

func (h *DocumentHandlers) streamBlob(c *gin.Context, key, filename string) {
	rc, err := h.bl.Get(c.Request.Context(), key)
	if err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.KindBlobMissing, err, "blob not found"))
		return
	}
	defer rc.Close()
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, err = io.Copy(c.Writer, rc)
	if err != nil {
		log.Warnw("blob stream interrupted", "key", key, "error", err)
	}
}

// Reprocess handles POST /documents/{id}/reprocess (spec §4.6).
func (h *DocumentHandlers) Reprocess(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if _, err := h.st.Get(c.Request.Context(), id); err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.KindNotFound, err, "document not found"))
		return
	}
	if err := h.enqueuer.ResetForReprocessing(c.Request.Context(), id); err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.KindStorage, err, "failed to reset document for reprocessing"))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": models.DocumentStatusQueued})
}

// Search handles GET /documents/search (spec §4.7, §6.1).
func (h *DocumentHandlers) Search(c *gin.Context) {
	var req models.SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		apperr.Respond(c, apperr.New(apperr.KindValidation, "invalid search parameters"))
		return
	}
	result, err := h.engine.Search(c.Request.Context(), req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func parseID(c *gin.Context) (int64, error) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.New(apperr.KindValidation, "id must be an integer")
	}
	return id, nil
}
