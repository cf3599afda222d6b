// Package api exposes the admin and search HTTP surface.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/support-search/internal/domain"
	"github.com/jonesrussell/support-search/internal/elasticsearch"
	"github.com/jonesrussell/support-search/internal/elasticsearch/mappings"
	"github.com/jonesrussell/support-search/internal/indexer"
	"github.com/jonesrussell/support-search/internal/lifecycle"
	"github.com/jonesrussell/support-search/internal/logger"
	"github.com/jonesrussell/support-search/internal/query"
)

// Lifecycle is the slice of the lifecycle manager the handlers use.
type Lifecycle interface {
	EnsureAll(ctx context.Context) error
	Status(ctx context.Context) ([]lifecycle.TypeStatus, error)
	MigrateWrites(ctx context.Context, docType string) (old, next string, err error)
	MigrateReads(ctx context.Context, docType string) error
	ListGenerations(ctx context.Context, docType string) ([]string, error)
	RetireIndex(ctx context.Context, docType, name string) error
	UpdateAnalysis(ctx context.Context, docType string) error
	ReloadSynonyms(ctx context.Context, docType string) error
}

// Syncer is the slice of the indexer the handlers use.
type Syncer interface {
	ReindexAll(ctx context.Context, docType string, source domain.Source) (*indexer.BulkResult, error)
	RemoveFromField(ctx context.Context, docType, field, value string) error
	GetDocument(ctx context.Context, docType string, id int64) (map[string]any, error)
}

// SearchService executes search requests.
type SearchService interface {
	Search(ctx context.Context, req *query.Request) (*query.Result, error)
}

// Pinger checks cluster connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler carries the dependencies of the HTTP surface.
type Handler struct {
	lifecycle Lifecycle
	syncer    Syncer
	search    SearchService
	source    domain.Source
	cluster   Pinger
	log       logger.Logger
}

// NewHandler creates an API handler.
func NewHandler(lc Lifecycle, sync Syncer, search SearchService, source domain.Source, cluster Pinger, log logger.Logger) *Handler {
	return &Handler{
		lifecycle: lc,
		syncer:    sync,
		search:    search,
		source:    source,
		cluster:   cluster,
		log:       log,
	}
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// ReadinessCheck handles GET /ready. Ready means the cluster answers.
func (h *Handler) ReadinessCheck(c *gin.Context) {
	if err := h.cluster.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Status handles GET /api/v1/status.
func (h *Handler) Status(c *gin.Context) {
	statuses, err := h.lifecycle.Status(c.Request.Context())
	if err != nil {
		h.fail(c, "status check failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"types": statuses})
}

// InitIndices handles POST /api/v1/indices/init.
func (h *Handler) InitIndices(c *gin.Context) {
	if err := h.lifecycle.EnsureAll(c.Request.Context()); err != nil {
		h.fail(c, "index initialization failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "initialized"})
}

// ListGenerations handles GET /api/v1/indices/:doc_type.
func (h *Handler) ListGenerations(c *gin.Context) {
	docType := c.Param("doc_type")
	names, err := h.lifecycle.ListGenerations(c.Request.Context(), docType)
	if err != nil {
		h.fail(c, "listing index generations failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"doc_type": docType, "indices": names})
}

// Migrate handles POST /api/v1/indices/:doc_type/migrate. It runs the full
// zero-downtime sequence: new write generation, backfill from the source,
// then repoint reads.
func (h *Handler) Migrate(c *gin.Context) {
	docType := c.Param("doc_type")
	ctx := c.Request.Context()

	old, next, err := h.lifecycle.MigrateWrites(ctx, docType)
	if err != nil {
		h.fail(c, "write migration failed", err)
		return
	}

	res, err := h.syncer.ReindexAll(ctx, docType, h.source)
	if err != nil {
		var bulkErr *elasticsearch.BulkError
		if !errors.As(err, &bulkErr) {
			h.fail(c, "backfill failed", err)
			return
		}
		// Partial failures are reported but do not block the migration;
		// the affected documents resync on their next live update.
		h.log.Warn("backfill completed with failures",
			logger.String("doc_type", docType),
			logger.Int("failed", len(bulkErr.Items)),
		)
	}

	if err := h.lifecycle.MigrateReads(ctx, docType); err != nil {
		h.fail(c, "read migration failed", err)
		return
	}

	response := gin.H{
		"doc_type":  docType,
		"old_index": old,
		"new_index": next,
	}
	if res != nil {
		response["indexed"] = res.Indexed
		response["failed"] = res.Failed
	}
	c.JSON(http.StatusOK, response)
}

// Reindex handles POST /api/v1/indices/:doc_type/reindex.
func (h *Handler) Reindex(c *gin.Context) {
	docType := c.Param("doc_type")

	res, err := h.syncer.ReindexAll(c.Request.Context(), docType, h.source)
	var bulkErr *elasticsearch.BulkError
	if err != nil && !errors.As(err, &bulkErr) {
		h.fail(c, "reindex failed", err)
		return
	}

	response := gin.H{"doc_type": docType}
	if res != nil {
		response["indexed"] = res.Indexed
		response["deleted"] = res.Deleted
		response["failed"] = res.Failed
	}
	if bulkErr != nil {
		response["errors"] = bulkErr.Items
	}
	c.JSON(http.StatusOK, response)
}

// UpdateAnalysis handles POST /api/v1/indices/:doc_type/analysis.
func (h *Handler) UpdateAnalysis(c *gin.Context) {
	docType := c.Param("doc_type")
	if err := h.lifecycle.UpdateAnalysis(c.Request.Context(), docType); err != nil {
		h.fail(c, "analysis update failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"doc_type": docType, "status": "updated"})
}

// ReloadSynonyms handles POST /api/v1/indices/:doc_type/synonyms/reload.
func (h *Handler) ReloadSynonyms(c *gin.Context) {
	docType := c.Param("doc_type")
	if err := h.lifecycle.ReloadSynonyms(c.Request.Context(), docType); err != nil {
		var unsupported *elasticsearch.UnsupportedError
		if errors.As(err, &unsupported) {
			c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
			return
		}
		h.fail(c, "synonym reload failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"doc_type": docType, "status": "reloaded"})
}

// RetireIndex handles DELETE /api/v1/indices/:doc_type/:index_name.
func (h *Handler) RetireIndex(c *gin.Context) {
	docType := c.Param("doc_type")
	name := c.Param("index_name")

	if err := h.lifecycle.RetireIndex(c.Request.Context(), docType, name); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"index": name, "status": "retired"})
}

// RemoveFromField handles POST /api/v1/indices/:doc_type/remove-field-value.
func (h *Handler) RemoveFromField(c *gin.Context) {
	docType := c.Param("doc_type")

	var req struct {
		Field string `json:"field" binding:"required"`
		Value string `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.syncer.RemoveFromField(c.Request.Context(), docType, req.Field, req.Value); err != nil {
		h.fail(c, "field removal failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"doc_type": docType, "field": req.Field, "status": "removed"})
}

// GetDocument handles GET /api/v1/documents/:doc_type/:id.
func (h *Handler) GetDocument(c *gin.Context) {
	docType := c.Param("doc_type")
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return
	}

	doc, err := h.syncer.GetDocument(c.Request.Context(), docType, id)
	if err != nil {
		if elasticsearch.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		h.fail(c, "document fetch failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"doc_type": docType, "id": id, "document": doc})
}

// searchRequest is the POST body for complex searches.
type searchRequest struct {
	DocType   string         `json:"doc_type" binding:"required"`
	Query     string         `json:"query" binding:"required"`
	Locale    string         `json:"locale"`
	Filters   map[string]any `json:"filters"`
	Highlight bool           `json:"highlight"`
	Hybrid    bool           `json:"hybrid"`
	Page      int            `json:"page"`
	PerPage   int            `json:"per_page"`
}

// Search handles GET and POST /api/v1/search.
func (h *Handler) Search(c *gin.Context) {
	var req *query.Request
	if c.Request.Method == http.MethodPost {
		var body searchRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req = &query.Request{
			DocType:   body.DocType,
			Query:     body.Query,
			Locale:    body.Locale,
			Filters:   body.Filters,
			Highlight: body.Highlight,
			Hybrid:    body.Hybrid,
			Page:      body.Page,
			PerPage:   body.PerPage,
		}
	} else {
		req = searchRequestFromQuery(c)
	}

	if req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query"})
		return
	}
	// Scheduled visibility only applies to knowledge base articles.
	if req.DocType == mappings.DocTypeKBArticle {
		now := time.Now()
		req.VisibleAt = &now
	}

	res, err := h.search.Search(c.Request.Context(), req)
	if err != nil {
		var unsupported *elasticsearch.UnsupportedError
		if errors.As(err, &unsupported) {
			c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
			return
		}
		h.fail(c, "search failed", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func searchRequestFromQuery(c *gin.Context) *query.Request {
	req := &query.Request{
		DocType:   c.DefaultQuery("doc_type", mappings.DocTypeKBArticle),
		Query:     c.Query("q"),
		Locale:    c.Query("locale"),
		Highlight: c.Query("highlight") == "true",
		Hybrid:    c.Query("hybrid") == "true",
	}
	if page, err := strconv.Atoi(c.Query("page")); err == nil {
		req.Page = page
	}
	if perPage, err := strconv.Atoi(c.Query("per_page")); err == nil {
		req.PerPage = perPage
	}

	filters := map[string]any{}
	if product := c.Query("product"); product != "" {
		filters["product_slugs"] = product
	}
	if topic := c.Query("topic"); topic != "" {
		filters["topic_slugs"] = topic
	}
	if len(filters) > 0 {
		req.Filters = filters
	}
	return req
}

func (h *Handler) fail(c *gin.Context, msg string, err error) {
	h.log.Error(msg, logger.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
