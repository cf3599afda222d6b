// Package indexer keeps the search cluster in sync with the relational
// store: single-document live updates, chunked bulk loads for reindexing,
// and cross-document field removal.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jonesrussell/support-search/internal/domain"
	"github.com/jonesrussell/support-search/internal/elasticsearch"
	"github.com/jonesrussell/support-search/internal/lifecycle"
	"github.com/jonesrussell/support-search/internal/logger"
	"github.com/jonesrussell/support-search/internal/mapper"
)

// Cluster is the slice of the search client the indexer uses.
type Cluster interface {
	UpsertDocument(ctx context.Context, index, id string, body []byte, refresh bool) error
	DeleteDocument(ctx context.Context, index, id string, refresh bool) error
	GetDocument(ctx context.Context, index, id string) (map[string]any, error)
	Bulk(ctx context.Context, index string, items []elasticsearch.BulkItem, opts elasticsearch.BulkOptions) (*elasticsearch.BulkStats, []elasticsearch.BulkItemError, error)
	UpdateByQuery(ctx context.Context, index string, body []byte) (*elasticsearch.UpdateByQueryResult, error)
	Refresh(ctx context.Context, index string) error

	Capabilities() *elasticsearch.Capabilities
}

// Options controls indexing behavior.
type Options struct {
	// Prefix is the index name prefix shared with the lifecycle manager.
	Prefix string

	// LiveIndexing gates single-document writes. When false IndexObject
	// and DeleteObject are no-ops, so environments without a cluster can
	// run the application unchanged.
	LiveIndexing bool

	// TestMode forces an index refresh after every write so documents are
	// immediately visible to queries.
	TestMode bool

	ChunkSize   int
	BulkWorkers int
}

// Indexer writes documents through the write alias of each document type.
type Indexer struct {
	es   Cluster
	reg  *mapper.Registry
	opts Options
	log  logger.Logger
}

// New creates an Indexer.
func New(es Cluster, reg *mapper.Registry, opts Options, log logger.Logger) *Indexer {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 500
	}
	if opts.BulkWorkers <= 0 {
		opts.BulkWorkers = 2
	}
	return &Indexer{es: es, reg: reg, opts: opts, log: log}
}

// BulkResult accumulates the outcome of a bulk load across chunks.
type BulkResult struct {
	Indexed int64
	Deleted int64
	Failed  int64
	Errors  []elasticsearch.BulkItemError
}

// IndexObject maps and upserts a single entity. Entities the mapper
// discards are deleted from the index instead, so content flagged after the
// fact disappears from search. Disabled live indexing turns the call into a
// no-op.
func (ix *Indexer) IndexObject(ctx context.Context, docType string, e domain.Entity) error {
	if !ix.opts.LiveIndexing {
		ix.log.Debug("live indexing disabled, skipping",
			logger.String("doc_type", docType),
		)
		return nil
	}

	m, err := ix.reg.Lookup(docType)
	if err != nil {
		return err
	}

	doc, err := m.ToDocument(e)
	if err != nil {
		if errors.Is(err, mapper.ErrDiscard) {
			return ix.DeleteObject(ctx, docType, e.EntityID())
		}
		indexFailures.WithLabelValues(docType).Inc()
		return fmt.Errorf("map %s %d: %w", docType, e.EntityID(), err)
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s document: %w", docType, err)
	}

	alias := lifecycle.WriteAlias(ix.opts.Prefix, docType)
	if err := ix.es.UpsertDocument(ctx, alias, doc.DocID(), body, ix.opts.TestMode); err != nil {
		indexFailures.WithLabelValues(docType).Inc()
		return err
	}
	documentsIndexed.WithLabelValues(docType, "index").Inc()
	return nil
}

// DeleteObject removes a document. A document already gone is success, the
// queued deletion just raced the write.
func (ix *Indexer) DeleteObject(ctx context.Context, docType string, id int64) error {
	if !ix.opts.LiveIndexing {
		return nil
	}

	alias := lifecycle.WriteAlias(ix.opts.Prefix, docType)
	err := ix.es.DeleteDocument(ctx, alias, strconv.FormatInt(id, 10), ix.opts.TestMode)
	if err != nil && !elasticsearch.IsNotFound(err) {
		indexFailures.WithLabelValues(docType).Inc()
		return err
	}
	documentsIndexed.WithLabelValues(docType, "delete").Inc()
	return nil
}

// GetDocument fetches the indexed form of an entity through the read alias.
// Absent documents surface as elasticsearch.ErrNotFound so callers can map
// them to their own "gone" representation.
func (ix *Indexer) GetDocument(ctx context.Context, docType string, id int64) (map[string]any, error) {
	alias := lifecycle.ReadAlias(ix.opts.Prefix, docType)
	return ix.es.GetDocument(ctx, alias, strconv.FormatInt(id, 10))
}

// IndexObjectsBulk loads entities in chunks. Individual document failures
// never abort the load: every chunk is attempted, failures are collected,
// and a BulkError carrying all of them is returned at the end alongside the
// counts.
func (ix *Indexer) IndexObjectsBulk(ctx context.Context, docType string, entities []domain.Entity) (*BulkResult, error) {
	m, err := ix.reg.Lookup(docType)
	if err != nil {
		return nil, err
	}

	alias := lifecycle.WriteAlias(ix.opts.Prefix, docType)
	result := &BulkResult{}

	for start := 0; start < len(entities); start += ix.opts.ChunkSize {
		end := start + ix.opts.ChunkSize
		if end > len(entities) {
			end = len(entities)
		}
		if err := ix.bulkChunk(ctx, m, alias, docType, entities[start:end], result); err != nil {
			return result, err
		}
	}

	if ix.opts.TestMode {
		if err := ix.es.Refresh(ctx, alias); err != nil {
			return result, err
		}
	}

	if len(result.Errors) > 0 {
		return result, &elasticsearch.BulkError{Items: result.Errors}
	}
	return result, nil
}

func (ix *Indexer) bulkChunk(ctx context.Context, m mapper.Mapper, alias, docType string, entities []domain.Entity, result *BulkResult) error {
	items := make([]elasticsearch.BulkItem, 0, len(entities))
	for _, e := range entities {
		doc, err := m.ToDocument(e)
		if err != nil {
			if errors.Is(err, mapper.ErrDiscard) {
				items = append(items, elasticsearch.BulkItem{
					Action:     "delete",
					DocumentID: strconv.FormatInt(e.EntityID(), 10),
				})
				continue
			}
			// Unmappable entities are recorded and skipped, not fatal.
			result.Failed++
			result.Errors = append(result.Errors, elasticsearch.BulkItemError{
				DocumentID: strconv.FormatInt(e.EntityID(), 10),
				Action:     "index",
				Reason:     err.Error(),
			})
			continue
		}

		body, err := json.Marshal(doc)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, elasticsearch.BulkItemError{
				DocumentID: doc.DocID(),
				Action:     "index",
				Reason:     err.Error(),
			})
			continue
		}
		items = append(items, elasticsearch.BulkItem{
			Action:     "index",
			DocumentID: doc.DocID(),
			Body:       body,
		})
	}

	if len(items) == 0 {
		return nil
	}

	started := time.Now()
	stats, failures, err := ix.es.Bulk(ctx, alias, items, elasticsearch.BulkOptions{
		Workers: ix.opts.BulkWorkers,
	})
	bulkDuration.WithLabelValues(docType).Observe(time.Since(started).Seconds())
	if err != nil {
		return err
	}

	// stats.Added counts every submitted item, failed ones included.
	// Success counts are derived by subtracting the failures, attributing
	// failed deletes to the delete count via the per-item action.
	failedDeletes := 0
	for _, f := range failures {
		if f.Action == "delete" {
			failedDeletes++
		}
	}
	succeededDeletes := int64(countDeletes(items) - failedDeletes)
	result.Deleted += succeededDeletes
	result.Indexed += stats.Added - stats.Failed - succeededDeletes
	result.Failed += stats.Failed
	result.Errors = append(result.Errors, failures...)

	documentsIndexed.WithLabelValues(docType, "bulk").Add(float64(stats.Added - stats.Failed))
	if stats.Failed > 0 {
		indexFailures.WithLabelValues(docType).Add(float64(stats.Failed))
	}
	return nil
}

func countDeletes(items []elasticsearch.BulkItem) int {
	n := 0
	for _, item := range items {
		if item.Action == "delete" {
			n++
		}
	}
	return n
}

// ReindexAll streams every entity of a document type from the source into
// the index, in ascending ID order. It is safe to run against a freshly
// migrated write index while the read alias still serves the old one.
func (ix *Indexer) ReindexAll(ctx context.Context, docType string, source domain.Source) (*BulkResult, error) {
	total := &BulkResult{}
	var afterID int64

	for {
		batch, err := source.FetchBatch(ctx, docType, afterID, ix.opts.ChunkSize)
		if err != nil {
			return total, fmt.Errorf("fetch %s batch after %d: %w", docType, afterID, err)
		}
		if len(batch) == 0 {
			break
		}

		res, err := ix.IndexObjectsBulk(ctx, docType, batch)
		if res != nil {
			total.Indexed += res.Indexed
			total.Deleted += res.Deleted
			total.Failed += res.Failed
			total.Errors = append(total.Errors, res.Errors...)
		}
		var bulkErr *elasticsearch.BulkError
		if err != nil && !errors.As(err, &bulkErr) {
			return total, err
		}

		afterID = batch[len(batch)-1].EntityID()
		ix.log.Info("reindex progress",
			logger.String("doc_type", docType),
			logger.Int64("after_id", afterID),
			logger.Int64("indexed", total.Indexed),
			logger.Int64("failed", total.Failed),
		)
	}

	if len(total.Errors) > 0 {
		return total, &elasticsearch.BulkError{Items: total.Errors}
	}
	return total, nil
}
