package indexer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonesrussell/support-search/internal/elasticsearch"
	"github.com/jonesrussell/support-search/internal/elasticsearch/mappings"
	"github.com/jonesrussell/support-search/internal/lifecycle"
	"github.com/jonesrussell/support-search/internal/logger"
)

// RemoveFromField strips a value out of a multi-value field on every
// document of a type, for example detaching a deleted product from all
// articles. Version conflicts mean a live write raced the update; the
// affected documents were reindexed with fresh data anyway, so conflicts
// are logged and not returned.
func (ix *Indexer) RemoveFromField(ctx context.Context, docType, field, value string) error {
	if !mappings.HasFilterField(docType, field) {
		return fmt.Errorf("field %s is not a filter field of %s", field, docType)
	}

	body, err := removeFromFieldBody(ix.es.Capabilities(), field, value)
	if err != nil {
		return err
	}

	alias := lifecycle.WriteAlias(ix.opts.Prefix, docType)

	// Pending writes must be visible or the query misses documents.
	if err := ix.es.Refresh(ctx, alias); err != nil {
		return err
	}

	res, err := ix.es.UpdateByQuery(ctx, alias, body)
	if err != nil {
		return err
	}
	if res.VersionConflicts > 0 {
		ix.log.Warn("field removal hit version conflicts",
			logger.String("doc_type", docType),
			logger.String("field", field),
			logger.Int64("conflicts", res.VersionConflicts),
		)
	}

	ix.log.Info("field value removed",
		logger.String("doc_type", docType),
		logger.String("field", field),
		logger.String("value", value),
		logger.Int64("updated", res.Updated),
	)
	return nil
}

// removeFromFieldBody builds the version-correct update-by-query request.
//
// The current protocol runs a script that does its own containment check
// over every document. The legacy protocol's script assumes the value is
// present, so documents are pre-filtered with a term query.
func removeFromFieldBody(caps *elasticsearch.Capabilities, field, value string) ([]byte, error) {
	var body map[string]any
	if caps.Supports(elasticsearch.FeatureScriptOnlyRemoval) {
		body = map[string]any{
			"script": map[string]any{
				"source": fmt.Sprintf(
					"if (ctx._source.%s != null) { ctx._source.%s.removeAll(Collections.singleton(params.value)); }",
					field, field,
				),
				"lang":   "painless",
				"params": map[string]any{"value": value},
			},
		}
	} else {
		body = map[string]any{
			"query": map[string]any{
				"term": map[string]any{field: value},
			},
			"script": map[string]any{
				"source": fmt.Sprintf(
					"if (ctx._source.%s.contains(params.value)) { ctx._source.%s.remove(ctx._source.%s.indexOf(params.value)) }",
					field, field, field,
				),
				"lang":   "painless",
				"params": map[string]any{"value": value},
			},
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal update-by-query body: %w", err)
	}
	return data, nil
}
