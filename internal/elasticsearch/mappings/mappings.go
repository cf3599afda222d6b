// Package mappings is the single source of truth for document schemas:
// per-type index mappings, analyzers, the logical-to-concrete field tables,
// and the mapping format versions.
package mappings

import (
	"encoding/json"
	"fmt"
)

// Document type identifiers. These feed index and alias naming, so they
// must stay lowercase and underscore-free.
const (
	DocTypeKBArticle = "kbarticle"
	DocTypeQuestion  = "question"
	DocTypeAnswer    = "answer"
	DocTypeForumPost = "forumpost"
	DocTypeProfile   = "profile"
)

// AllDocTypes lists every registered document type in a stable order.
func AllDocTypes() []string {
	return []string{
		DocTypeKBArticle,
		DocTypeQuestion,
		DocTypeAnswer,
		DocTypeForumPost,
		DocTypeProfile,
	}
}

// BaseSettings defines common index-level settings.
type BaseSettings struct {
	Shards   int
	Replicas int
}

// DefaultSettings returns the default index settings.
func DefaultSettings() BaseSettings {
	return BaseSettings{Shards: 1, Replicas: 1}
}

// buildIndexBody assembles the full index creation body for a document type:
// settings (including analysis for the supported locales) plus mapping
// properties, with the mapping format version recorded under _meta.
func buildIndexBody(docType string, settings BaseSettings, properties map[string]any) map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   settings.Shards,
			"number_of_replicas": settings.Replicas,
			"analysis":           AnalysisSettings(SupportedLocales()),
		},
		"mappings": map[string]any{
			"dynamic": "false",
			"_meta": map[string]any{
				"mapping_version": MappingVersion(docType),
			},
			"properties": properties,
		},
	}
}

// ToJSON marshals a mapping body for the create-index request.
func ToJSON(mapping map[string]any) ([]byte, error) {
	data, err := json.Marshal(mapping)
	if err != nil {
		return nil, fmt.Errorf("marshal mapping: %w", err)
	}
	return data, nil
}

// Field shorthands shared by the per-type mapping builders.

func keywordField() map[string]any {
	return map[string]any{"type": "keyword"}
}

func textField() map[string]any {
	return map[string]any{
		"type":     "text",
		"analyzer": DefaultAnalyzerName,
	}
}

// stemmedTextField is analyzed text with a keyword subfield for exact
// matching and sorting.
func stemmedTextField() map[string]any {
	return map[string]any{
		"type":     "text",
		"analyzer": DefaultAnalyzerName,
		"fields": map[string]any{
			"keyword": map[string]any{
				"type":         "keyword",
				"ignore_above": 256,
			},
		},
	}
}

func dateField() map[string]any {
	return map[string]any{"type": "date"}
}

func longField() map[string]any {
	return map[string]any{"type": "long"}
}

func intField() map[string]any {
	return map[string]any{"type": "integer"}
}

func boolField() map[string]any {
	return map[string]any{"type": "boolean"}
}

// dateRangeField is the compound start/end field supporting overlap queries.
func dateRangeField() map[string]any {
	return map[string]any{"type": "date_range"}
}
