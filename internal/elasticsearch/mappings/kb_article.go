package mappings

// KBArticleMapping returns the index body for knowledge base article
// documents.
func KBArticleMapping(settings BaseSettings) map[string]any {
	return buildIndexBody(DocTypeKBArticle, settings, map[string]any{
		"title":          stemmedTextField(),
		"slug":           keywordField(),
		"summary":        textField(),
		"content":        textField(),
		"keywords":       keywordField(),
		"locale":         keywordField(),
		"category":       intField(),
		"product_ids":    longField(),
		"product_slugs":  keywordField(),
		"topic_ids":      longField(),
		"topic_slugs":    keywordField(),
		"visible_during": dateRangeField(),
		"updated":        dateField(),
		"indexed_on":     dateField(),
	})
}
