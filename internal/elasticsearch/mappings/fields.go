package mappings

// Field tables keep the indexing side and the query side agreeing on which
// concrete fields exist per document type. Query construction must never
// reference a field that is not listed here.

// searchFields maps each document type to its full-text fields with boosts,
// in the caret syntax multi_match expects.
var searchFields = map[string][]string{
	DocTypeKBArticle: {"title^4", "keywords^3", "summary^2", "content"},
	DocTypeQuestion:  {"title^4", "content"},
	DocTypeAnswer:    {"content"},
	DocTypeForumPost: {"title^2", "content"},
	DocTypeProfile:   {"username^2", "name"},
}

// filterFields maps each document type to its exact-match filter fields.
var filterFields = map[string][]string{
	DocTypeKBArticle: {"slug", "locale", "category", "product_ids", "product_slugs", "topic_ids", "topic_slugs"},
	DocTypeQuestion:  {"locale", "creator_id", "is_solved", "is_locked", "product_ids", "product_slugs", "topic_ids", "topic_slugs", "tags"},
	DocTypeAnswer:    {"question_id", "locale", "creator_id", "is_solution"},
	DocTypeForumPost: {"thread_id", "forum_id", "author_id", "locale"},
	DocTypeProfile:   {"locale", "groups"},
}

// highlightFields maps each document type to the fields worth snippeting.
var highlightFields = map[string][]string{
	DocTypeKBArticle: {"summary", "content"},
	DocTypeQuestion:  {"content"},
	DocTypeAnswer:    {"content"},
	DocTypeForumPost: {"content"},
	DocTypeProfile:   nil,
}

// SearchFields returns the boosted full-text fields for a document type.
func SearchFields(docType string) []string {
	return append([]string(nil), searchFields[docType]...)
}

// FilterFields returns the exact-match filter fields for a document type.
func FilterFields(docType string) []string {
	return append([]string(nil), filterFields[docType]...)
}

// HighlightFields returns the snippet fields for a document type.
func HighlightFields(docType string) []string {
	return append([]string(nil), highlightFields[docType]...)
}

// HasFilterField reports whether the named filter field exists for a
// document type.
func HasFilterField(docType, field string) bool {
	for _, f := range filterFields[docType] {
		if f == field {
			return true
		}
	}
	return false
}
