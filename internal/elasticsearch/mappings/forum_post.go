package mappings

// ForumPostMapping returns the index body for discussion forum post
// documents.
func ForumPostMapping(settings BaseSettings) map[string]any {
	return buildIndexBody(DocTypeForumPost, settings, map[string]any{
		"thread_id":  longField(),
		"forum_id":   longField(),
		"title":      stemmedTextField(),
		"content":    textField(),
		"author_id":  longField(),
		"locale":     keywordField(),
		"created":    dateField(),
		"updated":    dateField(),
		"indexed_on": dateField(),
	})
}

// ProfileMapping returns the index body for user profile documents.
func ProfileMapping(settings BaseSettings) map[string]any {
	return buildIndexBody(DocTypeProfile, settings, map[string]any{
		"username":   stemmedTextField(),
		"name":       textField(),
		"locale":     keywordField(),
		"groups":     keywordField(),
		"indexed_on": dateField(),
	})
}
