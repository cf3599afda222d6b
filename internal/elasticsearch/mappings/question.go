package mappings

// QuestionMapping returns the index body for forum question documents.
func QuestionMapping(settings BaseSettings) map[string]any {
	return buildIndexBody(DocTypeQuestion, settings, map[string]any{
		"title":         stemmedTextField(),
		"content":       textField(),
		"locale":        keywordField(),
		"creator_id":    longField(),
		"is_solved":     boolField(),
		"is_locked":     boolField(),
		"num_votes":     intField(),
		"product_ids":   longField(),
		"product_slugs": keywordField(),
		"topic_ids":     longField(),
		"topic_slugs":   keywordField(),
		"tags":          keywordField(),
		"created":       dateField(),
		"updated":       dateField(),
		"indexed_on":    dateField(),
	})
}

// AnswerMapping returns the index body for forum answer documents.
func AnswerMapping(settings BaseSettings) map[string]any {
	return buildIndexBody(DocTypeAnswer, settings, map[string]any{
		"question_id": longField(),
		"content":     textField(),
		"locale":      keywordField(),
		"creator_id":  longField(),
		"is_solution": boolField(),
		"num_votes":   intField(),
		"created":     dateField(),
		"indexed_on":  dateField(),
	})
}
