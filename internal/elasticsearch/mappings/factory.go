package mappings

import "fmt"

// For returns the index creation body for the given document type.
func For(docType string, settings BaseSettings) (map[string]any, error) {
	switch docType {
	case DocTypeKBArticle:
		return KBArticleMapping(settings), nil
	case DocTypeQuestion:
		return QuestionMapping(settings), nil
	case DocTypeAnswer:
		return AnswerMapping(settings), nil
	case DocTypeForumPost:
		return ForumPostMapping(settings), nil
	case DocTypeProfile:
		return ProfileMapping(settings), nil
	default:
		return nil, fmt.Errorf("unknown document type: %s", docType)
	}
}

// MustFor is For for callers with a statically known document type.
func MustFor(docType string, settings BaseSettings) map[string]any {
	m, err := For(docType, settings)
	if err != nil {
		panic(err)
	}
	return m
}
