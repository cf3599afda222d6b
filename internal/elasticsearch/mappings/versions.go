package mappings

// Mapping format version constants.
// Bump major for breaking changes (field type changes, removals).
// Bump minor for additions.
const (
	KBArticleMappingVersion = "2.1.0"
	QuestionMappingVersion  = "2.0.0"
	AnswerMappingVersion    = "2.0.0"
	ForumPostMappingVersion = "1.2.0"
	ProfileMappingVersion   = "1.0.0"
)

// MappingVersion returns the current mapping format version for a document
// type.
func MappingVersion(docType string) string {
	switch docType {
	case DocTypeKBArticle:
		return KBArticleMappingVersion
	case DocTypeQuestion:
		return QuestionMappingVersion
	case DocTypeAnswer:
		return AnswerMappingVersion
	case DocTypeForumPost:
		return ForumPostMappingVersion
	case DocTypeProfile:
		return ProfileMappingVersion
	default:
		return "1.0.0"
	}
}
