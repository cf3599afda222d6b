package mappings

import (
	"fmt"
	"strings"
)

// DefaultAnalyzerName is the index-time analyzer applied to text fields in
// any locale without a dedicated analysis chain.
const DefaultAnalyzerName = "default_support"

// allSynonymsName is the synonym file shared by every locale's search
// analyzer, alongside the locale-specific one.
const allSynonymsName = "all"

// localeStemmers maps locales with a dedicated analysis chain to their
// stemmer language. Locales absent here fall back to the default analyzer.
var localeStemmers = map[string]string{
	"en-US": "english",
	"de":    "german2",
	"es":    "spanish",
	"fr":    "french",
	"it":    "italian",
	"nl":    "dutch",
	"pt-BR": "brazilian",
	"ru":    "russian",
}

// SupportedLocales returns the locales with dedicated analyzers, in no
// particular order.
func SupportedLocales() []string {
	locales := make([]string, 0, len(localeStemmers))
	for locale := range localeStemmers {
		locales = append(locales, locale)
	}
	return locales
}

// AnalysisSettings builds the analysis section for an index: the default
// analyzer, one index-time analyzer per supported locale, and one search
// analyzer per locale carrying the synonym graph filters.
//
// Search analyzers exist even for locales that index with the default
// analyzer, so synonyms can be adjusted per locale without a reindex.
func AnalysisSettings(locales []string) map[string]any {
	analyzers := map[string]any{
		DefaultAnalyzerName: map[string]any{
			"type":      "custom",
			"tokenizer": "standard",
			"filter":    []string{"lowercase", "stop"},
		},
	}
	filters := map[string]any{}

	for _, locale := range locales {
		stemmer, ok := localeStemmers[locale]
		if !ok {
			continue
		}

		stemmerFilter := stemmerFilterName(locale)
		filters[stemmerFilter] = map[string]any{
			"type":     "stemmer",
			"language": stemmer,
		}
		analyzers[IndexAnalyzerName(locale)] = map[string]any{
			"type":      "custom",
			"tokenizer": "standard",
			"filter":    []string{"lowercase", "stop", stemmerFilter},
		}

		allSynonyms := synonymFilterName(allSynonymsName)
		localeSynonyms := synonymFilterName(locale)
		filters[allSynonyms] = synonymGraphFilter(allSynonymsName)
		filters[localeSynonyms] = synonymGraphFilter(locale)
		analyzers[SearchAnalyzerName(locale)] = map[string]any{
			"type":      "custom",
			"tokenizer": "standard",
			"filter":    []string{"lowercase", "stop", stemmerFilter, allSynonyms, localeSynonyms},
		}
	}

	return map[string]any{
		"analyzer": analyzers,
		"filter":   filters,
	}
}

// IndexAnalyzerName returns the index-time analyzer for a locale, falling
// back to the default analyzer when the locale has no dedicated chain.
func IndexAnalyzerName(locale string) string {
	if _, ok := localeStemmers[locale]; !ok {
		return DefaultAnalyzerName
	}
	return fmt.Sprintf("%s_analyzer", normalizeLocale(locale))
}

// SearchAnalyzerName returns the query-time analyzer for a locale, or the
// default analyzer when the locale has no dedicated chain.
func SearchAnalyzerName(locale string) string {
	if _, ok := localeStemmers[locale]; !ok {
		return DefaultAnalyzerName
	}
	return fmt.Sprintf("%s_search_analyzer", normalizeLocale(locale))
}

func stemmerFilterName(locale string) string {
	return fmt.Sprintf("%s_stemmer", normalizeLocale(locale))
}

func synonymFilterName(name string) string {
	return fmt.Sprintf("%s_synonym_graph", normalizeLocale(name))
}

func synonymGraphFilter(name string) map[string]any {
	return map[string]any{
		"type":          "synonym_graph",
		"synonyms_path": fmt.Sprintf("synonyms/%s.txt", name),
		"expand":        "true",
		"lenient":       "true",
		"updateable":    "true",
	}
}

func normalizeLocale(locale string) string {
	return strings.ToLower(strings.ReplaceAll(locale, "-", "_"))
}
