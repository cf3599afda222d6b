package elasticsearch

// Feature names a capability whose availability differs between protocol
// versions. The registry below is the single place version differences in
// surface area are recorded; callers check here instead of branching on the
// version at call sites.
type Feature string

// Registered features.
const (
	// FeatureWriteIndexAlias marks support for the is_write_index flag on
	// alias actions. Without it the write alias may only point at one index.
	FeatureWriteIndexAlias Feature = "write_index_alias"
	// FeatureScriptOnlyRemoval marks support for update-by-query removal
	// scripts that perform their own containment check, without a filter.
	FeatureScriptOnlyRemoval Feature = "script_only_removal"
	// FeatureHybridRRF marks support for reciprocal rank fusion queries.
	FeatureHybridRRF Feature = "hybrid_rrf"
	// FeatureSynonymReload marks support for reloading search analyzers to
	// pick up updated synonym files without a reindex.
	FeatureSynonymReload Feature = "synonym_reload"
)

var featuresByVersion = map[Version]map[Feature]bool{
	V7: {
		FeatureWriteIndexAlias:   false,
		FeatureScriptOnlyRemoval: false,
		FeatureHybridRRF:         false,
		FeatureSynonymReload:     true,
	},
	V8: {
		FeatureWriteIndexAlias:   true,
		FeatureScriptOnlyRemoval: true,
		FeatureHybridRRF:         true,
		FeatureSynonymReload:     true,
	},
}

// Capabilities answers feature-support questions for one protocol version.
// It is resolved once at client construction.
type Capabilities struct {
	version  Version
	features map[Feature]bool
}

// CapabilitiesFor returns the capability set for a protocol version.
func CapabilitiesFor(v Version) *Capabilities {
	return &Capabilities{version: v, features: featuresByVersion[v]}
}

// Supports reports whether the feature is available in the active version.
// Unknown features are unsupported.
func (c *Capabilities) Supports(f Feature) bool {
	return c.features[f]
}

// Require returns an UnsupportedError if the feature is unavailable, so the
// caller can surface the gap explicitly at first use.
func (c *Capabilities) Require(f Feature) error {
	if !c.Supports(f) {
		return &UnsupportedError{Feature: f, Version: c.version}
	}
	return nil
}

// Version returns the protocol version these capabilities describe.
func (c *Capabilities) Version() Version {
	return c.version
}
