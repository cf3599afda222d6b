// Package lifecycle manages search index provisioning and zero-downtime
// migration: timestamped index generations behind stable read and write
// aliases, repointed atomically.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/support-search/internal/elasticsearch"
	"github.com/jonesrussell/support-search/internal/elasticsearch/mappings"
	"github.com/jonesrussell/support-search/internal/logger"
)

// ErrAmbiguousAlias is returned when an alias unexpectedly points at more
// than one index. Migrations refuse to guess which one is live.
var ErrAmbiguousAlias = errors.New("alias points at multiple indices")

// Cluster is the slice of the search client the lifecycle manager uses.
type Cluster interface {
	CreateIndex(ctx context.Context, name string, body []byte) error
	DeleteIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	ListIndices(ctx context.Context, pattern string) ([]string, error)
	CloseIndex(ctx context.Context, name string) error
	OpenIndex(ctx context.Context, name string) error
	PutSettings(ctx context.Context, name string, body []byte) error
	PutMapping(ctx context.Context, name string, body []byte) error
	GetMapping(ctx context.Context, name string) (map[string]any, error)
	ReloadSearchAnalyzers(ctx context.Context, name string) error

	PutAlias(ctx context.Context, index, alias string, isWriteIndex bool) error
	UpdateAliases(ctx context.Context, actions []elasticsearch.AliasAction) error
	GetAlias(ctx context.Context, alias string) ([]string, error)
	AliasExists(ctx context.Context, alias string) (bool, error)
	DeleteAlias(ctx context.Context, index, alias string) error

	Capabilities() *elasticsearch.Capabilities
}

// Manager provisions and migrates the index generations for every document
// type under one name prefix.
type Manager struct {
	es       Cluster
	prefix   string
	settings mappings.BaseSettings
	log      logger.Logger

	now func() time.Time
}

// NewManager creates a Manager for the given name prefix.
func NewManager(es Cluster, prefix string, settings mappings.BaseSettings, log logger.Logger) *Manager {
	return &Manager{
		es:       es,
		prefix:   prefix,
		settings: settings,
		log:      log,
		now:      time.Now,
	}
}

// EnsureIndex makes sure a document type has a live index behind its write
// and read aliases, creating a first generation if none exists. It returns
// the concrete index name serving writes.
func (m *Manager) EnsureIndex(ctx context.Context, docType string) (string, error) {
	writeAlias := WriteAlias(m.prefix, docType)

	exists, err := m.es.AliasExists(ctx, writeAlias)
	if err != nil {
		return "", err
	}
	if exists {
		return m.AliasedIndex(ctx, writeAlias)
	}

	name, err := m.createGeneration(ctx, docType)
	if err != nil {
		return "", err
	}

	isWrite := m.es.Capabilities().Supports(elasticsearch.FeatureWriteIndexAlias)
	if err := m.es.PutAlias(ctx, name, writeAlias, isWrite); err != nil {
		return "", err
	}
	if err := m.es.PutAlias(ctx, name, ReadAlias(m.prefix, docType), false); err != nil {
		return "", err
	}

	m.log.Info("index provisioned",
		logger.String("doc_type", docType),
		logger.String("index", name),
	)
	return name, nil
}

// EnsureAll runs EnsureIndex for every document type.
func (m *Manager) EnsureAll(ctx context.Context) error {
	for _, docType := range mappings.AllDocTypes() {
		if _, err := m.EnsureIndex(ctx, docType); err != nil {
			return fmt.Errorf("ensure %s: %w", docType, err)
		}
	}
	return nil
}

// MigrateWrites builds the next index generation with the current mapping
// and atomically repoints the write alias at it. The read alias keeps
// serving the old generation until MigrateReads. It returns the old and new
// index names; old is empty when no previous generation existed.
func (m *Manager) MigrateWrites(ctx context.Context, docType string) (old, next string, err error) {
	writeAlias := WriteAlias(m.prefix, docType)

	exists, err := m.es.AliasExists(ctx, writeAlias)
	if err != nil {
		return "", "", err
	}
	if exists {
		old, err = m.AliasedIndex(ctx, writeAlias)
		if err != nil {
			return "", "", err
		}
	}

	next, err = m.createGeneration(ctx, docType)
	if err != nil {
		return "", "", err
	}

	// Remove and add in one request so no write lands between generations.
	var actions []elasticsearch.AliasAction
	if old != "" {
		actions = append(actions, elasticsearch.AliasAction{Remove: true, Index: old, Alias: writeAlias})
	}
	actions = append(actions, elasticsearch.AliasAction{
		Index:        next,
		Alias:        writeAlias,
		IsWriteIndex: m.es.Capabilities().Supports(elasticsearch.FeatureWriteIndexAlias),
	})
	if err := m.es.UpdateAliases(ctx, actions); err != nil {
		return "", "", err
	}

	readAlias := ReadAlias(m.prefix, docType)
	readExists, err := m.es.AliasExists(ctx, readAlias)
	if err != nil {
		return "", "", err
	}
	if !readExists {
		if err := m.es.PutAlias(ctx, next, readAlias, false); err != nil {
			return "", "", err
		}
	}

	m.log.Info("write alias migrated",
		logger.String("doc_type", docType),
		logger.String("old_index", old),
		logger.String("new_index", next),
	)
	return old, next, nil
}

// MigrateReads repoints the read alias at the index currently serving
// writes. Call it after the new generation is backfilled.
func (m *Manager) MigrateReads(ctx context.Context, docType string) error {
	writeAlias := WriteAlias(m.prefix, docType)
	readAlias := ReadAlias(m.prefix, docType)

	target, err := m.AliasedIndex(ctx, writeAlias)
	if err != nil {
		return err
	}

	var actions []elasticsearch.AliasAction
	readExists, err := m.es.AliasExists(ctx, readAlias)
	if err != nil {
		return err
	}
	if readExists {
		current, err := m.AliasedIndex(ctx, readAlias)
		if err != nil {
			return err
		}
		if current == target {
			return nil
		}
		actions = append(actions, elasticsearch.AliasAction{Remove: true, Index: current, Alias: readAlias})
	}
	actions = append(actions, elasticsearch.AliasAction{Index: target, Alias: readAlias})

	if err := m.es.UpdateAliases(ctx, actions); err != nil {
		return err
	}

	m.log.Info("read alias migrated",
		logger.String("doc_type", docType),
		logger.String("index", target),
	)
	return nil
}

// AliasedIndex resolves an alias to its single concrete index. An alias
// spread over multiple indices is a corrupt state and is reported, not
// resolved.
func (m *Manager) AliasedIndex(ctx context.Context, alias string) (string, error) {
	indices, err := m.es.GetAlias(ctx, alias)
	if err != nil {
		return "", err
	}
	switch len(indices) {
	case 0:
		return "", fmt.Errorf("alias %s points at no index", alias)
	case 1:
		return indices[0], nil
	default:
		return "", fmt.Errorf("%w: %s -> %v", ErrAmbiguousAlias, alias, indices)
	}
}

// RetireIndex deletes an old index generation. Indices still serving an
// alias are protected.
func (m *Manager) RetireIndex(ctx context.Context, docType, name string) error {
	for _, alias := range []string{WriteAlias(m.prefix, docType), ReadAlias(m.prefix, docType)} {
		exists, err := m.es.AliasExists(ctx, alias)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		current, err := m.AliasedIndex(ctx, alias)
		if err != nil {
			return err
		}
		if current == name {
			return fmt.Errorf("index %s still serves alias %s", name, alias)
		}
	}

	if err := m.es.DeleteIndex(ctx, name); err != nil {
		return err
	}
	m.log.Info("index retired", logger.String("index", name))
	return nil
}

// ListGenerations returns every concrete index generation for a document
// type, oldest first by the timestamp embedded in the name.
func (m *Manager) ListGenerations(ctx context.Context, docType string) ([]string, error) {
	return m.es.ListIndices(ctx, IndexPattern(m.prefix, docType))
}

// UpdateAnalysis pushes the current analysis settings and mapping to the
// live write index. Analyzer changes require the index closed; it is
// reopened even when the update fails partway.
func (m *Manager) UpdateAnalysis(ctx context.Context, docType string) (err error) {
	name, err := m.AliasedIndex(ctx, WriteAlias(m.prefix, docType))
	if err != nil {
		return err
	}

	settingsBody, err := mappings.ToJSON(map[string]any{
		"analysis": mappings.AnalysisSettings(mappings.SupportedLocales()),
	})
	if err != nil {
		return err
	}

	body, err := mappings.For(docType, m.settings)
	if err != nil {
		return err
	}
	mappingBody, err := mappings.ToJSON(body["mappings"].(map[string]any))
	if err != nil {
		return err
	}

	if err := m.es.CloseIndex(ctx, name); err != nil {
		return err
	}
	defer func() {
		if openErr := m.es.OpenIndex(ctx, name); openErr != nil && err == nil {
			err = openErr
		}
	}()

	if err := m.es.PutSettings(ctx, name, settingsBody); err != nil {
		return err
	}
	if err := m.es.PutMapping(ctx, name, mappingBody); err != nil {
		return err
	}

	m.log.Info("analysis updated",
		logger.String("doc_type", docType),
		logger.String("index", name),
	)
	return nil
}

// ReloadSynonyms reloads the search analyzers on the live write index so
// updated synonym files take effect without a reindex.
func (m *Manager) ReloadSynonyms(ctx context.Context, docType string) error {
	if err := m.es.Capabilities().Require(elasticsearch.FeatureSynonymReload); err != nil {
		return err
	}
	name, err := m.AliasedIndex(ctx, WriteAlias(m.prefix, docType))
	if err != nil {
		return err
	}
	return m.es.ReloadSearchAnalyzers(ctx, name)
}

// DriftReport compares the mapping version stored in a live index against
// the version the code ships.
type DriftReport struct {
	DocType     string
	Index       string
	LiveVersion string
	CodeVersion string
}

// Drifted reports whether the live index was built from an older or newer
// mapping than the code.
func (r *DriftReport) Drifted() bool {
	return r.LiveVersion != r.CodeVersion
}

// CheckMappingDrift reads the live write index's recorded mapping version
// for a document type. Indices created before versions were recorded report
// an empty live version, which counts as drift.
func (m *Manager) CheckMappingDrift(ctx context.Context, docType string) (*DriftReport, error) {
	name, err := m.AliasedIndex(ctx, WriteAlias(m.prefix, docType))
	if err != nil {
		return nil, err
	}

	mapping, err := m.es.GetMapping(ctx, name)
	if err != nil {
		return nil, err
	}

	report := &DriftReport{
		DocType:     docType,
		Index:       name,
		CodeVersion: mappings.MappingVersion(docType),
	}
	if meta, ok := mapping["_meta"].(map[string]any); ok {
		if v, ok := meta["mapping_version"].(string); ok {
			report.LiveVersion = v
		}
	}
	return report, nil
}

// TypeStatus summarizes one document type's provisioning state.
type TypeStatus struct {
	DocType     string `json:"doc_type"`
	WriteIndex  string `json:"write_index,omitempty"`
	ReadIndex   string `json:"read_index,omitempty"`
	LiveVersion string `json:"live_mapping_version,omitempty"`
	CodeVersion string `json:"code_mapping_version"`
	Drifted     bool   `json:"mapping_drifted"`
}

// Status reports the provisioning state of every document type. Types
// without indices yet report empty index names instead of failing.
func (m *Manager) Status(ctx context.Context) ([]TypeStatus, error) {
	statuses := make([]TypeStatus, 0, len(mappings.AllDocTypes()))
	for _, docType := range mappings.AllDocTypes() {
		st := TypeStatus{
			DocType:     docType,
			CodeVersion: mappings.MappingVersion(docType),
		}

		writeExists, err := m.es.AliasExists(ctx, WriteAlias(m.prefix, docType))
		if err != nil {
			return nil, err
		}
		if writeExists {
			st.WriteIndex, err = m.AliasedIndex(ctx, WriteAlias(m.prefix, docType))
			if err != nil {
				return nil, err
			}
			report, err := m.CheckMappingDrift(ctx, docType)
			if err != nil {
				return nil, err
			}
			st.LiveVersion = report.LiveVersion
			st.Drifted = report.Drifted()
		}

		readExists, err := m.es.AliasExists(ctx, ReadAlias(m.prefix, docType))
		if err != nil {
			return nil, err
		}
		if readExists {
			st.ReadIndex, err = m.AliasedIndex(ctx, ReadAlias(m.prefix, docType))
			if err != nil {
				return nil, err
			}
		}

		statuses = append(statuses, st)
	}
	return statuses, nil
}

// createGeneration creates a timestamped index with the document type's
// current mapping, stepping the name forward when a generation from the
// same second already exists.
func (m *Manager) createGeneration(ctx context.Context, docType string) (string, error) {
	body, err := mappings.For(docType, m.settings)
	if err != nil {
		return "", err
	}
	data, err := mappings.ToJSON(body)
	if err != nil {
		return "", err
	}

	t := m.now()
	for i := 0; i < 3; i++ {
		name := IndexName(m.prefix, docType, t)
		exists, err := m.es.IndexExists(ctx, name)
		if err != nil {
			return "", err
		}
		if !exists {
			if err := m.es.CreateIndex(ctx, name, data); err != nil {
				return "", err
			}
			return name, nil
		}
		t = t.Add(time.Second)
	}
	return "", fmt.Errorf("could not find a free index name for %s", docType)
}
