// Package testindex provisions disposable, collision-free indices for test
// suites that run against a real cluster. Parallel test processes share one
// cluster, so names must be unique across processes and provisioning is
// serialized within one.
package testindex

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/support-search/internal/elasticsearch/mappings"
	"github.com/jonesrussell/support-search/internal/lifecycle"
	"github.com/jonesrussell/support-search/internal/logger"
)

// testMarker separates disposable test indices from real generations in the
// shared cluster. SweepGroup only ever touches names carrying it.
const testMarker = "test"

// provisionMu serializes every structural operation within the process,
// deletes included. Concurrent structural changes against small test
// clusters are a reliable source of flakes.
var provisionMu sync.Mutex

// Cluster is the slice of the search client the harness uses.
type Cluster interface {
	CreateIndex(ctx context.Context, name string, body []byte) error
	DeleteIndex(ctx context.Context, name string) error
	ListIndices(ctx context.Context, pattern string) ([]string, error)
}

// Harness creates and tears down test indices under one prefix.
type Harness struct {
	es     Cluster
	prefix string
	log    logger.Logger

	mu      sync.Mutex
	created []string
}

// New creates a Harness. The prefix should differ from the production
// prefix so a sweep can never touch live indices.
func New(es Cluster, prefix string, log logger.Logger) *Harness {
	return &Harness{es: es, prefix: prefix, log: log}
}

// UniqueName builds an index name that cannot collide across concurrently
// running test processes: microsecond timestamp, a hash of the test
// identity, and a random suffix.
func (h *Harness) UniqueName(testID, docType string) string {
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(testID))

	suffix := strings.ReplaceAll(uuid.NewString()[:8], "-", "")
	return fmt.Sprintf("%s_%s_%d_%08x_%s",
		lifecycle.BaseName(h.prefix, docType), testMarker,
		time.Now().UnixMicro(), hash.Sum32(), suffix,
	)
}

// Provision creates a fresh index with the document type's current mapping
// and returns its name plus a cleanup function. Cleanup never fails the
// test; an index left behind is caught by the next SweepGroup.
func (h *Harness) Provision(ctx context.Context, testID, docType string) (string, func(), error) {
	body, err := mappings.For(docType, mappings.BaseSettings{Shards: 1, Replicas: 0})
	if err != nil {
		return "", nil, err
	}
	data, err := mappings.ToJSON(body)
	if err != nil {
		return "", nil, err
	}

	name := h.UniqueName(testID, docType)

	provisionMu.Lock()
	err = h.es.CreateIndex(ctx, name, data)
	provisionMu.Unlock()
	if err != nil {
		return "", nil, fmt.Errorf("provision test index: %w", err)
	}

	h.mu.Lock()
	h.created = append(h.created, name)
	h.mu.Unlock()

	cleanup := func() {
		provisionMu.Lock()
		err := h.es.DeleteIndex(context.Background(), name)
		provisionMu.Unlock()
		if err != nil {
			h.log.Warn("test index cleanup failed",
				logger.String("index", name),
				logger.Error(err),
			)
			return
		}
		h.forget(name)
	}
	return name, cleanup, nil
}

func (h *Harness) forget(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, n := range h.created {
		if n == name {
			h.created = append(h.created[:i], h.created[i+1:]...)
			return
		}
	}
}

// Created returns the indices this harness has provisioned and not yet
// cleaned up.
func (h *Harness) Created() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.created...)
}

// SweepGroup deletes every test index under the harness prefix, including
// leftovers from crashed runs in other processes. Real generations never
// carry the test marker and are skipped.
func (h *Harness) SweepGroup(ctx context.Context) error {
	names, err := h.es.ListIndices(ctx, h.prefix+"_*")
	if err != nil {
		return err
	}

	var firstErr error
	for _, name := range names {
		if !strings.Contains(name, "_"+testMarker+"_") {
			continue
		}
		provisionMu.Lock()
		err := h.es.DeleteIndex(ctx, name)
		provisionMu.Unlock()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		h.forget(name)
	}
	return firstErr
}
