package testindex

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonesrussell/support-search/internal/elasticsearch/mappings"
	"github.com/jonesrussell/support-search/internal/logger"
)

// fakeCluster tracks index existence and detects overlapping structural
// operations. Each operation holds an in-flight slot across a short sleep
// so unserialized callers are actually observable.
type fakeCluster struct {
	mu       sync.Mutex
	indices  map[string]bool
	inFlight int
	maxInFly int
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{indices: map[string]bool{}}
}

func (f *fakeCluster) enter() {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFly {
		f.maxInFly = f.inFlight
	}
	f.mu.Unlock()
}

func (f *fakeCluster) exit() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func (f *fakeCluster) CreateIndex(_ context.Context, name string, _ []byte) error {
	f.enter()
	time.Sleep(time.Millisecond)
	defer f.exit()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indices[name] {
		return fmt.Errorf("index %s already exists", name)
	}
	f.indices[name] = true
	return nil
}

func (f *fakeCluster) DeleteIndex(_ context.Context, name string) error {
	f.enter()
	time.Sleep(time.Millisecond)
	defer f.exit()

	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.indices, name)
	return nil
}

func (f *fakeCluster) ListIndices(_ context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var names []string
	for name := range f.indices {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names, nil
}

func TestUniqueNamesUnderConcurrency(t *testing.T) {
	h := New(newFakeCluster(), "testsearch", logger.NewNop())

	const n = 100
	names := make(chan string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Same test identity on purpose: uniqueness must not depend
			// on distinct test names.
			names <- h.UniqueName("TestSearchSuite", mappings.DocTypeQuestion)
		}(i)
	}
	wg.Wait()
	close(names)

	seen := make(map[string]bool, n)
	for name := range names {
		if seen[name] {
			t.Fatalf("duplicate index name generated: %s", name)
		}
		seen[name] = true
	}
	if len(seen) != n {
		t.Errorf("generated %d unique names, want %d", len(seen), n)
	}
}

func TestUniqueNameShape(t *testing.T) {
	h := New(newFakeCluster(), "testsearch", logger.NewNop())
	name := h.UniqueName("TestX", mappings.DocTypeKBArticle)

	if !strings.HasPrefix(name, "testsearch_kbarticledocument_test_") {
		t.Errorf("name = %q", name)
	}
}

func TestProvisionAndCleanup(t *testing.T) {
	fake := newFakeCluster()
	h := New(fake, "testsearch", logger.NewNop())
	ctx := context.Background()

	name, cleanup, err := h.Provision(ctx, t.Name(), mappings.DocTypeQuestion)
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if !fake.indices[name] {
		t.Fatal("index not created")
	}
	if got := h.Created(); len(got) != 1 || got[0] != name {
		t.Errorf("Created() = %v", got)
	}

	cleanup()
	if fake.indices[name] {
		t.Error("index not deleted by cleanup")
	}
	if got := h.Created(); len(got) != 0 {
		t.Errorf("Created() after cleanup = %v", got)
	}
}

func TestProvisionSerializesCreates(t *testing.T) {
	fake := newFakeCluster()
	h := New(fake, "testsearch", logger.NewNop())
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := h.Provision(ctx, "TestConcurrent", mappings.DocTypeAnswer); err != nil {
				t.Errorf("Provision: %v", err)
			}
		}()
	}
	wg.Wait()

	if fake.maxInFly > 1 {
		t.Errorf("creates overlapped: max in flight = %d", fake.maxInFly)
	}
	if len(h.Created()) != n {
		t.Errorf("provisioned %d indices, want %d", len(h.Created()), n)
	}
}

func TestDeletesSerializeAgainstCreates(t *testing.T) {
	fake := newFakeCluster()
	h := New(fake, "testsearch", logger.NewNop())
	ctx := context.Background()

	const n = 10
	cleanups := make(chan func(), n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, cleanup, err := h.Provision(ctx, "TestMixed", mappings.DocTypeQuestion)
			if err != nil {
				t.Errorf("Provision: %v", err)
				return
			}
			cleanups <- cleanup
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case cleanup := <-cleanups:
				cleanup()
			default:
			}
		}()
	}
	wg.Wait()
	close(cleanups)
	for cleanup := range cleanups {
		cleanup()
	}

	if fake.maxInFly > 1 {
		t.Errorf("structural operations overlapped: max in flight = %d", fake.maxInFly)
	}
	if got := len(h.Created()); got != 0 {
		t.Errorf("indices left after cleanup: %d", got)
	}
}

func TestSweepGroupOnlyTouchesTestIndices(t *testing.T) {
	fake := newFakeCluster()
	h := New(fake, "testsearch", logger.NewNop())
	ctx := context.Background()

	if _, _, err := h.Provision(ctx, t.Name(), mappings.DocTypeQuestion); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	// A leftover from a crashed run in another process.
	fake.indices["testsearch_kbarticledocument_test_1748003200000000_deadbeef_a1b2c3d4"] = true
	// A real generation that must survive the sweep.
	fake.indices["testsearch_kbarticledocument_20250601103000"] = true

	if err := h.SweepGroup(ctx); err != nil {
		t.Fatalf("SweepGroup: %v", err)
	}

	if len(fake.indices) != 1 {
		t.Errorf("remaining indices = %v", fake.indices)
	}
	if !fake.indices["testsearch_kbarticledocument_20250601103000"] {
		t.Error("sweep deleted a real index generation")
	}
}
