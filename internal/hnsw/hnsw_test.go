package hnsw

import (
	"context"
	"math/rand"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/lspecian/vexfs-sub008/internal/obs"
	"github.com/lspecian/vexfs-sub008/internal/util"
)

func testConfig(dim int) *Config {
	return &Config{
		Dimension:      dim,
		M:              8,
		EfConstruction: 64,
		EfSearch:       32,
		ML:             1.0 / 2.0,
		Metric:         util.Euclidean,
		RandomSeed:     7,
	}
}

func randomVector(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = r.Float32()
	}
	return v
}

func TestInsertAndSearchFindsExactMatch(t *testing.T) {
	idx, err := NewIndex(testConfig(8), obs.NewMetrics())
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	r := rand.New(rand.NewSource(1))

	var target []float32
	for i := 0; i < 200; i++ {
		v := randomVector(r, 8)
		if i == 100 {
			target = v
		}
		if err := idx.Insert(context.Background(), idFor(i), v, nil); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	results, err := idx.Search(context.Background(), target, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected at least one result")
	}
	gotID, ok := idx.VectorIDAt(results[0].ID)
	if !ok || gotID != idFor(100) {
		t.Fatalf("expected exact match for vector 100, got %s (dist %v)", gotID, results[0].Distance)
	}
}

func idFor(i int) string {
	return "vec-" + strconv.Itoa(i)
}

func TestInsertRejectsDuplicateID(t *testing.T) {
	idx, _ := NewIndex(testConfig(4), obs.NewMetrics())
	v := []float32{1, 2, 3, 4}
	if err := idx.Insert(context.Background(), "dup", v, nil); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := idx.Insert(context.Background(), "dup", v, nil); err == nil {
		t.Fatalf("expected error on duplicate id")
	}
}

func TestInsertRejectsDimensionMismatch(t *testing.T) {
	idx, _ := NewIndex(testConfig(4), obs.NewMetrics())
	if err := idx.Insert(context.Background(), "x", []float32{1, 2}, nil); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}

func TestReconcilerRepairsUnidirectionalEdge(t *testing.T) {
	idx, _ := NewIndex(testConfig(4), obs.NewMetrics())
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 10; i++ {
		if err := idx.Insert(context.Background(), idFor(i), randomVector(r, 4), nil); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	// Artificially break reciprocity: remove node 0 from node 1's level-0 list.
	idx.mu.Lock()
	n1 := idx.nodes[1]
	filtered := make([]uint32, 0)
	for _, id := range n1.Links[0].IDs() {
		if id != 0 {
			filtered = append(filtered, id)
		}
	}
	n1.Links[0] = newLinkSet(filtered)
	idx.mu.Unlock()

	rec := NewReconciler(idx, 0)
	repaired := rec.sweepOnce()
	if repaired == 0 {
		t.Fatalf("expected at least one repair")
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if !hasLink(idx.nodes[1].Links[0], 0) {
		t.Fatalf("expected link to be repaired")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	idx, _ := NewIndex(testConfig(4), obs.NewMetrics())
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		if err := idx.Insert(context.Background(), idFor(i), randomVector(r, 4), nil); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	path := filepath.Join(t.TempDir(), "index.vxhn")
	if err := idx.SaveToDisk(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := NewIndex(testConfig(4), obs.NewMetrics())
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	if err := loaded.LoadFromDisk(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Size() != idx.Size() {
		t.Fatalf("size mismatch: got %d want %d", loaded.Size(), idx.Size())
	}
}
