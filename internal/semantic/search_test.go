// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package semantic

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/pdiddy/registry-engine/internal/store"
	"github.com/pdiddy/registry-engine/pkg/types"
)

// fakeEmbedder returns a fixed vector for every input and counts calls.
type fakeEmbedder struct {
	vec   []float32
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

// searchSetup seeds a store with three embedded products whose vectors
// have known distances to the query vector [1, 0].
func searchSetup(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(types.StoreConfig{DataDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	products := []string{"Станок токарный", "Провод медный", "Станок фрезерный"}
	records := make([]types.CanonicalRecord, len(products))
	for i, p := range products {
		records[i] = types.CanonicalRecord{
			OrgName:     types.StringPtr("ООО Прибор"),
			INN:         types.StringPtr(fmt.Sprintf("770%07d", i)),
			ProductName: types.StringPtr(p),
		}
	}
	file := types.FileIdentity{Name: "data-20240315-structure-20210405.csv", Hash: "h", Size: 1}
	var buf strings.Builder
	if _, err := s.Reconcile(context.Background(), file, records, &buf); err != nil {
		t.Fatal(err)
	}

	entries, err := s.Entries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	vectors := map[string][]float32{
		"Станок токарный":  {1, 0},     // distance 0
		"Провод медный":    {0, 1},     // distance 1
		"Станок фрезерный": {0.7, 0.7}, // distance ~0.29
	}
	for _, e := range entries {
		vec := vectors[*e.Record.ProductName]
		err := s.UpsertSemanticItem(context.Background(), e.ID, NormalizeText(*e.Record.ProductName), "", vec)
		if err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func newTestSearcher(s *store.Store, provider embedder, cacheEnabled bool) *Searcher {
	cfg := types.SearchConfig{MaxResults: 10, CacheEnabled: cacheEnabled}
	synonyms, _ := LoadSynonyms("")
	return NewSearcher(s, provider, synonyms, cfg, "test-model")
}

func TestSearchRanksByDistance(t *testing.T) {
	s := searchSetup(t)
	searcher := newTestSearcher(s, &fakeEmbedder{vec: []float32{1, 0}}, false)

	var buf strings.Builder
	payload, err := searcher.Search(context.Background(), "станок", SearchOptions{}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(payload.Hits) != 3 {
		t.Fatalf("got %d hits, want 3", len(payload.Hits))
	}

	wantOrder := []string{"Станок токарный", "Станок фрезерный", "Провод медный"}
	for i, want := range wantOrder {
		if payload.Hits[i].ProductName != want {
			t.Errorf("hit %d = %q, want %q", i, payload.Hits[i].ProductName, want)
		}
	}
	if payload.Hits[0].Distance > 1e-6 {
		t.Errorf("best hit distance = %v, want ~0", payload.Hits[0].Distance)
	}
	if payload.Hits[0].INN == "" || payload.Hits[0].OrgName == "" {
		t.Error("hit is missing joined entry fields")
	}
	if payload.Normalized != "станок" {
		t.Errorf("Normalized = %q, want %q", payload.Normalized, "станок")
	}
}

func TestSearchLimit(t *testing.T) {
	s := searchSetup(t)
	searcher := newTestSearcher(s, &fakeEmbedder{vec: []float32{1, 0}}, false)

	var buf strings.Builder
	payload, err := searcher.Search(context.Background(), "станок", SearchOptions{Limit: 1}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(payload.Hits) != 1 {
		t.Errorf("got %d hits with limit 1", len(payload.Hits))
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	s := searchSetup(t)
	searcher := newTestSearcher(s, &fakeEmbedder{vec: []float32{1, 0}}, false)

	var buf strings.Builder
	if _, err := searcher.Search(context.Background(), " .,- ", SearchOptions{}, &buf); err == nil {
		t.Error("expected error for tokenless query, got nil")
	}
}

func TestSearchCacheHit(t *testing.T) {
	s := searchSetup(t)
	provider := &fakeEmbedder{vec: []float32{1, 0}}
	searcher := newTestSearcher(s, provider, true)

	var buf strings.Builder
	first, err := searcher.Search(context.Background(), "станок", SearchOptions{}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if first.FromCache {
		t.Error("first search reported FromCache")
	}

	second, err := searcher.Search(context.Background(), "станок", SearchOptions{}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if !second.FromCache {
		t.Error("second search did not hit the cache")
	}
	if provider.calls != 1 {
		t.Errorf("provider called %d times, want 1", provider.calls)
	}
	if len(second.Hits) != len(first.Hits) {
		t.Errorf("cached answer has %d hits, fresh had %d", len(second.Hits), len(first.Hits))
	}
}

func TestSearchBypassCache(t *testing.T) {
	s := searchSetup(t)
	provider := &fakeEmbedder{vec: []float32{1, 0}}
	searcher := newTestSearcher(s, provider, true)

	var buf strings.Builder
	if _, err := searcher.Search(context.Background(), "станок", SearchOptions{}, &buf); err != nil {
		t.Fatal(err)
	}
	payload, err := searcher.Search(context.Background(), "станок", SearchOptions{BypassCache: true}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if payload.FromCache {
		t.Error("bypassed search served a cached answer")
	}
	if provider.calls != 2 {
		t.Errorf("provider called %d times, want 2", provider.calls)
	}
}

func TestSearchDifferentQueriesDifferentKeys(t *testing.T) {
	s := searchSetup(t)
	provider := &fakeEmbedder{vec: []float32{1, 0}}
	searcher := newTestSearcher(s, provider, true)

	var buf strings.Builder
	if _, err := searcher.Search(context.Background(), "станок", SearchOptions{}, &buf); err != nil {
		t.Fatal(err)
	}
	payload, err := searcher.Search(context.Background(), "провод", SearchOptions{}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if payload.FromCache {
		t.Error("different query hit the first query's cache entry")
	}
}

func TestCacheKeyComponents(t *testing.T) {
	base := cacheKey("q", "n", "v1", "model-a")
	tests := []struct {
		name string
		key  string
	}{
		{"original", cacheKey("q2", "n", "v1", "model-a")},
		{"normalized", cacheKey("q", "n2", "v1", "model-a")},
		{"synonyms version", cacheKey("q", "n", "v2", "model-a")},
		{"model", cacheKey("q", "n", "v1", "model-b")},
	}
	for _, tt := range tests {
		if tt.key == base {
			t.Errorf("changing %s did not change the cache key", tt.name)
		}
	}
	if again := cacheKey("q", "n", "v1", "model-a"); again != base {
		t.Error("cache key is not deterministic")
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"scaled", []float32{1, 0}, []float32{5, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineDistance(tt.a, tt.b)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineDistance = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosineDistanceErrors(t *testing.T) {
	if _, err := CosineDistance([]float32{1, 0}, []float32{1}); err == nil {
		t.Error("expected error for dimension mismatch")
	}
	if _, err := CosineDistance([]float32{0, 0}, []float32{1, 0}); err == nil {
		t.Error("expected error for zero vector")
	}
}
