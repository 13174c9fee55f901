// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package semantic

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/pdiddy/registry-engine/internal/store"
	"github.com/pdiddy/registry-engine/pkg/types"
)

// embedder is the consumer interface for the embedding provider.
type embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher answers semantic queries over the derived index, consulting
// the query cache first.
type Searcher struct {
	store    *store.Store
	provider embedder
	synonyms *Synonyms
	cfg      types.SearchConfig
	model    string
}

// NewSearcher wires a searcher from its collaborators. model names the
// embedding model and participates in cache keys, so answers computed
// under one model are never served for another.
func NewSearcher(s *store.Store, provider embedder, synonyms *Synonyms, cfg types.SearchConfig, model string) *Searcher {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	return &Searcher{store: s, provider: provider, synonyms: synonyms, cfg: cfg, model: model}
}

// Hit is one ranked search result.
type Hit struct {
	EntryID        int64    `json:"entry_id"`
	ProductName    string   `json:"product_name,omitempty"`
	OrgName        string   `json:"org_name,omitempty"`
	INN            string   `json:"inn,omitempty"`
	TNVED          string   `json:"tnved,omitempty"`
	OKPD2          string   `json:"okpd2,omitempty"`
	RegistryNumber string   `json:"registry_number,omitempty"`
	NormalizedText string   `json:"normalized_text"`
	Distance       float64  `json:"distance"`
}

// Payload is the opaque cached answer for one query.
type Payload struct {
	Query      string   `json:"query"`
	Normalized string   `json:"normalized"`
	Synonyms   []string `json:"synonyms,omitempty"`
	Hits       []Hit    `json:"hits"`

	// FromCache is set on the returned value, never persisted.
	FromCache bool `json:"-"`
}

// SearchOptions tunes one query.
type SearchOptions struct {
	// Limit overrides the configured MaxResults when positive.
	Limit int

	// BypassCache skips the cache lookup and overwrites the cached
	// payload with the fresh answer.
	BypassCache bool
}

// Search resolves a query: normalize, expand synonyms, consult the cache,
// and on a miss embed the expanded text and rank stored vectors by cosine
// distance.
func (s *Searcher) Search(ctx context.Context, query string, opts SearchOptions, w io.Writer) (Payload, error) {
	tokens := Tokens(query)
	if len(tokens) == 0 {
		return Payload{}, fmt.Errorf("query has no searchable tokens")
	}
	normalized := NormalizeText(query)
	expansion := s.synonyms.Expand(tokens)

	embeddingInput := normalized
	for _, term := range expansion {
		embeddingInput += " " + term
	}

	key := cacheKey(query, embeddingInput, s.synonyms.Version(), s.model)
	useCache := s.cfg.CacheEnabled && !opts.BypassCache

	if useCache {
		if raw, ok, err := s.store.CacheLookup(ctx, key); err != nil {
			return Payload{}, err
		} else if ok {
			var p Payload
			if err := json.Unmarshal(raw, &p); err == nil {
				p.FromCache = true
				fmt.Fprintf(w, "cache hit (%s)\n", shortKey(key))
				return p, nil
			}
			// Unreadable cached payload: fall through and recompute.
		}
	}

	vecs, err := s.provider.Embed(ctx, []string{embeddingInput})
	if err != nil {
		return Payload{}, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return Payload{}, fmt.Errorf("provider returned %d vectors for 1 input", len(vecs))
	}
	queryVec := vecs[0]

	ranked, err := s.rank(ctx, queryVec, s.limit(opts))
	if err != nil {
		return Payload{}, err
	}

	hits, err := s.loadHits(ctx, ranked)
	if err != nil {
		return Payload{}, err
	}

	payload := Payload{
		Query:      query,
		Normalized: normalized,
		Synonyms:   expansion,
		Hits:       hits,
	}

	if s.cfg.CacheEnabled {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Payload{}, fmt.Errorf("encoding payload: %w", err)
		}
		if err := s.store.CacheStore(ctx, key, query, raw); err != nil {
			return Payload{}, err
		}
	}
	return payload, nil
}

func (s *Searcher) limit(opts SearchOptions) int {
	if opts.Limit > 0 {
		return opts.Limit
	}
	return s.cfg.MaxResults
}

type scored struct {
	vec      store.SemanticVector
	distance float64
}

// rank scans every stored vector and keeps the limit closest.
func (s *Searcher) rank(ctx context.Context, queryVec []float32, limit int) ([]scored, error) {
	var all []scored
	err := s.store.SemanticVectors(ctx, func(v store.SemanticVector) error {
		d, err := CosineDistance(queryVec, v.Embedding)
		if err != nil {
			// A stored vector of the wrong dimension was written under a
			// different model; it cannot be ranked against this query.
			return nil
		}
		all = append(all, scored{vec: v, distance: d})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool { return all[i].distance < all[j].distance })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// loadHits joins ranked vectors back to their entries.
func (s *Searcher) loadHits(ctx context.Context, ranked []scored) ([]Hit, error) {
	if len(ranked) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(ranked))
	for i, r := range ranked {
		ids[i] = r.vec.EntryID
	}
	entries, err := s.store.EntriesByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]store.Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	hits := make([]Hit, 0, len(ranked))
	for _, r := range ranked {
		e, ok := byID[r.vec.EntryID]
		if !ok {
			continue
		}
		hits = append(hits, Hit{
			EntryID:        e.ID,
			ProductName:    deref(e.Record.ProductName),
			OrgName:        deref(e.Record.OrgName),
			INN:            deref(e.Record.INN),
			TNVED:          deref(e.Record.TNVED),
			OKPD2:          deref(e.Record.OKPD2),
			RegistryNumber: deref(e.Record.RegistryNumber),
			NormalizedText: r.vec.NormalizedText,
			Distance:       r.distance,
		})
	}
	return hits, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// cacheKey digests everything that determines the answer: the original
// text, the expanded embedding input, the synonym dictionary version,
// and the model. Canonical JSON keeps the digest stable.
func cacheKey(original, normalized, synonymsVersion, model string) string {
	base, _ := json.Marshal(map[string]string{
		"original":         original,
		"normalized":       normalized,
		"synonyms_version": synonymsVersion,
		"model":            model,
	})
	sum := sha256.Sum256(base)
	return hex.EncodeToString(sum[:])
}

func shortKey(k string) string {
	if len(k) > 12 {
		return k[:12]
	}
	return k
}

// CosineDistance returns 1 - cosine similarity of two vectors of equal
// dimension.
func CosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("zero-magnitude vector")
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)), nil
}
