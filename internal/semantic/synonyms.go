// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package semantic

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Synonyms is a dictionary mapping a canonical term to its variants,
// loaded from a YAML file of the form:
//
//	болт:
//	  - винт
//	  - шуруп
//
// Expansion is symmetric through the canonical form: any variant maps
// back to its canonical term, and the canonical term fans out to every
// variant.
type Synonyms struct {
	groups  map[string][]string
	lookup  map[string]string // variant (or canonical) -> canonical
	version string
}

// LoadSynonyms reads the dictionary at path. An empty path returns an
// empty dictionary; a missing file is an error, a present-but-invalid
// file likewise.
func LoadSynonyms(path string) (*Synonyms, error) {
	if path == "" {
		return &Synonyms{groups: map[string][]string{}, lookup: map[string]string{}}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading synonyms file: %w", err)
	}
	var groups map[string][]string
	if err := yaml.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("parsing synonyms file %s: %w", path, err)
	}
	return newSynonyms(groups), nil
}

func newSynonyms(groups map[string][]string) *Synonyms {
	if groups == nil {
		groups = map[string][]string{}
	}
	lookup := make(map[string]string)
	normalized := make(map[string][]string, len(groups))
	for canonical, variants := range groups {
		c := strings.ToLower(canonical)
		normalized[c] = variants
		lookup[c] = c
		for _, v := range variants {
			lookup[strings.ToLower(v)] = c
		}
	}
	return &Synonyms{groups: normalized, lookup: lookup, version: versionHash(groups)}
}

// versionHash digests the dictionary content in a canonical order. The
// hash participates in query-cache keys so a dictionary edit stops stale
// cached answers from being served.
func versionHash(groups map[string][]string) string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		for _, v := range groups[k] {
			h.Write([]byte(v))
			h.Write([]byte{1})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Version returns the content hash of the loaded dictionary.
func (s *Synonyms) Version() string { return s.version }

// Expand returns the expansion terms for the given tokens: for every
// token with a dictionary entry, the canonical term and all its variants,
// minus terms already present in the input. Order is deterministic
// (input order, then dictionary order within a group).
func (s *Synonyms) Expand(tokens []string) []string {
	present := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		present[tok] = struct{}{}
	}

	var expansion []string
	add := func(term string) {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			return
		}
		if _, dup := present[term]; dup {
			return
		}
		present[term] = struct{}{}
		expansion = append(expansion, term)
	}

	for _, tok := range tokens {
		canonical, ok := s.lookup[tok]
		if !ok {
			continue
		}
		add(canonical)
		for _, v := range s.groups[canonical] {
			add(v)
		}
	}
	return expansion
}
