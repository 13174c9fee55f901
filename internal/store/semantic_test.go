// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"testing"

	"github.com/pdiddy/registry-engine/pkg/types"
)

func seedEntries(t *testing.T, s *Store, suffixes ...string) []Entry {
	t.Helper()
	records := make([]types.CanonicalRecord, len(suffixes))
	for i, suffix := range suffixes {
		records[i] = record(suffix)
	}
	reconcile(t, s, snapshot(1), records...)

	entries, err := s.Entries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return entries
}

func TestEmbedTargetsSelectsMissing(t *testing.T) {
	s := testStore(t)
	entries := seedEntries(t, s, "A", "B", "C")

	err := s.UpsertSemanticItem(context.Background(), entries[0].ID, "text", "", []float32{1})
	if err != nil {
		t.Fatal(err)
	}

	targets, err := s.EmbedTargets(context.Background(), TargetFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 2 {
		t.Fatalf("got %d targets, want 2", len(targets))
	}
	for _, target := range targets {
		if target.ID == entries[0].ID {
			t.Error("already-embedded entry selected without Force")
		}
		if target.ProductName == "" {
			t.Error("target carries no product name")
		}
	}
}

func TestEmbedTargetsForce(t *testing.T) {
	s := testStore(t)
	entries := seedEntries(t, s, "A", "B")

	for _, e := range entries {
		if err := s.UpsertSemanticItem(context.Background(), e.ID, "text", "", []float32{1}); err != nil {
			t.Fatal(err)
		}
	}

	targets, err := s.EmbedTargets(context.Background(), TargetFilter{Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 2 {
		t.Errorf("got %d targets with Force, want 2", len(targets))
	}
}

func TestEmbedTargetsSkipsEmptyProductName(t *testing.T) {
	s := testStore(t)
	blank := record("A")
	blank.ProductName = nil
	reconcile(t, s, snapshot(1), blank, record("B"))

	targets, err := s.EmbedTargets(context.Background(), TargetFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 1 {
		t.Errorf("got %d targets, want 1 (nameless entry excluded)", len(targets))
	}
}

func TestEmbedTargetsSourceFileFilter(t *testing.T) {
	s := testStore(t)
	reconcile(t, s, snapshot(1), record("A"))
	reconcile(t, s, snapshot(2), record("A"), record("B"))

	targets, err := s.EmbedTargets(context.Background(), TargetFilter{
		SourceFiles: []string{snapshot(2).Name},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 1 {
		t.Fatalf("got %d targets, want only the entry inserted by snapshot 2", len(targets))
	}
	if targets[0].ProductName != *record("B").ProductName {
		t.Errorf("selected %q, want entry B", targets[0].ProductName)
	}
}

func TestEmbedTargetsIDAndLimit(t *testing.T) {
	s := testStore(t)
	entries := seedEntries(t, s, "A", "B", "C")

	targets, err := s.EmbedTargets(context.Background(), TargetFilter{
		IDs: []int64{entries[1].ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 1 || targets[0].ID != entries[1].ID {
		t.Errorf("id filter selected %v", targets)
	}

	limited, err := s.EmbedTargets(context.Background(), TargetFilter{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("got %d targets with limit 2", len(limited))
	}
}

func TestEmbedTargetsShardsPartition(t *testing.T) {
	s := testStore(t)
	seedEntries(t, s, "A", "B", "C", "D", "E")

	const shardCount = 3
	seen := make(map[int64]int)
	for index := 0; index < shardCount; index++ {
		targets, err := s.EmbedTargets(context.Background(), TargetFilter{
			ShardCount: shardCount,
			ShardIndex: index,
		})
		if err != nil {
			t.Fatal(err)
		}
		for _, target := range targets {
			seen[target.ID]++
			if target.ID%shardCount != int64(index) {
				t.Errorf("entry %d landed in shard %d", target.ID, index)
			}
		}
	}

	// Disjoint and complete: every entry in exactly one shard.
	if len(seen) != 5 {
		t.Errorf("shards covered %d entries, want 5", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("entry %d selected by %d shards", id, n)
		}
	}
}

func TestTargetFilterValidate(t *testing.T) {
	tests := []struct {
		name    string
		filter  TargetFilter
		wantErr bool
	}{
		{"zero value", TargetFilter{}, false},
		{"single shard", TargetFilter{ShardCount: 1, ShardIndex: 0}, false},
		{"valid shard", TargetFilter{ShardCount: 4, ShardIndex: 3}, false},
		{"index out of range", TargetFilter{ShardCount: 4, ShardIndex: 4}, true},
		{"negative index", TargetFilter{ShardCount: 4, ShardIndex: -1}, true},
		{"negative count", TargetFilter{ShardCount: -1}, true},
		{"negative limit", TargetFilter{Limit: -5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpsertSemanticItemReplaces(t *testing.T) {
	s := testStore(t)
	entries := seedEntries(t, s, "A")
	id := entries[0].ID

	if err := s.UpsertSemanticItem(context.Background(), id, "first", "", []float32{1, 2}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertSemanticItem(context.Background(), id, "second", "synonym", []float32{3, 4}); err != nil {
		t.Fatal(err)
	}

	var got []SemanticVector
	err := s.SemanticVectors(context.Background(), func(v SemanticVector) error {
		got = append(got, v)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d items, want 1 after upsert", len(got))
	}
	if got[0].NormalizedText != "second" {
		t.Errorf("NormalizedText = %q, want %q", got[0].NormalizedText, "second")
	}
	if len(got[0].Embedding) != 2 || got[0].Embedding[0] != 3 || got[0].Embedding[1] != 4 {
		t.Errorf("Embedding = %v, want [3 4]", got[0].Embedding)
	}
}

func TestVectorCodecRoundTrip(t *testing.T) {
	vec := []float32{0, 1, -1, 0.5, 3.14159, -2.71828}
	got, err := bytesToVector(vectorToBytes(vec))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(vec) {
		t.Fatalf("got %d floats, want %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("index %d: got %v, want %v", i, got[i], vec[i])
		}
	}
}

func TestBytesToVectorRejectsMisaligned(t *testing.T) {
	if _, err := bytesToVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for misaligned blob, got nil")
	}
}
