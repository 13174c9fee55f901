// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// EmbedTarget is one entry selected for embedding computation.
type EmbedTarget struct {
	ID          int64
	ProductName string
}

// TargetFilter narrows the embedding target selection. Zero value selects
// every entry with a non-empty product name that lacks a semantic item.
type TargetFilter struct {
	// SourceFiles restricts targets to entries inserted from these
	// snapshot files.
	SourceFiles []string

	// IDs restricts targets to explicit surrogate ids.
	IDs []int64

	// Limit caps the number of selected rows; 0 means no cap.
	Limit int

	// ShardCount/ShardIndex pick one deterministic partition of the
	// target set: a row belongs to the shard when id mod ShardCount ==
	// ShardIndex. ShardCount <= 1 disables partitioning.
	ShardCount int
	ShardIndex int

	// Force selects rows even when they already have a semantic item.
	Force bool
}

// Validate rejects filters that would select a nonsensical partition.
func (f TargetFilter) Validate() error {
	if f.ShardCount < 0 {
		return fmt.Errorf("shard count must not be negative, got %d", f.ShardCount)
	}
	count := f.ShardCount
	if count == 0 {
		count = 1
	}
	if f.ShardIndex < 0 || f.ShardIndex >= count {
		return fmt.Errorf("shard index %d out of range [0, %d)", f.ShardIndex, count)
	}
	if f.Limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", f.Limit)
	}
	return nil
}

// EmbedTargets selects the entries matching the filter, ordered by id.
// Selection mirrors the reconciliation invariant: a row keeps its
// semantic item for as long as it lives, so without Force only rows
// missing one are picked up.
func (s *Store) EmbedTargets(ctx context.Context, f TargetFilter) ([]EmbedTarget, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	clauses := []string{
		`e.productname IS NOT NULL`,
		`trim(e.productname) <> ''`,
	}
	var args []any

	if len(f.SourceFiles) > 0 {
		ph := strings.TrimSuffix(strings.Repeat("?,", len(f.SourceFiles)), ",")
		clauses = append(clauses, `e.source_file IN (`+ph+`)`)
		for _, sf := range f.SourceFiles {
			args = append(args, sf)
		}
	}
	if len(f.IDs) > 0 {
		ph, idArgs := inClause(f.IDs)
		clauses = append(clauses, `e.id IN (`+ph+`)`)
		args = append(args, idArgs...)
	}
	if !f.Force {
		clauses = append(clauses, `s.entry_id IS NULL`)
	}
	if f.ShardCount > 1 {
		clauses = append(clauses, `(e.id % ?) = ?`)
		args = append(args, f.ShardCount, f.ShardIndex)
	}

	q := `SELECT e.id, e.productname
	      FROM entries AS e
	      LEFT JOIN semantic_items AS s ON s.entry_id = e.id
	      WHERE ` + strings.Join(clauses, " AND ") + `
	      ORDER BY e.id`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting embedding targets: %w", err)
	}
	defer rows.Close()

	var targets []EmbedTarget
	for rows.Next() {
		var t EmbedTarget
		if err := rows.Scan(&t.ID, &t.ProductName); err != nil {
			return nil, fmt.Errorf("scanning embedding target: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// UpsertSemanticItem writes (normalized text, synonyms, vector) for one
// entry, replacing any previous item. Each upsert commits independently,
// which is what makes interrupted embedding runs resumable.
func (s *Store) UpsertSemanticItem(ctx context.Context, entryID int64, normalized, synonyms string, vec []float32) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO semantic_items (entry_id, normalized_text, synonyms, embedding, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(entry_id) DO UPDATE SET
			normalized_text = excluded.normalized_text,
			synonyms        = excluded.synonyms,
			embedding       = excluded.embedding,
			updated_at      = excluded.updated_at`,
		entryID, normalized, synonyms, vectorToBytes(vec), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting semantic item %d: %w", entryID, err)
	}
	return nil
}

// SemanticVector is one stored embedding, keyed by its entry.
type SemanticVector struct {
	EntryID        int64
	NormalizedText string
	Embedding      []float32
}

// SemanticVectors streams every stored embedding to fn. Search scans the
// whole index; the corpus is small enough that a flat scan beats
// maintaining an approximate index.
func (s *Store) SemanticVectors(ctx context.Context, fn func(SemanticVector) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_id, normalized_text, embedding FROM semantic_items ORDER BY entry_id`)
	if err != nil {
		return fmt.Errorf("querying semantic items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			v    SemanticVector
			blob []byte
		)
		if err := rows.Scan(&v.EntryID, &v.NormalizedText, &blob); err != nil {
			return fmt.Errorf("scanning semantic item: %w", err)
		}
		vec, err := bytesToVector(blob)
		if err != nil {
			return fmt.Errorf("semantic item %d: %w", v.EntryID, err)
		}
		v.Embedding = vec
		if err := fn(v); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SemanticItemCount returns the number of stored semantic items.
func (s *Store) SemanticItemCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM semantic_items`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting semantic items: %w", err)
	}
	return n, nil
}

// Vectors persist as little-endian float32 blobs.

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob: len=%d (not a multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
