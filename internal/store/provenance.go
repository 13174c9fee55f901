// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"fmt"
	"time"
)

// ProvenanceRecord is one row of the append-only ledger of applied
// snapshots. Normal operation never mutates or deletes these rows.
type ProvenanceRecord struct {
	FileName     string
	FileHash     string
	FileSize     int64
	RowsInserted int
	AppliedAt    time.Time
}

// History returns the most recently applied snapshots, newest first.
// limit <= 0 returns the whole ledger.
func (s *Store) History(ctx context.Context, limit int) ([]ProvenanceRecord, error) {
	q := `SELECT file_name, file_hash, file_size, rows_inserted, applied_at
	      FROM provenance ORDER BY id DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying provenance: %w", err)
	}
	defer rows.Close()

	var records []ProvenanceRecord
	for rows.Next() {
		var (
			r         ProvenanceRecord
			appliedAt string
		)
		if err := rows.Scan(&r.FileName, &r.FileHash, &r.FileSize, &r.RowsInserted, &appliedAt); err != nil {
			return nil, fmt.Errorf("scanning provenance: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, appliedAt); err == nil {
			r.AppliedAt = t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
