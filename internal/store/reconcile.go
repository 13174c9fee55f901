// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pdiddy/registry-engine/internal/fingerprint"
	"github.com/pdiddy/registry-engine/pkg/types"
)

// Reconcile diffs the fingerprinted snapshot against the persisted entry
// set and applies the minimal changeset: entries whose fingerprint is
// absent from the snapshot are deleted, incoming records whose
// fingerprint is absent from the store are inserted, and everything else
// is left untouched (which keeps surrogate ids and derived semantic
// items stable for unchanged rows).
//
// The whole operation (idempotency check, diff, deletes, inserts, and
// the provenance append) runs in one transaction. A crash mid-way
// leaves the store exactly as before. Snapshots must be applied
// sequentially: concurrent Reconcile calls against the same store are
// not supported.
//
// A byte-identical snapshot already recorded in the provenance ledger
// short-circuits with Applied=false and zero writes. An empty record set
// deletes every entry; callers are expected to reject an empty snapshot
// before getting here.
func (s *Store) Reconcile(ctx context.Context, file types.FileIdentity, records []types.CanonicalRecord, w io.Writer) (types.ReconcileSummary, error) {
	var summary types.ReconcileSummary

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return summary, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Idempotency guard: (file name, file hash) already applied.
	var applied int
	err = tx.QueryRowContext(ctx,
		`SELECT count(*) FROM provenance WHERE file_name = ? AND file_hash = ?`,
		file.Name, file.Hash,
	).Scan(&applied)
	if err != nil {
		return summary, fmt.Errorf("checking provenance: %w", err)
	}
	if applied > 0 {
		fmt.Fprintf(w, "already applied %s (%s)\n", file.Name, shortHash(file.Hash))
		return summary, nil
	}

	// Distinct fingerprints of the incoming set.
	newSet := make(map[string]struct{}, len(records))
	for _, rec := range records {
		newSet[fingerprint.Record(rec)] = struct{}{}
	}

	// Existing fingerprints, recomputed from stored field values rather
	// than cached, so the diff never trusts a stale digest.
	rows, err := tx.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries ORDER BY id`)
	if err != nil {
		return summary, fmt.Errorf("querying entries: %w", err)
	}
	existingSet := make(map[string]struct{})
	var toDelete []int64
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return summary, fmt.Errorf("scanning entry: %w", err)
		}
		fp := fingerprint.Record(e.Record)
		existingSet[fp] = struct{}{}
		if _, keep := newSet[fp]; !keep {
			toDelete = append(toDelete, e.ID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return summary, fmt.Errorf("iterating entries: %w", err)
	}

	var toInsert []types.CanonicalRecord
	for _, rec := range records {
		if _, exists := existingSet[fingerprint.Record(rec)]; !exists {
			toInsert = append(toInsert, rec)
		}
	}

	// Deletes cascade to semantic_items via the foreign key.
	delStmt, err := tx.PrepareContext(ctx, `DELETE FROM entries WHERE id = ?`)
	if err != nil {
		return summary, fmt.Errorf("preparing delete: %w", err)
	}
	defer delStmt.Close()
	for _, id := range toDelete {
		if _, err := delStmt.ExecContext(ctx, id); err != nil {
			return summary, fmt.Errorf("deleting entry %d: %w", id, err)
		}
	}

	insStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entries (nameoforg, inn, ogrn, productname, okpd2, tnved,
			regnumber, registernumber, percent, domestic, level, regdate, expirydate, source_file)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return summary, fmt.Errorf("preparing insert: %w", err)
	}
	defer insStmt.Close()

	inserted := 0
	for _, rec := range toInsert {
		res, err := insStmt.ExecContext(ctx, entryArgs(rec, file.Name)...)
		if err != nil {
			return summary, fmt.Errorf("inserting entry: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	// Provenance rides in the same transaction: either the changeset and
	// its ledger record both land, or neither does.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO provenance (file_name, file_hash, file_size, rows_inserted, applied_at)
		 VALUES (?, ?, ?, ?, ?)`,
		file.Name, file.Hash, file.Size, inserted, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return summary, fmt.Errorf("recording provenance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return summary, fmt.Errorf("committing reconciliation: %w", err)
	}

	summary = types.ReconcileSummary{
		Applied:    true,
		Deleted:    len(toDelete),
		Candidates: len(toInsert),
		Inserted:   inserted,
	}
	fmt.Fprintf(w, "reconciled %s: deleted %d, inserted %d (of %d candidates), %d records in snapshot\n",
		file.Name, summary.Deleted, summary.Inserted, summary.Candidates, len(records))
	return summary, nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
