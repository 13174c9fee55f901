// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdiddy/registry-engine/internal/fingerprint"
	"github.com/pdiddy/registry-engine/internal/normalize"
	"github.com/pdiddy/registry-engine/internal/store"
	"github.com/pdiddy/registry-engine/pkg/types"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [snapshot.csv]",
	Short: "Reconcile one snapshot CSV into the store",
	Long: `Ingest parses a full-snapshot CSV export, normalizes every row into
canonical records, and reconciles them against the store by content
fingerprint. Unchanged records keep their row ids and any semantic
items attached to them; vanished records are deleted and new records
inserted, all in one transaction together with a provenance entry.

A snapshot already recorded in provenance (same name and content hash)
is skipped. Re-running ingest on the same file is therefore safe.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		history, _ := cmd.Flags().GetInt("history")

		s, err := store.Open(storeConfig(cmd))
		if err != nil {
			return err
		}
		defer s.Close()

		if history > 0 {
			return printHistory(cmd, s, history)
		}
		if len(args) != 1 {
			return fmt.Errorf("snapshot file argument required")
		}

		summary, _, err := ingestFile(cmd, s, args[0])
		if err != nil {
			return err
		}
		if !summary.Applied {
			fmt.Fprintln(cmd.OutOrStdout(), "snapshot already applied, nothing to do")
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().Int("history", 0, "print the N most recent applied snapshots instead of ingesting")
	rootCmd.AddCommand(ingestCmd)
}

// ingestFile normalizes and reconciles one snapshot file. It refuses
// empty snapshots, which would otherwise wipe the store.
func ingestFile(cmd *cobra.Command, s *store.Store, path string) (types.ReconcileSummary, types.FileIdentity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.ReconcileSummary{}, types.FileIdentity{}, fmt.Errorf("reading snapshot: %w", err)
	}

	file := types.FileIdentity{
		Name: filepath.Base(path),
		Hash: fingerprint.File(data),
		Size: int64(len(data)),
	}

	records, err := normalize.Snapshot(bytes.NewReader(data), snapshotDelimiter(snapshotConfig()))
	if err != nil {
		return types.ReconcileSummary{}, file, fmt.Errorf("parsing %s: %w", file.Name, err)
	}
	if len(records) == 0 {
		return types.ReconcileSummary{}, file, fmt.Errorf("%s contains no records, refusing to reconcile an empty snapshot", file.Name)
	}

	summary, err := s.Reconcile(cmd.Context(), file, records, cmd.OutOrStdout())
	if err != nil {
		return types.ReconcileSummary{}, file, err
	}
	return summary, file, nil
}

func printHistory(cmd *cobra.Command, s *store.Store, limit int) error {
	records, err := s.History(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no snapshots applied yet")
		return nil
	}
	for _, r := range records {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %12d bytes  %d rows\n",
			r.AppliedAt.Format("2006-01-02 15:04:05"), r.FileName, r.FileSize, r.RowsInserted)
	}
	return nil
}
