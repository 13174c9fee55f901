// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pdiddy/registry-engine/internal/embed"
	"github.com/pdiddy/registry-engine/internal/fetch"
	"github.com/pdiddy/registry-engine/internal/semantic"
	"github.com/pdiddy/registry-engine/internal/store"
	"github.com/pdiddy/registry-engine/pkg/types"
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one full pipeline cycle and emit a run summary",
	Long: `Cycle runs the whole pipeline once: locate or download the newest
snapshot, reconcile it, and embed whatever the reconciliation inserted.
Progress goes to stderr; stdout carries exactly one JSON run summary,
so a scheduler can pipe it straight into a notifier.

The summary status is "ok" when every stage succeeded, "partial" when
the snapshot was applied but some rows failed to embed, and "failed"
otherwise. A snapshot that was already applied yields "ok" with an
untouched reconcile summary.

The process exit code follows the status: only "failed" is non-zero.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		summary := runCycle(cmd)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return err
		}
		if summary.Status == types.RunFailed {
			return fmt.Errorf("cycle failed: %s", summary.Error)
		}
		return nil
	},
	SilenceUsage: true,
}

func init() {
	cycleCmd.Flags().Bool("no-fetch", false, "reconcile the newest local snapshot without downloading")
	rootCmd.AddCommand(cycleCmd)
}

// runCycle executes the stages and folds every outcome, error included,
// into one RunSummary.
func runCycle(cmd *cobra.Command) types.RunSummary {
	log := cmd.ErrOrStderr()
	noFetch, _ := cmd.Flags().GetBool("no-fetch")

	snapCfg := snapshotConfig()
	path, err := locateSnapshot(cmd, snapCfg, noFetch)
	if err != nil {
		return types.RunSummary{Status: types.RunFailed, Error: err.Error()}
	}

	s, err := store.Open(storeConfig(cmd))
	if err != nil {
		return types.RunSummary{Status: types.RunFailed, File: path, Error: err.Error()}
	}
	defer s.Close()

	reconcile, file, err := ingestFile(cmd, s, path)
	summary := types.RunSummary{
		File:     file.Name,
		FileHash: file.Hash,
		FileSize: file.Size,
	}
	if err != nil {
		summary.Status = types.RunFailed
		summary.Error = err.Error()
		return summary
	}
	summary.Reconcile = reconcile
	summary.Status = types.RunOK

	if !reconcile.Applied {
		fmt.Fprintln(log, "snapshot already applied, skipping embedding")
		return summary
	}
	if reconcile.Inserted == 0 {
		fmt.Fprintln(log, "no new entries, skipping embedding")
		return summary
	}

	embedSummary, err := embedSourceFile(cmd, s, file.Name)
	summary.Embedding = &embedSummary
	switch {
	case err != nil:
		summary.Status = types.RunFailed
		summary.Error = err.Error()
	case embedSummary.HasFailures():
		summary.Status = types.RunPartial
		summary.Error = fmt.Sprintf("%d of %d rows failed to embed", embedSummary.Failed, embedSummary.Selected)
	}
	return summary
}

// locateSnapshot downloads the newest snapshot, or just finds the newest
// local file when asked not to fetch.
func locateSnapshot(cmd *cobra.Command, cfg types.SnapshotConfig, noFetch bool) (string, error) {
	if noFetch {
		path, err := fetch.NewestLocal(cfg.FilesDir)
		if err != nil {
			return "", err
		}
		return path, nil
	}
	client := &http.Client{Timeout: httpTimeout(cfg)}
	res, err := fetch.Latest(cmd.Context(), client, cfg, cmd.ErrOrStderr())
	if err != nil {
		return "", err
	}
	return res.Path, nil
}

// embedSourceFile embeds entries inserted from one snapshot file.
func embedSourceFile(cmd *cobra.Command, s *store.Store, fileName string) (types.EmbedSummary, error) {
	cfg := embeddingConfig()
	if cfg.APIKey == "" {
		return types.EmbedSummary{}, fmt.Errorf("no embedding API key configured (set embedding.api_key or .secrets/embedding-api-key)")
	}
	synonyms, err := semantic.LoadSynonyms(searchConfig().SynonymsPath)
	if err != nil {
		return types.EmbedSummary{}, err
	}

	coordinator := embed.NewCoordinator(s, embed.NewOpenAIProvider(cfg), synonyms, cfg)
	return coordinator.Run(cmd.Context(), embed.Options{SourceFiles: []string{fileName}}, cmd.ErrOrStderr())
}
