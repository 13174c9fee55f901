package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/registry-engine/internal/embed"
	"github.com/pdiddy/registry-engine/internal/semantic"
	"github.com/pdiddy/registry-engine/internal/store"
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Compute embedding vectors for changed entries",
	Long: `Embed selects entries that do not yet have a semantic item (all of them
with --force), normalizes their product names, expands synonyms, and
computes embedding vectors in batches through the configured provider.

Selection can be narrowed to specific source files or row ids, capped
with --limit, or partitioned across independent workers with
--shard-count/--shard-index. Shards are disjoint and together cover the
whole target set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := embedOptions(cmd)
		if err != nil {
			return err
		}

		s, err := store.Open(storeConfig(cmd))
		if err != nil {
			return err
		}
		defer s.Close()

		cfg := embeddingConfig()
		if cfg.APIKey == "" {
			return fmt.Errorf("no embedding API key configured (set embedding.api_key or .secrets/embedding-api-key)")
		}
		synonyms, err := semantic.LoadSynonyms(searchConfig().SynonymsPath)
		if err != nil {
			return err
		}

		coordinator := embed.NewCoordinator(s, embed.NewOpenAIProvider(cfg), synonyms, cfg)
		summary, err := coordinator.Run(cmd.Context(), opts, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if summary.HasFailures() {
			fmt.Fprintf(cmd.OutOrStdout(), "completed with %d of %d rows failed\n", summary.Failed, summary.Selected)
		}
		return nil
	},
}

func init() {
	embedCmd.Flags().StringSlice("source-file", nil, "restrict to entries from these snapshot files (repeatable)")
	embedCmd.Flags().Int64Slice("id", nil, "restrict to these entry ids (repeatable)")
	embedCmd.Flags().Int("limit", 0, "process at most N entries")
	embedCmd.Flags().Int("shard-count", 0, "partition the target set into N disjoint shards")
	embedCmd.Flags().Int("shard-index", 0, "which shard this worker processes (0-based)")
	embedCmd.Flags().Bool("force", false, "recompute entries that already have a semantic item")
	embedCmd.Flags().Bool("dry-run", false, "compute vectors but persist nothing")
	rootCmd.AddCommand(embedCmd)
}

func embedOptions(cmd *cobra.Command) (embed.Options, error) {
	sourceFiles, _ := cmd.Flags().GetStringSlice("source-file")
	ids, _ := cmd.Flags().GetInt64Slice("id")
	limit, _ := cmd.Flags().GetInt("limit")
	shardCount, _ := cmd.Flags().GetInt("shard-count")
	shardIndex, _ := cmd.Flags().GetInt("shard-index")
	force, _ := cmd.Flags().GetBool("force")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	if shardCount > 0 && !cmd.Flags().Changed("shard-index") {
		return embed.Options{}, fmt.Errorf("--shard-count requires --shard-index")
	}

	return embed.Options{
		SourceFiles: sourceFiles,
		IDs:         ids,
		Limit:       limit,
		ShardCount:  shardCount,
		ShardIndex:  shardIndex,
		Force:       force,
		DryRun:      dryRun,
	}, nil
}
