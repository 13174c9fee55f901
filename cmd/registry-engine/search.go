package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/registry-engine/internal/embed"
	"github.com/pdiddy/registry-engine/internal/semantic"
	"github.com/pdiddy/registry-engine/internal/store"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over registry product names",
	Long: `Search normalizes the query text, expands synonyms, embeds it, and ranks
every indexed entry by cosine distance. Results for a given query text,
synonyms version, and model are cached by content key, so repeating a
query does not call the embedding provider again.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		noCache, _ := cmd.Flags().GetBool("no-cache")
		asJSON, _ := cmd.Flags().GetBool("json")
		query := strings.Join(args, " ")

		s, err := store.Open(storeConfig(cmd))
		if err != nil {
			return err
		}
		defer s.Close()

		cfg := embeddingConfig()
		if cfg.APIKey == "" {
			return fmt.Errorf("no embedding API key configured (set embedding.api_key or .secrets/embedding-api-key)")
		}
		searchCfg := searchConfig()
		synonyms, err := semantic.LoadSynonyms(searchCfg.SynonymsPath)
		if err != nil {
			return err
		}

		searcher := semantic.NewSearcher(s, embed.NewOpenAIProvider(cfg), synonyms, searchCfg, cfg.Model)
		payload, err := searcher.Search(cmd.Context(), query, semantic.SearchOptions{
			Limit:       limit,
			BypassCache: noCache,
		}, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(payload)
		}
		printPayload(cmd, payload)
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("limit", 0, "maximum number of hits (default from config)")
	searchCmd.Flags().Bool("no-cache", false, "bypass the query cache for this lookup")
	searchCmd.Flags().Bool("json", false, "emit the full result payload as JSON")
	rootCmd.AddCommand(searchCmd)
}

func printPayload(cmd *cobra.Command, p semantic.Payload) {
	out := cmd.OutOrStdout()
	if len(p.Synonyms) > 0 {
		fmt.Fprintf(out, "query: %s (expanded: %s)\n", p.Normalized, strings.Join(p.Synonyms, " "))
	} else {
		fmt.Fprintf(out, "query: %s\n", p.Normalized)
	}
	if p.FromCache {
		fmt.Fprintln(out, "(cached)")
	}
	if len(p.Hits) == 0 {
		fmt.Fprintln(out, "no results")
		return
	}
	for i, h := range p.Hits {
		fmt.Fprintf(out, "%2d. [%.4f] %s\n", i+1, h.Distance, h.ProductName)
		var detail []string
		if h.OrgName != "" {
			detail = append(detail, h.OrgName)
		}
		if h.INN != "" {
			detail = append(detail, "INN "+h.INN)
		}
		if h.TNVED != "" {
			detail = append(detail, "TN VED "+h.TNVED)
		}
		if h.RegistryNumber != "" {
			detail = append(detail, "reg "+h.RegistryNumber)
		}
		if len(detail) > 0 {
			fmt.Fprintf(out, "    %s\n", strings.Join(detail, ", "))
		}
	}
}
