// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the registry-engine CLI.
//
// Each pipeline stage is a subcommand: fetch, ingest, embed, search, and
// cycle. An external scheduler (cron, a container orchestrator) composes
// them; the CLI itself runs exactly one cycle of whatever it is asked to
// do and exits.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/registry-engine/internal/secrets"
	"github.com/pdiddy/registry-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns fallback when set, otherwise the secret value
// for key if one was loaded.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the registry-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "registry-engine",
	Short: "Snapshot reconciliation and semantic search for the product registry",
	Long: `registry-engine ingests daily full-snapshot CSV exports of the product
registry, reconciles them against a local SQLite store by content
fingerprint, and maintains a semantic-search index (normalized text +
embedding vectors + a query cache) over the reconciled records.

Each stage is a subcommand: fetch downloads the newest snapshot, ingest
reconciles one file, embed computes vectors for changed records, search
answers semantic queries, and cycle runs the whole pipeline once and
emits a machine-readable run summary.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./registry-engine.yaml or ~/.config/registry-engine/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "directory for the SQLite database (default: data)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("registry-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "registry-engine"))
		}
	}

	viper.SetEnvPrefix("REGISTRY_ENGINE")
	viper.AutomaticEnv()

	viper.SetDefault("store.data_dir", "data")
	viper.SetDefault("snapshot.files_dir", "files")
	viper.SetDefault("snapshot.base_url", "https://minpromtorg.gov.ru/opendata/1000000012-ReestrProducts/data-{date}-structure-20210405.csv")
	viper.SetDefault("snapshot.delimiter", ";")
	viper.SetDefault("snapshot.lookback_days", 30)
	viper.SetDefault("snapshot.timeout", "30s")
	viper.SetDefault("snapshot.user_agent", "registry-engine/"+version)
	viper.SetDefault("embedding.base_url", "")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dimensions", 0)
	viper.SetDefault("embedding.batch_size", 64)
	viper.SetDefault("embedding.max_retries", 3)
	viper.SetDefault("search.max_results", 10)
	viper.SetDefault("search.synonyms_path", "")
	viper.SetDefault("search.cache_enabled", true)

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// --- config assembly ---

func storeConfig(cmd *cobra.Command) types.StoreConfig {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	if dataDir == "" {
		dataDir = viper.GetString("store.data_dir")
	}
	return types.StoreConfig{DataDir: dataDir}
}

func snapshotConfig() types.SnapshotConfig {
	return types.SnapshotConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   viper.GetDuration("snapshot.timeout"),
			UserAgent: viper.GetString("snapshot.user_agent"),
		},
		FilesDir:     viper.GetString("snapshot.files_dir"),
		BaseURL:      viper.GetString("snapshot.base_url"),
		Delimiter:    viper.GetString("snapshot.delimiter"),
		LookbackDays: viper.GetInt("snapshot.lookback_days"),
	}
}

func embeddingConfig() types.EmbeddingConfig {
	return types.EmbeddingConfig{
		APIKey:     secretDefault("embedding-api-key", viper.GetString("embedding.api_key")),
		BaseURL:    viper.GetString("embedding.base_url"),
		Model:      viper.GetString("embedding.model"),
		Dimensions: viper.GetInt("embedding.dimensions"),
		BatchSize:  viper.GetInt("embedding.batch_size"),
		MaxRetries: viper.GetInt("embedding.max_retries"),
	}
}

func searchConfig() types.SearchConfig {
	return types.SearchConfig{
		MaxResults:   viper.GetInt("search.max_results"),
		SynonymsPath: viper.GetString("search.synonyms_path"),
		CacheEnabled: viper.GetBool("search.cache_enabled"),
	}
}

// snapshotDelimiter returns the configured CSV delimiter as a rune.
func snapshotDelimiter(cfg types.SnapshotConfig) rune {
	for _, r := range cfg.Delimiter {
		return r
	}
	return ';'
}

// httpTimeout applies the configured timeout with a floor default.
func httpTimeout(cfg types.SnapshotConfig) time.Duration {
	if cfg.Timeout > 0 {
		return cfg.Timeout
	}
	return 30 * time.Second
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
