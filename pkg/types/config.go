package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "registry-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// SnapshotConfig holds settings for snapshot retrieval and parsing.
type SnapshotConfig struct {
	HTTPConfig `yaml:",inline"`

	// FilesDir is the directory holding downloaded snapshot CSV files.
	FilesDir string `json:"files_dir" yaml:"files_dir"`

	// BaseURL is the snapshot URL template; the literal "{date}" is
	// replaced with the candidate date formatted as 20060102.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Delimiter is the CSV field separator (default ';').
	Delimiter string `json:"delimiter" yaml:"delimiter"`

	// LookbackDays bounds how far back fetch searches for a published
	// snapshot (default 30).
	LookbackDays int `json:"lookback_days" yaml:"lookback_days"`
}

// StoreConfig holds settings for the persisted registry store.
type StoreConfig struct {
	// DataDir is the directory containing the SQLite database file.
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// EmbeddingConfig holds settings for the embedding provider and coordinator.
type EmbeddingConfig struct {
	// APIKey authenticates against the embedding API. Usually loaded
	// from .secrets/embedding-api-key rather than the config file.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL is the OpenAI-compatible API base (e.g. "https://api.studio.nebius.com/v1").
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Model is the embedding model identifier.
	Model string `json:"model" yaml:"model"`

	// Dimensions is the expected vector length; a response vector of any
	// other length fails that row.
	Dimensions int `json:"dimensions" yaml:"dimensions"`

	// BatchSize bounds how many texts are sent per provider call (default 64).
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// MaxRetries is the number of retry attempts for a transiently failed
	// provider call (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// SearchConfig holds settings for semantic search and the query cache.
type SearchConfig struct {
	// MaxResults is the default maximum number of search hits (default 10).
	MaxResults int `json:"max_results" yaml:"max_results"`

	// SynonymsPath points at the YAML synonym dictionary. Empty disables
	// synonym expansion.
	SynonymsPath string `json:"synonyms_path" yaml:"synonyms_path"`

	// CacheEnabled controls whether the query cache is consulted and
	// populated (default true).
	CacheEnabled bool `json:"cache_enabled" yaml:"cache_enabled"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Snapshot  SnapshotConfig  `json:"snapshot" yaml:"snapshot"`
	Store     StoreConfig     `json:"store" yaml:"store"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`
	Search    SearchConfig    `json:"search" yaml:"search"`
}
