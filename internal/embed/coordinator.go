// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pdiddy/registry-engine/internal/semantic"
	"github.com/pdiddy/registry-engine/internal/store"
	"github.com/pdiddy/registry-engine/pkg/types"
)

// retryBaseDelay is the base duration for exponential backoff on
// transient provider failures. Tests override this to avoid real sleeps.
var retryBaseDelay = 2 * time.Second

const (
	defaultBatchSize  = 64
	defaultMaxRetries = 3
)

// Options selects and shapes one coordinator run. The zero value embeds
// every entry that is missing a semantic item.
type Options struct {
	// SourceFiles, IDs, and Limit narrow the selection (see
	// store.TargetFilter).
	SourceFiles []string
	IDs         []int64
	Limit       int

	// ShardCount/ShardIndex bind this run to one deterministic partition
	// of the target set. Shards are disjoint and together cover the
	// whole set, so independent workers can run one shard each with no
	// coordination.
	ShardCount int
	ShardIndex int

	// Force recomputes rows that already have a semantic item.
	Force bool

	// DryRun computes vectors but persists nothing.
	DryRun bool
}

func (o Options) filter() store.TargetFilter {
	return store.TargetFilter{
		SourceFiles: o.SourceFiles,
		IDs:         o.IDs,
		Limit:       o.Limit,
		ShardCount:  o.ShardCount,
		ShardIndex:  o.ShardIndex,
		Force:       o.Force,
	}
}

// Coordinator computes embeddings for changed entries. Each row-level
// upsert commits independently; a run interrupted between batches leaves
// completed batches in place, and re-running with the same filters picks
// up only rows still missing an item (unless forced).
type Coordinator struct {
	store    *store.Store
	provider Provider
	synonyms *semantic.Synonyms
	cfg      types.EmbeddingConfig
}

// NewCoordinator wires a coordinator from its collaborators.
func NewCoordinator(s *store.Store, provider Provider, synonyms *semantic.Synonyms, cfg types.EmbeddingConfig) *Coordinator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	return &Coordinator{store: s, provider: provider, synonyms: synonyms, cfg: cfg}
}

// Run selects target entries, computes their vectors in bounded batches,
// and upserts the results. Invalid shard parameters are rejected before
// any work starts. Total provider unavailability aborts the run after
// exhausting retries. Per-row failures are counted and reported without
// stopping the remaining batches, unless every row fails, which fails
// the run.
func (c *Coordinator) Run(ctx context.Context, opts Options, w io.Writer) (types.EmbedSummary, error) {
	var summary types.EmbedSummary

	filter := opts.filter()
	if err := filter.Validate(); err != nil {
		return summary, err
	}

	targets, err := c.store.EmbedTargets(ctx, filter)
	if err != nil {
		return summary, err
	}
	summary.Selected = len(targets)
	if len(targets) == 0 {
		fmt.Fprintln(w, "no entries to embed")
		return summary, nil
	}

	if opts.DryRun {
		fmt.Fprintln(w, "dry run: nothing will be written")
	}

	for start := 0; start < len(targets); start += c.cfg.BatchSize {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		end := min(start+c.cfg.BatchSize, len(targets))
		if err := c.runBatch(ctx, targets[start:end], opts.DryRun, &summary, w); err != nil {
			return summary, err
		}
		fmt.Fprintf(w, "processed %d / selected %d (skipped: %d, failed: %d)\n",
			summary.Processed, summary.Selected, summary.Skipped, summary.Failed)
	}

	if summary.AllFailed() {
		return summary, fmt.Errorf("all %d rows failed embedding", summary.Failed)
	}
	return summary, nil
}

// runBatch embeds one bounded slice of targets and upserts the results.
func (c *Coordinator) runBatch(ctx context.Context, batch []store.EmbedTarget, dryRun bool, summary *types.EmbedSummary, w io.Writer) error {
	// Rows with no usable search text are skipped up front; they would
	// produce meaningless vectors.
	rows := make([]store.EmbedTarget, 0, len(batch))
	texts := make([]string, 0, len(batch))
	for _, t := range batch {
		normalized := semantic.NormalizeText(t.ProductName)
		if normalized == "" {
			fmt.Fprintf(w, "skipped id=%d: no searchable text\n", t.ID)
			summary.Skipped++
			continue
		}
		rows = append(rows, t)
		texts = append(texts, c.embeddingInput(normalized))
	}
	if len(rows) == 0 {
		return nil
	}

	vecs, err := c.embedWithRetry(ctx, texts, w)
	if err != nil {
		return fmt.Errorf("embedding batch of %d: %w", len(rows), err)
	}
	if len(vecs) != len(rows) {
		return fmt.Errorf("provider returned %d vectors for %d inputs", len(vecs), len(rows))
	}

	for i, t := range rows {
		vec := vecs[i]
		if c.cfg.Dimensions > 0 && len(vec) != c.cfg.Dimensions {
			fmt.Fprintf(w, "failed id=%d: vector has %d dimensions, want %d\n", t.ID, len(vec), c.cfg.Dimensions)
			summary.Failed++
			continue
		}
		if dryRun {
			fmt.Fprintf(w, "dry-run id=%d text=%q\n", t.ID, texts[i])
			summary.Processed++
			continue
		}
		normalized := semantic.NormalizeText(t.ProductName)
		expansion := c.synonyms.Expand(semantic.Tokens(t.ProductName))
		if err := c.store.UpsertSemanticItem(ctx, t.ID, normalized, strings.Join(expansion, " "), vec); err != nil {
			fmt.Fprintf(w, "failed id=%d: %v\n", t.ID, err)
			summary.Failed++
			continue
		}
		summary.Processed++
	}
	return nil
}

// embeddingInput appends synonym expansion terms to the normalized text
// so near-miss vocabulary lands close in vector space.
func (c *Coordinator) embeddingInput(normalized string) string {
	expansion := c.synonyms.Expand(strings.Fields(normalized))
	if len(expansion) == 0 {
		return normalized
	}
	return normalized + " " + strings.Join(expansion, " ")
}

// embedWithRetry retries transient provider failures with exponential
// backoff, then gives up. Permanent failures abort immediately.
func (c *Coordinator) embedWithRetry(ctx context.Context, texts []string, w io.Writer) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := retryBaseDelay << (attempt - 1)
			fmt.Fprintf(w, "provider error, retrying in %v (attempt %d/%d)\n", backoff, attempt, c.cfg.MaxRetries)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		vecs, err := c.provider.Embed(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		if !errors.Is(err, ErrTransient) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("provider unavailable after %d retries: %w", c.cfg.MaxRetries, lastErr)
}
