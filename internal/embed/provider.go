// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embed computes and persists embedding vectors for reconciled
// registry entries.
package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pdiddy/registry-engine/pkg/types"
)

// Provider turns a batch of texts into one fixed-dimension vector per
// text. Failure is signaled per call, not per item.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ErrTransient wraps provider failures worth retrying (rate limits,
// server errors, transport failures).
var ErrTransient = errors.New("transient provider error")

// OpenAIProvider calls an OpenAI-compatible embeddings endpoint.
type OpenAIProvider struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// NewOpenAIProvider builds a provider from the embedding configuration.
func NewOpenAIProvider(cfg types.EmbeddingConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
	}
}

// Embed requests one vector per input text in a single API call.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          p.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if p.dimensions > 0 {
		req.Dimensions = p.dimensions
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, classifyAPIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("provider returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vecs := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("provider returned out-of-range index %d", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// classifyAPIError separates retryable failures from permanent ones.
// Rate limits, server errors, and transport errors are transient; any
// other API rejection means the request itself is bad and a retry cannot
// help.
func classifyAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("embedding API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, ErrTransient)
		}
		return fmt.Errorf("embedding API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("embedding request error %d: %w", reqErr.HTTPStatusCode, ErrTransient)
		}
		return fmt.Errorf("embedding request error %d: %v", reqErr.HTTPStatusCode, reqErr.Err)
	}
	// Transport-level failure (connection refused, timeout).
	return fmt.Errorf("embedding request failed: %v: %w", err, ErrTransient)
}
