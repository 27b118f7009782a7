// Package embed wraps an OpenAI-compatible embedding endpoint. Document-side
// and query-side encoding are asymmetric: queries get an instruction prefix
// (BGE-style), documents are embedded as-is.
package embed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// Config configures the embedding client.
type Config struct {
	BaseURL          string
	APIKey           string
	Model            string
	Timeout          time.Duration
	BatchSize        int
	QueryInstruction string
}

// Client calls the embedding service.
type Client struct {
	api         *openai.Client
	model       string
	batchSize   int
	instruction string
	log         *logrus.Logger
}

// New creates an embedding client for the given endpoint.
func New(cfg Config, log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.New()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.BaseURL
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Client{
		api:         openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		batchSize:   cfg.BatchSize,
		instruction: cfg.QueryInstruction,
		log:         log,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Encode embeds a single document-side text.
func (c *Client) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EncodeBatch embeds texts in request batches, returning vectors in input
// order.
func (c *Client) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += c.batchSize {
		end := i + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(c.model),
			Input: texts[i:end],
		})
		if err != nil {
			return nil, fmt.Errorf("embedding request: %w", err)
		}
		if len(resp.Data) != end-i {
			return nil, fmt.Errorf("expected %d embeddings, got %d", end-i, len(resp.Data))
		}
		for _, d := range resp.Data {
			out = append(out, d.Embedding)
		}
	}
	return out, nil
}

// EncodeQuery embeds a query-side text with the retrieval instruction prefix.
func (c *Client) EncodeQuery(ctx context.Context, text string) ([]float32, error) {
	return c.Encode(ctx, c.instruction+text)
}
