// Package rerank calls a cross-encoder scoring service over (query, passage)
// pairs. The service returns one raw relevance logit per pair; callers map
// logits to (0, 1) with Sigmoid before thresholding.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Pair is one (query, passage) scoring input.
type Pair struct {
	Query   string
	Passage string
}

// Config configures the reranker client.
type Config struct {
	Endpoint  string
	Model     string
	APIKey    string
	Timeout   time.Duration
	BatchSize int
}

// Client scores pairs against the cross-encoder endpoint.
type Client struct {
	cfg  Config
	http *http.Client
	log  *logrus.Logger
}

// New creates a reranker client.
func New(cfg Config, log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.New()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// ScorePairs returns one logit per pair, same length and order as the input.
func (c *Client) ScorePairs(ctx context.Context, pairs []Pair) ([]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	scores := make([]float64, 0, len(pairs))
	for i := 0; i < len(pairs); i += c.cfg.BatchSize {
		end := i + c.cfg.BatchSize
		if end > len(pairs) {
			end = len(pairs)
		}
		batch, err := c.scoreBatch(ctx, pairs[i:end])
		if err != nil {
			return nil, err
		}
		scores = append(scores, batch...)
	}
	return scores, nil
}

func (c *Client) scoreBatch(ctx context.Context, pairs []Pair) ([]float64, error) {
	raw := make([][2]string, len(pairs))
	for i, p := range pairs {
		raw[i] = [2]string{p.Query, p.Passage}
	}
	body, err := json.Marshal(map[string]any{
		"model": c.cfg.Model,
		"pairs": raw,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("reranker returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Scores []float64 `json:"scores"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	if len(result.Scores) != len(pairs) {
		return nil, fmt.Errorf("expected %d scores, got %d", len(pairs), len(result.Scores))
	}
	return result.Scores, nil
}

// Sigmoid maps a raw logit to (0, 1).
func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
