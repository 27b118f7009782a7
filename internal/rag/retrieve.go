package rag

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strconv"
	"strings"

	"docrag/internal/cache"
	"docrag/internal/rerank"
)

// Options adjusts a single retrieval call. Zero values fall back to the
// engine's configured defaults.
type Options struct {
	TopK        int
	InitialK    int
	IsImage     bool
	History     []Turn
	SkipEnhance bool
}

func (e *Engine) resolve(opts Options) Options {
	if opts.TopK <= 0 {
		opts.TopK = e.cfg.TopK
	}
	if opts.InitialK <= 0 {
		opts.InitialK = e.cfg.InitialK
	}
	if opts.InitialK < opts.TopK {
		opts.InitialK = opts.TopK
	}
	return opts
}

// Retrieve runs the two-stage pipeline for a query: enhance, embed, full-scan
// similarity against every stored vector, rerank the top survivors, filter,
// and truncate to top-K. An empty store yields an empty result, not an error.
func (e *Engine) Retrieve(ctx context.Context, query string, opts Options) ([]Candidate, error) {
	opts = e.resolve(opts)

	if e.store.Count() == 0 {
		return nil, nil
	}
	if !e.store.HasVectors() {
		return nil, ErrNoVectors
	}

	searchQuery := query
	if e.enhancer != nil && !opts.SkipEnhance {
		searchQuery = e.enhancer.Enhance(ctx, query)
	}

	hist := historyKey(opts.History)
	key := cache.Key{
		Stage:           cache.StageRetrieve,
		Query:           searchQuery,
		History:         hist,
		TopK:            opts.TopK,
		InitialK:        opts.InitialK,
		SimThreshold:    e.cfg.SimThreshold,
		RerankThreshold: e.cfg.RerankThreshold,
		IsImage:         opts.IsImage,
	}
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			return v.([]Candidate), nil
		}
	}
	if cands, ok := e.reuseLast(searchQuery, hist, opts); ok {
		return cands, nil
	}

	qvec, err := e.embed.EncodeQuery(ctx, searchQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	initial, err := e.similaritySearch(qvec, opts.InitialK)
	if err != nil {
		return nil, err
	}

	final, err := e.rerankCandidates(ctx, query, initial, opts)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		e.cache.Put(key, final)
	}
	e.mu.Lock()
	e.last = &lastRetrieval{query: searchQuery, history: hist, topK: opts.TopK, isImage: opts.IsImage, candidates: final}
	e.mu.Unlock()
	return final, nil
}

// historyKey digests the conversation turns into a short comparable string.
// History shapes the contextualized rerank query, so retrievals with
// different histories are different requests even for the same query text.
func historyKey(history []Turn) string {
	if len(history) == 0 {
		return ""
	}
	h := fnv.New64a()
	for _, t := range history {
		h.Write([]byte(t.User))
		h.Write([]byte{0})
		h.Write([]byte(t.Assistant))
		h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// reuseLast serves a retrieval from the immediately preceding call when the
// query and history match and the previous top-K was at least as large,
// sliced down without even a cache-key lookup.
func (e *Engine) reuseLast(query, history string, opts Options) ([]Candidate, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l := e.last
	if l == nil || l.query != query || l.history != history || l.isImage != opts.IsImage || l.topK < opts.TopK {
		return nil, false
	}
	cands := l.candidates
	if len(cands) > opts.TopK {
		cands = cands[:opts.TopK]
	}
	return cands, true
}

// similaritySearch is the first stage: similarity of the query vector against
// every stored row (full scan), thresholded and cut to the top initialK. The
// sort is stable and descending, so ties keep store order.
func (e *Engine) similaritySearch(qvec []float32, initialK int) ([]Candidate, error) {
	records, vectors := e.store.Snapshot()

	threshold := e.cfg.SimThreshold
	l2 := e.cfg.Metric == "l2"
	if l2 {
		// Negative distance means higher-is-better, so the threshold
		// flips sign too.
		threshold = -threshold
	}

	cands := make([]Candidate, 0, len(records))
	for i, vec := range vectors {
		var score float64
		if l2 {
			score = negEuclidean(qvec, vec)
		} else {
			score = cosine(qvec, vec)
		}
		if score < threshold {
			continue
		}
		r := records[i]
		r.TotalChunks = e.totalChunks(records, r)
		cands = append(cands, Candidate{Record: r, InitialScore: score})
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].InitialScore > cands[j].InitialScore })
	if len(cands) > initialK {
		cands = cands[:initialK]
	}
	return cands, nil
}

// rerankCandidates is the second stage: cross-encoder scoring of the
// first-stage survivors only, sigmoid-normalized, thresholded, and cut to
// top-K. Without a reranker the similarity score carries through as the
// final score.
func (e *Engine) rerankCandidates(ctx context.Context, query string, cands []Candidate, opts Options) ([]Candidate, error) {
	if len(cands) == 0 {
		return nil, nil
	}

	if e.reranker == nil {
		for i := range cands {
			cands[i].Score = cands[i].InitialScore
		}
		if len(cands) > opts.TopK {
			cands = cands[:opts.TopK]
		}
		return cands, nil
	}

	rq := contextualize(query, opts.History)
	pairs := make([]rerank.Pair, len(cands))
	for i, c := range cands {
		pairs[i] = rerank.Pair{Query: rq, Passage: e.passageText(c.Record)}
	}
	logits, err := e.reranker.ScorePairs(ctx, pairs)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}

	kept := make([]Candidate, 0, len(cands))
	for i, c := range cands {
		c.Score = rerank.Sigmoid(logits[i])
		if c.Score < e.cfg.RerankThreshold {
			continue
		}
		kept = append(kept, c)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	if len(kept) > opts.TopK {
		kept = kept[:opts.TopK]
	}
	return kept, nil
}

// contextualize prepends recent conversation turns to the query so rerank
// scoring is conversation-aware.
func contextualize(query string, history []Turn) string {
	if len(history) == 0 {
		return query
	}
	var b strings.Builder
	for _, t := range history {
		b.WriteString("User: ")
		b.WriteString(t.User)
		b.WriteString("\nAssistant: ")
		b.WriteString(t.Assistant)
		b.WriteString("\n")
	}
	b.WriteString("\nCurrent question: ")
	b.WriteString(query)
	return b.String()
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func negEuclidean(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(-1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return -math.Sqrt(sum)
}
