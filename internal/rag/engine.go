// Package rag ties the pipeline together: ingestion of documents into the
// chunk store, two-stage retrieval (embedding similarity then cross-encoder
// reranking), and prompt assembly for the downstream language model.
package rag

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"docrag/internal/cache"
	"docrag/internal/loader"
	"docrag/internal/rerank"
	"docrag/internal/store"
)

// ErrNoVectors is returned when retrieval is attempted against a store that
// has records but no embedding matrix. Running a rebuild restores it.
var ErrNoVectors = errors.New("store has records but no vectors; run rebuild")

// Embedder is the embedding collaborator. Query-side encoding may apply a
// different instruction prefix than document-side encoding.
type Embedder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
	EncodeQuery(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Reranker scores (query, passage) pairs with a cross-encoder, returning one
// raw logit per pair in input order.
type Reranker interface {
	ScorePairs(ctx context.Context, pairs []rerank.Pair) ([]float64, error)
}

// Completer is the language-model collaborator.
type Completer interface {
	Complete(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// QueryEnhancer rewrites a raw query before retrieval. Implementations are
// best-effort and must return a usable query on any failure.
type QueryEnhancer interface {
	Enhance(ctx context.Context, query string) string
}

// Candidate is a retrieved chunk with its first-stage similarity and, after
// reranking, its normalized cross-encoder score. Never persisted.
type Candidate struct {
	store.Record
	InitialScore float64
	Score        float64
}

// Turn is one (user, assistant) exchange of conversation history.
type Turn struct {
	User      string
	Assistant string
}

// Config holds the retrieval and summarization parameters of the engine.
type Config struct {
	Metric          string // "cosine" or "l2"
	InitialK        int
	TopK            int
	SimThreshold    float64
	RerankThreshold float64
	SummaryWeight   int
	SummaryEnabled  bool
	FallbackChars   int
}

// Engine owns the chunk store and orchestrates ingestion and retrieval. It is
// single-writer: mutating calls (Ingest, Rebuild, UpdateChunk, DeleteDocument,
// ResetStore) must not run concurrently with each other.
type Engine struct {
	store    *store.Store
	loaders  *loader.Dispatch
	embed    Embedder
	reranker Reranker
	llm      Completer
	enhancer QueryEnhancer
	cache    *cache.Cache
	cfg      Config
	log      *logrus.Logger

	mu     sync.Mutex
	totals map[string]int // file path -> chunk count, for legacy records
	last   *lastRetrieval
}

// lastRetrieval remembers the most recent retrieval so prompt assembly for
// the same query can reuse its candidates without a cache lookup.
type lastRetrieval struct {
	query      string
	history    string
	topK       int
	isImage    bool
	candidates []Candidate
}

// New creates an engine. The reranker, completer, enhancer, and cache are all
// optional; a nil reranker keeps the first-stage similarity as the final
// score, and a nil enhancer leaves queries untouched.
func New(st *store.Store, loaders *loader.Dispatch, emb Embedder, rr Reranker, llm Completer, enh QueryEnhancer, c *cache.Cache, cfg Config, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	if cfg.SummaryWeight <= 0 {
		cfg.SummaryWeight = 2
	}
	if cfg.FallbackChars <= 0 {
		cfg.FallbackChars = 200
	}
	return &Engine{
		store:    st,
		loaders:  loaders,
		embed:    emb,
		reranker: rr,
		llm:      llm,
		enhancer: enh,
		cache:    c,
		cfg:      cfg,
		log:      log,
		totals:   make(map[string]int),
	}
}

// Store exposes the underlying chunk store for read-only listing commands.
func (e *Engine) Store() *store.Store { return e.store }

// FileError records one file that failed during batch ingestion.
type FileError struct {
	Path string
	Err  error
}

// IngestReport summarizes one ingestion call: per-file failures are isolated
// and collected here, never fatal to the batch. Empty counts files that
// loaded cleanly but yielded no extractable text; they store nothing.
type IngestReport struct {
	Ingested int
	Skipped  int
	Empty    int
	Failed   []FileError
}

// Ingest loads, summarizes, and embeds the given files, appending their
// chunks to the store. Paths are canonicalized to absolute form; a file whose
// absolute path is already indexed is skipped, so ingestion is idempotent at
// file granularity. State is persisted exactly once at the end, however many
// files succeeded.
func (e *Engine) Ingest(ctx context.Context, paths []string) (*IngestReport, error) {
	// New vectors appended onto an absent matrix would pair with the oldest
	// records, so a vector-less store must be rebuilt before it can grow.
	if e.store.Count() > 0 && !e.store.HasVectors() {
		return nil, ErrNoVectors
	}

	report := &IngestReport{}
	appended := false

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			e.log.WithError(err).WithField("path", p).Warn("skipping file")
			report.Failed = append(report.Failed, FileError{Path: p, Err: err})
			continue
		}
		if e.store.ContainsFile(abs) {
			e.log.WithField("path", abs).Info("already ingested, skipping")
			report.Skipped++
			continue
		}

		chunks, err := e.loaders.Load(abs)
		if err != nil {
			e.log.WithError(err).WithField("path", abs).Warn("load failed, skipping file")
			report.Failed = append(report.Failed, FileError{Path: abs, Err: err})
			continue
		}
		if len(chunks) == 0 {
			e.log.WithField("path", abs).Info("no extractable text")
			report.Empty++
			continue
		}

		now := time.Now()
		records := make([]store.Record, len(chunks))
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			summary := e.summarize(ctx, c)
			records[i] = store.Record{
				FilePath:     abs,
				ChunkIndex:   i,
				ChunkContent: c,
				ChunkSummary: summary,
				TotalChunks:  len(chunks),
				Timestamp:    now,
			}
			texts[i] = e.embedText(summary, c)
		}

		vecs, err := e.embed.EncodeBatch(ctx, texts)
		if err != nil {
			e.log.WithError(err).WithField("path", abs).Warn("embedding failed, skipping file")
			report.Failed = append(report.Failed, FileError{Path: abs, Err: err})
			continue
		}
		if err := e.store.Append(records, vecs); err != nil {
			report.Failed = append(report.Failed, FileError{Path: abs, Err: err})
			continue
		}
		appended = true
		report.Ingested++
	}

	if appended {
		if e.store.Model() == "" {
			e.store.SetModel(e.embed.Model())
		}
		e.invalidate()
		if err := e.store.Save(true, true); err != nil {
			return report, fmt.Errorf("persist store: %w", err)
		}
	}
	return report, nil
}

// Rebuild recomputes embeddings without touching chunk text. With an empty
// filePath it re-embeds every record (rebuilding an absent matrix); with a
// filePath and nil chunkIndices it re-embeds one file; with chunkIndices it
// re-embeds only those chunks of the file. A chunk whose content is empty
// gets a zero-vector placeholder so index alignment is preserved.
func (e *Engine) Rebuild(ctx context.Context, filePath string, chunkIndices []int) error {
	if filePath == "" {
		return e.rebuildAll(ctx)
	}

	abs, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", filePath, err)
	}
	rows := e.store.FileIndices(abs)
	if len(rows) == 0 {
		return fmt.Errorf("no indexed chunks for %s", abs)
	}
	if chunkIndices != nil {
		byChunk := make(map[int]int, len(rows))
		for _, row := range rows {
			r, rerr := e.store.Record(row)
			if rerr != nil {
				return rerr
			}
			byChunk[r.ChunkIndex] = row
		}
		rows = rows[:0]
		for _, ci := range chunkIndices {
			row, ok := byChunk[ci]
			if !ok {
				return fmt.Errorf("no chunk %d for %s", ci, abs)
			}
			rows = append(rows, row)
		}
	}

	if !e.store.HasVectors() {
		return ErrNoVectors
	}
	dim := e.store.Dimension()
	for _, row := range rows {
		r, rerr := e.store.Record(row)
		if rerr != nil {
			return rerr
		}
		vec, verr := e.embedRecord(ctx, r, dim)
		if verr != nil {
			return verr
		}
		if err := e.store.SetVector(row, vec); err != nil {
			return err
		}
	}

	e.invalidate()
	if err := e.store.Save(true, true); err != nil {
		return fmt.Errorf("persist store: %w", err)
	}
	return nil
}

// rebuildAll re-embeds every record and installs a fresh matrix, which also
// recovers a store whose vector file was lost or written by a different
// embedding model.
func (e *Engine) rebuildAll(ctx context.Context) error {
	records, _ := e.store.Snapshot()
	rows := make([][]float32, len(records))
	dim := 0
	for i, r := range records {
		vec, err := e.embedRecord(ctx, r, dim)
		if err != nil {
			return err
		}
		if dim == 0 {
			dim = len(vec)
		}
		rows[i] = vec
	}
	if err := e.store.SetVectors(rows); err != nil {
		return err
	}
	e.store.SetModel(e.embed.Model())
	e.invalidate()
	if err := e.store.Save(true, true); err != nil {
		return fmt.Errorf("persist store: %w", err)
	}
	return nil
}

func (e *Engine) embedRecord(ctx context.Context, r store.Record, dim int) ([]float32, error) {
	if strings.TrimSpace(r.ChunkContent) == "" {
		if dim == 0 {
			return nil, fmt.Errorf("cannot size placeholder vector for empty chunk %s[%d]", r.FilePath, r.ChunkIndex)
		}
		return make([]float32, dim), nil
	}
	vec, err := e.embed.Encode(ctx, e.embedText(r.ChunkSummary, r.ChunkContent))
	if err != nil {
		return nil, fmt.Errorf("embed %s[%d]: %w", r.FilePath, r.ChunkIndex, err)
	}
	return vec, nil
}

// UpdateChunk replaces one chunk's content in place and re-embeds it.
func (e *Engine) UpdateChunk(ctx context.Context, filePath string, chunkIndex int, content string) error {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", filePath, err)
	}
	if err := e.store.SetContent(abs, chunkIndex, content); err != nil {
		return err
	}
	return e.Rebuild(ctx, abs, []int{chunkIndex})
}

// DeleteDocument removes every chunk of filePath and persists the result.
// It returns the number of removed chunks.
func (e *Engine) DeleteDocument(filePath string) (int, error) {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", filePath, err)
	}
	removed := e.store.RemoveByFile(abs)
	if removed == 0 {
		return 0, nil
	}
	e.invalidate()
	if err := e.store.Save(true, true); err != nil {
		return removed, fmt.Errorf("persist store: %w", err)
	}
	return removed, nil
}

// ResetStore clears all indexed state, in memory and on disk.
func (e *Engine) ResetStore() error {
	e.invalidate()
	return e.store.Reset()
}

// ModelChanged reports whether the store's vectors were produced by a
// different embedding model than the one currently configured.
func (e *Engine) ModelChanged() bool {
	recorded := e.store.Model()
	return recorded != "" && recorded != e.embed.Model()
}

// invalidate drops derived state after any store mutation: the per-file chunk
// counts, the last-retrieval memo, and every cached retrieval or prompt in
// the shared result cache. Without the cache sweep a long-lived process would
// keep serving chunks of a deleted document until the TTL ran out.
func (e *Engine) invalidate() {
	e.mu.Lock()
	e.totals = make(map[string]int)
	e.last = nil
	e.mu.Unlock()
	if e.cache != nil {
		e.cache.DropStage(cache.StageRetrieve)
		e.cache.DropStage(cache.StagePrompt)
	}
}

const summarySystemPrompt = `You summarize document excerpts for a search index.
Write one or two sentences capturing the key facts and terminology of the excerpt.
Return only the summary, nothing else.`

// summarize produces a short abstractive summary of a chunk. Summary failure
// must never abort ingestion, so any error falls back to plain truncation.
func (e *Engine) summarize(ctx context.Context, content string) string {
	if !e.cfg.SummaryEnabled || e.llm == nil {
		return truncate(content, e.cfg.FallbackChars)
	}
	out, err := e.llm.Complete(ctx, content, summarySystemPrompt)
	if err != nil {
		e.log.WithError(err).Debug("summary generation failed, using truncation")
		return truncate(content, e.cfg.FallbackChars)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return truncate(content, e.cfg.FallbackChars)
	}
	return out
}

// embedText builds the text that gets embedded for a chunk: the summary is
// repeated ahead of the content to upweight its semantic contribution.
func (e *Engine) embedText(summary, content string) string {
	if summary == "" {
		return content
	}
	var b strings.Builder
	for i := 0; i < e.cfg.SummaryWeight; i++ {
		b.WriteString(summary)
		b.WriteString("\n")
	}
	b.WriteString(content)
	return b.String()
}

// passageText builds the rerank passage for a record, using the same
// summary-duplication convention as indexing so what is reranked matches what
// was embedded. A record written without a summary gets a truncation-based
// one synthesized on the fly.
func (e *Engine) passageText(r store.Record) string {
	summary := r.ChunkSummary
	if summary == "" {
		summary = truncate(r.ChunkContent, e.cfg.FallbackChars)
	}
	return e.embedText(summary, r.ChunkContent)
}

// totalChunks resolves total_chunks for legacy records that lack it, caching
// per-file counts to avoid repeated full-store scans.
func (e *Engine) totalChunks(records []store.Record, r store.Record) int {
	if r.TotalChunks > 0 {
		return r.TotalChunks
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if n, ok := e.totals[r.FilePath]; ok {
		return n
	}
	n := 0
	for _, rec := range records {
		if rec.FilePath == r.FilePath {
			n++
		}
	}
	e.totals[r.FilePath] = n
	return n
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
