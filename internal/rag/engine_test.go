package rag

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/cache"
	"docrag/internal/loader"
	"docrag/internal/rerank"
	"docrag/internal/store"
)

// stubEmbedder maps texts to fixed vectors by marker substring, so tests can
// control similarity exactly. Texts without a marker get a default direction.
type stubEmbedder struct {
	model      string
	dim        int
	markers    map[string][]float32
	queryCalls int
	batchCalls int
}

func (s *stubEmbedder) vec(text string) []float32 {
	for marker, v := range s.markers {
		if strings.Contains(text, marker) {
			return v
		}
	}
	v := make([]float32, s.dim)
	v[0] = 1
	return v
}

func (s *stubEmbedder) Encode(_ context.Context, text string) ([]float32, error) {
	return s.vec(text), nil
}

func (s *stubEmbedder) EncodeBatch(_ context.Context, texts []string) ([][]float32, error) {
	s.batchCalls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = s.vec(t)
	}
	return out, nil
}

func (s *stubEmbedder) EncodeQuery(_ context.Context, text string) ([]float32, error) {
	s.queryCalls++
	return s.vec(text), nil
}

func (s *stubEmbedder) Model() string {
	if s.model == "" {
		return "stub-embed"
	}
	return s.model
}

// stubReranker scores passages by marker substring and records every batch.
type stubReranker struct {
	calls     int
	pairSizes []int
	logits    map[string]float64
}

func (s *stubReranker) ScorePairs(_ context.Context, pairs []rerank.Pair) ([]float64, error) {
	s.calls++
	s.pairSizes = append(s.pairSizes, len(pairs))
	out := make([]float64, len(pairs))
	for i, p := range pairs {
		out[i] = 5 // sigmoid(5) ~ 0.993, passes any sane threshold
		for marker, logit := range s.logits {
			if strings.Contains(p.Passage, marker) {
				out[i] = logit
			}
		}
	}
	return out, nil
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func testConfig() Config {
	return Config{
		Metric:          "cosine",
		InitialK:        20,
		TopK:            5,
		SimThreshold:    0.1,
		RerankThreshold: 0.35,
		SummaryWeight:   2,
		FallbackChars:   200,
	}
}

func newTestEngine(t *testing.T, emb Embedder, rr Reranker, cfg Config) *Engine {
	t.Helper()
	st, err := store.Open(t.TempDir(), quietLog())
	require.NoError(t, err)
	return New(st, loader.NewDispatch(1000, 3), emb, rr, nil, nil, cache.New(time.Minute, 64), cfg, quietLog())
}

func writeTextFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const threeParagraphs = "alpha first paragraph\n\nbravo second paragraph\n\ncharlie third paragraph\n"

func threeMarkerEmbedder() *stubEmbedder {
	return &stubEmbedder{
		dim: 3,
		markers: map[string][]float32{
			"alpha":   {1, 0, 0},
			"bravo":   {0, 1, 0},
			"charlie": {0, 0, 1},
		},
	}
}

func TestIngestThreeChunkTextFile(t *testing.T) {
	e := newTestEngine(t, threeMarkerEmbedder(), nil, testConfig())
	path := writeTextFile(t, t.TempDir(), "doc.txt", threeParagraphs)

	report, err := e.Ingest(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ingested)
	assert.Empty(t, report.Failed)

	st := e.Store()
	require.Equal(t, 3, st.Count())
	assert.True(t, st.HasVectors())

	abs, _ := filepath.Abs(path)
	chunks := st.Chunks(abs)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, 3, c.TotalChunks)
		assert.NotEmpty(t, c.ChunkSummary)
		assert.False(t, c.Timestamp.IsZero())
	}
	assert.Equal(t, "stub-embed", st.Model())
}

func TestIngestIdempotent(t *testing.T) {
	e := newTestEngine(t, threeMarkerEmbedder(), nil, testConfig())
	path := writeTextFile(t, t.TempDir(), "doc.txt", threeParagraphs)

	_, err := e.Ingest(context.Background(), []string{path})
	require.NoError(t, err)
	require.Equal(t, 3, e.Store().Count())

	report, err := e.Ingest(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Ingested)
	assert.Equal(t, 3, e.Store().Count(), "second ingest of the same file must be a no-op")
}

func TestIngestIsolatesPerFileFailure(t *testing.T) {
	e := newTestEngine(t, threeMarkerEmbedder(), nil, testConfig())
	dir := t.TempDir()
	good := writeTextFile(t, dir, "doc.txt", threeParagraphs)
	bad := writeTextFile(t, dir, "image.png", "not text")

	report, err := e.Ingest(context.Background(), []string{bad, good})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ingested)
	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed[0].Err, loader.ErrUnsupportedFormat)
	assert.Equal(t, 3, e.Store().Count(), "good file must still be ingested")
}

func TestIngestRefusesStoreWithoutVectors(t *testing.T) {
	storeDir := t.TempDir()
	st, err := store.Open(storeDir, quietLog())
	require.NoError(t, err)
	e := New(st, loader.NewDispatch(1000, 3), threeMarkerEmbedder(), nil, nil, nil, nil, testConfig(), quietLog())

	old := writeTextFile(t, t.TempDir(), "old.txt", threeParagraphs)
	_, err = e.Ingest(context.Background(), []string{old})
	require.NoError(t, err)

	// Lose the vector artifact; the reopened store has records only.
	require.NoError(t, os.Remove(filepath.Join(storeDir, "doc_vectors.gob")))
	st, err = store.Open(storeDir, quietLog())
	require.NoError(t, err)
	require.False(t, st.HasVectors())
	e = New(st, loader.NewDispatch(1000, 3), threeMarkerEmbedder(), nil, nil, nil, nil, testConfig(), quietLog())

	fresh := writeTextFile(t, t.TempDir(), "new.txt", "delta fresh paragraph\n")
	_, err = e.Ingest(context.Background(), []string{fresh})
	assert.ErrorIs(t, err, ErrNoVectors, "growing a vector-less store would misattribute the new rows")
	assert.Equal(t, 3, st.Count(), "nothing may be appended until a rebuild restores alignment")

	require.NoError(t, e.Rebuild(context.Background(), "", nil))
	report, err := e.Ingest(context.Background(), []string{fresh})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ingested)
	assert.Equal(t, 4, st.Count())
}

func TestIngestCountsEmptyFilesSeparately(t *testing.T) {
	e := newTestEngine(t, threeMarkerEmbedder(), nil, testConfig())
	path := writeTextFile(t, t.TempDir(), "blank.txt", "")

	report, err := e.Ingest(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Ingested)
	assert.Equal(t, 1, report.Empty)
	assert.Equal(t, 0, e.Store().Count(), "a file with no extractable text stores nothing")

	report, err = e.Ingest(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Empty, "re-ingesting the same empty file reports it the same way")
}

func TestIngestPersistsAcrossReopen(t *testing.T) {
	storeDir := t.TempDir()
	st, err := store.Open(storeDir, quietLog())
	require.NoError(t, err)
	e := New(st, loader.NewDispatch(1000, 3), threeMarkerEmbedder(), nil, nil, nil, nil, testConfig(), quietLog())

	path := writeTextFile(t, t.TempDir(), "doc.txt", threeParagraphs)
	_, err = e.Ingest(context.Background(), []string{path})
	require.NoError(t, err)

	reopened, err := store.Open(storeDir, quietLog())
	require.NoError(t, err)
	assert.Equal(t, 3, reopened.Count())
	assert.True(t, reopened.HasVectors())
	assert.Equal(t, "stub-embed", reopened.Model())
}

func TestDeleteDocumentIntegrity(t *testing.T) {
	e := newTestEngine(t, threeMarkerEmbedder(), nil, testConfig())
	path := writeTextFile(t, t.TempDir(), "doc.txt", threeParagraphs)

	_, err := e.Ingest(context.Background(), []string{path})
	require.NoError(t, err)

	removed, err := e.DeleteDocument(path)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Equal(t, 0, e.Store().Count())
	assert.False(t, e.Store().HasVectors(), "removing the last file must leave vectors absent, not empty")

	removed, err = e.DeleteDocument(path)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestUpdateChunkRebuildsOnlyThatRow(t *testing.T) {
	emb := threeMarkerEmbedder()
	emb.markers["delta"] = []float32{1, 1, 1}
	e := newTestEngine(t, emb, nil, testConfig())
	path := writeTextFile(t, t.TempDir(), "doc.txt", threeParagraphs)

	_, err := e.Ingest(context.Background(), []string{path})
	require.NoError(t, err)

	_, before := e.Store().Snapshot()
	frozen := make([][]float32, len(before))
	for i, row := range before {
		frozen[i] = append([]float32(nil), row...)
	}

	require.NoError(t, e.UpdateChunk(context.Background(), path, 1, "delta rewritten paragraph"))

	records, after := e.Store().Snapshot()
	require.Len(t, after, 3)
	assert.Equal(t, frozen[0], after[0], "row 0 must be untouched")
	assert.Equal(t, frozen[2], after[2], "row 2 must be untouched")
	assert.Equal(t, []float32{1, 1, 1}, after[1])
	assert.Equal(t, "delta rewritten paragraph", records[1].ChunkContent)
}

func TestUpdateChunkEmptyContentKeepsPlaceholder(t *testing.T) {
	e := newTestEngine(t, threeMarkerEmbedder(), nil, testConfig())
	path := writeTextFile(t, t.TempDir(), "doc.txt", threeParagraphs)

	_, err := e.Ingest(context.Background(), []string{path})
	require.NoError(t, err)

	require.NoError(t, e.UpdateChunk(context.Background(), path, 1, ""))

	_, vecs := e.Store().Snapshot()
	require.Len(t, vecs, 3, "empty chunk keeps its row")
	assert.Equal(t, []float32{0, 0, 0}, vecs[1], "empty content embeds as a zero placeholder")
}

func TestRebuildAllRestoresMissingVectors(t *testing.T) {
	storeDir := t.TempDir()
	st, err := store.Open(storeDir, quietLog())
	require.NoError(t, err)
	emb := threeMarkerEmbedder()
	e := New(st, loader.NewDispatch(1000, 3), emb, nil, nil, nil, nil, testConfig(), quietLog())

	path := writeTextFile(t, t.TempDir(), "doc.txt", threeParagraphs)
	_, err = e.Ingest(context.Background(), []string{path})
	require.NoError(t, err)

	// Simulate a lost vector artifact.
	require.NoError(t, os.Remove(filepath.Join(storeDir, "doc_vectors.gob")))
	st, err = store.Open(storeDir, quietLog())
	require.NoError(t, err)
	require.False(t, st.HasVectors())

	e = New(st, loader.NewDispatch(1000, 3), emb, nil, nil, nil, nil, testConfig(), quietLog())
	require.NoError(t, e.Rebuild(context.Background(), "", nil))
	assert.True(t, st.HasVectors())
	assert.Equal(t, 3, st.Count())
	assert.Equal(t, 3, st.Dimension())
}

func TestModelChanged(t *testing.T) {
	e := newTestEngine(t, &stubEmbedder{dim: 2, model: "model-a"}, nil, testConfig())
	path := writeTextFile(t, t.TempDir(), "doc.txt", "only paragraph\n")

	_, err := e.Ingest(context.Background(), []string{path})
	require.NoError(t, err)
	assert.False(t, e.ModelChanged())

	e2 := New(e.Store(), loader.NewDispatch(1000, 3), &stubEmbedder{dim: 2, model: "model-b"}, nil, nil, nil, nil, testConfig(), quietLog())
	assert.True(t, e2.ModelChanged())
}
