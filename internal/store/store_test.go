package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecords(path string, n int) ([]Record, [][]float32) {
	recs := make([]Record, n)
	vecs := make([][]float32, n)
	for i := range recs {
		recs[i] = Record{
			FilePath:     path,
			ChunkIndex:   i,
			ChunkContent: "chunk content",
			ChunkSummary: "summary",
			TotalChunks:  n,
			Timestamp:    time.Now(),
		}
		vecs[i] = []float32{float32(i), 1, 0}
	}
	return recs, vecs
}

func TestOpenEmptyDirectory(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, s.Count())
	assert.False(t, s.HasVectors())
}

func TestAppendKeepsAlignment(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	recs, vecs := testRecords("/docs/a.txt", 3)
	require.NoError(t, s.Append(recs, vecs))

	gotRecs, gotVecs := s.Snapshot()
	assert.Len(t, gotRecs, 3)
	assert.Len(t, gotVecs, 3)

	t.Run("mismatched lengths rejected", func(t *testing.T) {
		err := s.Append(recs[:2], vecs[:1])
		assert.Error(t, err)
	})
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)

	recs, vecs := testRecords("/docs/a.txt", 2)
	require.NoError(t, s.Append(recs, vecs))
	s.SetModel("bge-m3")
	require.NoError(t, s.Save(true, true))

	reopened, err := Open(dir, nil)
	require.NoError(t, err)

	gotRecs, gotVecs := reopened.Snapshot()
	require.Len(t, gotRecs, 2)
	require.Len(t, gotVecs, 2)
	assert.Equal(t, "/docs/a.txt", gotRecs[0].FilePath)
	assert.Equal(t, []float32{1, 1, 0}, gotVecs[1])
	assert.Equal(t, "bge-m3", reopened.Model())
	assert.Equal(t, 3, reopened.Dimension())
}

func TestCorruptMetadataTreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, metadataFile), []byte("{not json"), 0o644))

	s, err := Open(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Count())
}

func TestRemoveByFile(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	recsA, vecsA := testRecords("/docs/a.txt", 3)
	recsB, vecsB := testRecords("/docs/b.txt", 2)
	require.NoError(t, s.Append(recsA, vecsA))
	require.NoError(t, s.Append(recsB, vecsB))

	removed := s.RemoveByFile("/docs/a.txt")
	assert.Equal(t, 3, removed)

	gotRecs, gotVecs := s.Snapshot()
	require.Len(t, gotRecs, 2)
	require.Len(t, gotVecs, 2)
	for _, r := range gotRecs {
		assert.NotEqual(t, "/docs/a.txt", r.FilePath)
	}

	t.Run("removing everything leaves absent sentinel", func(t *testing.T) {
		s.RemoveByFile("/docs/b.txt")
		assert.Equal(t, 0, s.Count())
		assert.False(t, s.HasVectors())
	})
}

func TestRemoveLastFileDeletesVectorArtifact(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)

	recs, vecs := testRecords("/docs/a.txt", 2)
	require.NoError(t, s.Append(recs, vecs))
	require.NoError(t, s.Save(true, true))
	require.FileExists(t, filepath.Join(dir, vectorsFile))

	s.RemoveByFile("/docs/a.txt")
	require.NoError(t, s.Save(true, true))

	_, err = os.Stat(filepath.Join(dir, vectorsFile))
	assert.True(t, os.IsNotExist(err), "vector file should be removed, not written empty")
}

func TestReset(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)

	recs, vecs := testRecords("/docs/a.txt", 2)
	require.NoError(t, s.Append(recs, vecs))
	require.NoError(t, s.Save(true, true))

	require.NoError(t, s.Reset())
	assert.Equal(t, 0, s.Count())
	assert.False(t, s.HasVectors())
	assert.NoFileExists(t, filepath.Join(dir, metadataFile))
	assert.NoFileExists(t, filepath.Join(dir, vectorsFile))
}

func TestNormalizeBackfillsTotalChunks(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)

	// Records written by an older code path: no total_chunks.
	recs := []Record{
		{FilePath: "/docs/a.txt", ChunkIndex: 0, ChunkContent: "one"},
		{FilePath: "/docs/a.txt", ChunkIndex: 1, ChunkContent: "two"},
		{FilePath: "/docs/a.txt", ChunkIndex: 2, ChunkContent: "three"},
	}
	vecs := [][]float32{{1}, {2}, {3}}
	require.NoError(t, s.Append(recs, vecs))
	require.NoError(t, s.Save(true, true))

	gotRecs, _ := s.Snapshot()
	for _, r := range gotRecs {
		assert.Equal(t, 3, r.TotalChunks)
	}
}

func TestAppendRejectedWhileVectorsAbsent(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)

	recs, vecs := testRecords("/docs/old.txt", 2)
	require.NoError(t, s.Append(recs, vecs))
	require.NoError(t, s.Save(true, true))

	// Lose the vector artifact; the reopened store carries records only.
	require.NoError(t, os.Remove(filepath.Join(dir, vectorsFile)))
	reopened, err := Open(dir, nil)
	require.NoError(t, err)
	require.Equal(t, 2, reopened.Count())
	require.False(t, reopened.HasVectors())

	newRecs, newVecs := testRecords("/docs/new.txt", 1)
	err = reopened.Append(newRecs, newVecs)
	require.Error(t, err, "a new vector row would pair with the oldest record, not its own")
	assert.Equal(t, 2, reopened.Count(), "rejected append must not grow the record list")
	assert.False(t, reopened.HasVectors())
}

func TestNormalizeBackfillsSummaryAndContent(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	long := strings.Repeat("x", summaryDefaultRunes+50)
	recs := []Record{
		{FilePath: "/docs/a.txt", ChunkIndex: 0, ChunkContent: long},
		{FilePath: "/docs/a.txt", ChunkIndex: 1, ChunkSummary: "only a summary survived"},
	}
	require.NoError(t, s.Append(recs, [][]float32{{1}, {2}}))
	require.NoError(t, s.Save(true, true))

	got, _ := s.Snapshot()
	assert.Equal(t, long[:summaryDefaultRunes], got[0].ChunkSummary, "missing summary is synthesized by truncation")
	assert.Equal(t, "only a summary survived", got[1].ChunkContent, "missing content falls back to the summary")
}

func TestSetContentAndFileIndices(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	recs, vecs := testRecords("/docs/a.txt", 3)
	require.NoError(t, s.Append(recs, vecs))

	require.NoError(t, s.SetContent("/docs/a.txt", 1, "edited"))
	r, err := s.Record(1)
	require.NoError(t, err)
	assert.Equal(t, "edited", r.ChunkContent)

	assert.Equal(t, []int{0, 1, 2}, s.FileIndices("/docs/a.txt"))
	assert.Nil(t, s.FileIndices("/docs/missing.txt"))

	assert.Error(t, s.SetContent("/docs/a.txt", 9, "nope"))
}

func TestDocumentsAndChunks(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	recsA, vecsA := testRecords("/docs/a.txt", 2)
	recsB, vecsB := testRecords("/docs/b.txt", 1)
	require.NoError(t, s.Append(recsA, vecsA))
	require.NoError(t, s.Append(recsB, vecsB))

	docs := s.Documents()
	require.Len(t, docs, 2)
	assert.Equal(t, "/docs/a.txt", docs[0].FilePath)
	assert.Equal(t, 2, docs[0].Chunks)

	chunks := s.Chunks("/docs/a.txt")
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 1, chunks[1].ChunkIndex)
}

func TestVectorMatrixOutOfSyncTreatedAsAbsent(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)

	recs, vecs := testRecords("/docs/a.txt", 2)
	require.NoError(t, s.Append(recs, vecs))
	require.NoError(t, s.Save(true, true))

	// Truncate metadata to one record; the 2-row matrix no longer aligns.
	one, _ := s.Snapshot()
	data := []byte(`[{"file_path":"` + one[0].FilePath + `","chunk_index":0,"chunk_content":"x","total_chunks":1,"timestamp":"2026-01-01T00:00:00Z"}]`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, metadataFile), data, 0o644))

	reopened, err := Open(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())
	assert.False(t, reopened.HasVectors())
}
