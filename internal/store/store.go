package store

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	metadataFile = "metadata.json"
	vectorsFile  = "doc_vectors.gob"
)

// Store is the durable bookkeeping for chunk records and their embeddings.
// The record slice and the vector matrix are index-aligned at all times:
// vectors[i] is the embedding of records[i]. A nil vector matrix is the
// "absent" sentinel, distinct from a zero-row matrix.
//
// All mutating methods hold the store mutex; the caller is still expected to
// serialize whole ingest/rebuild operations (single-writer model).
type Store struct {
	mu      sync.Mutex
	dir     string
	records []Record
	vectors [][]float32
	model   string
	dim     int
	log     *logrus.Logger
}

// Open loads the store from dir, creating the directory if needed. A missing
// or corrupt metadata file is treated as no prior state, never an error —
// ingestion must be able to bootstrap from nothing.
func Open(dir string, log *logrus.Logger) (*Store, error) {
	if log == nil {
		log = logrus.New()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	s := &Store{dir: dir, log: log}
	s.load()
	return s, nil
}

func (s *Store) load() {
	data, err := os.ReadFile(filepath.Join(s.dir, metadataFile))
	if err == nil {
		var recs []Record
		if jerr := json.Unmarshal(data, &recs); jerr != nil {
			s.log.WithError(jerr).Warn("corrupt metadata file, starting empty")
		} else {
			s.records = recs
		}
	}

	f, err := os.Open(filepath.Join(s.dir, vectorsFile))
	if err != nil {
		return // absent sentinel
	}
	defer f.Close()

	var vf vectorFile
	if derr := gob.NewDecoder(f).Decode(&vf); derr != nil {
		s.log.WithError(derr).Warn("corrupt vector file, treating vectors as absent")
		return
	}
	if len(vf.Rows) != len(s.records) {
		s.log.WithFields(logrus.Fields{
			"records": len(s.records),
			"vectors": len(vf.Rows),
		}).Warn("vector matrix out of sync with metadata, treating vectors as absent")
		return
	}
	s.vectors = vf.Rows
	s.model = vf.Model
	s.dim = vf.Dimension
}

// Save persists whichever of the two artifacts is requested. Records are
// normalized first so entries written by older code paths pick up any missing
// fields. If the vector matrix is absent, the vector file is removed rather
// than written with zero rows.
func (s *Store) Save(docs, vectors bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(docs, vectors)
}

func (s *Store) saveLocked(docs, vectors bool) error {
	s.normalizeLocked()

	if docs {
		data, err := json.MarshalIndent(s.records, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		if err := atomicWrite(filepath.Join(s.dir, metadataFile), data); err != nil {
			s.log.WithError(err).Error("write metadata file")
			return fmt.Errorf("write metadata: %w", err)
		}
	}

	if vectors {
		path := filepath.Join(s.dir, vectorsFile)
		if s.vectors == nil {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				s.log.WithError(err).Error("remove vector file")
				return fmt.Errorf("remove vectors: %w", err)
			}
			return nil
		}
		tmp := path + ".tmp"
		f, err := os.Create(tmp)
		if err != nil {
			return fmt.Errorf("create vector file: %w", err)
		}
		enc := gob.NewEncoder(f)
		if err := enc.Encode(vectorFile{Model: s.model, Dimension: s.dim, Rows: s.vectors}); err != nil {
			f.Close()
			os.Remove(tmp)
			s.log.WithError(err).Error("write vector file")
			return fmt.Errorf("encode vectors: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("close vector file: %w", err)
		}
		if err := os.Rename(tmp, path); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("rename vector file: %w", err)
		}
	}
	return nil
}

// summaryDefaultRunes bounds the truncation summary synthesized for records
// written before summaries existed.
const summaryDefaultRunes = 200

// normalizeLocked back-fills fields that records created by older ingestion
// code may lack: chunk_index (sequential per file), total_chunks (recomputed
// per file), chunk_summary (truncation of the content), and chunk_content
// (falls back to the summary). This is the schema-versioning step that runs
// before every persistence.
func (s *Store) normalizeLocked() {
	counts := make(map[string]int, len(s.records))
	nextIdx := make(map[string]int, len(s.records))
	for _, r := range s.records {
		counts[r.FilePath]++
	}
	for i := range s.records {
		r := &s.records[i]
		if r.ChunkIndex == 0 && nextIdx[r.FilePath] != 0 {
			r.ChunkIndex = nextIdx[r.FilePath]
		}
		nextIdx[r.FilePath] = r.ChunkIndex + 1
		if r.TotalChunks != counts[r.FilePath] {
			r.TotalChunks = counts[r.FilePath]
		}
		if r.ChunkContent == "" && r.ChunkSummary != "" {
			r.ChunkContent = r.ChunkSummary
		}
		if r.ChunkSummary == "" && r.ChunkContent != "" {
			r.ChunkSummary = truncateRunes(r.ChunkContent, summaryDefaultRunes)
		}
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Append grows both collections, preserving the alignment invariant. A store
// holding records whose matrix is absent cannot accept new vectors: the new
// rows would pair with the oldest records instead of their own. Callers must
// rebuild first.
func (s *Store) Append(records []Record, vectors [][]float32) error {
	if len(records) != len(vectors) {
		return fmt.Errorf("append: %d records but %d vectors", len(records), len(vectors))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vectors == nil && len(s.records) > 0 && len(vectors) > 0 {
		return fmt.Errorf("append: %d existing records have no vectors; rebuild before appending", len(s.records))
	}
	s.records = append(s.records, records...)
	if s.vectors == nil && len(vectors) > 0 {
		s.vectors = make([][]float32, 0, len(vectors))
	}
	s.vectors = append(s.vectors, vectors...)
	for _, v := range vectors {
		if s.dim == 0 {
			s.dim = len(v)
		}
	}
	return nil
}

// RemoveByFile drops every record (and its aligned vector row) for filePath.
// It returns the number of removed records. If the store ends up empty the
// vector matrix becomes the absent sentinel.
func (s *Store) RemoveByFile(filePath string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var keptVecs [][]float32
	if s.vectors != nil {
		keptVecs = s.vectors[:0]
	}
	removed := 0
	for i, r := range s.records {
		if r.FilePath == filePath {
			removed++
			continue
		}
		kept = append(kept, r)
		if s.vectors != nil {
			keptVecs = append(keptVecs, s.vectors[i])
		}
	}
	s.records = kept
	if s.vectors != nil {
		if len(keptVecs) == 0 {
			s.vectors = nil
		} else {
			s.vectors = keptVecs
		}
	}
	return removed
}

// Reset clears in-memory state and deletes both on-disk artifacts.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.vectors = nil
	s.model = ""
	s.dim = 0
	for _, name := range []string{metadataFile, vectorsFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

// Count returns the number of stored records.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// HasVectors reports whether the vector matrix is present (non-sentinel).
func (s *Store) HasVectors() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vectors != nil
}

// Snapshot returns the record slice and vector matrix for read-only scanning.
// The engine is single-writer, so a shallow copy of the slice headers is
// enough to keep a retrieval scan stable across a concurrent read.
func (s *Store) Snapshot() ([]Record, [][]float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := make([]Record, len(s.records))
	copy(recs, s.records)
	if s.vectors == nil {
		return recs, nil
	}
	vecs := make([][]float32, len(s.vectors))
	copy(vecs, s.vectors)
	return recs, vecs
}

// Record returns the record at index i.
func (s *Store) Record(i int) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.records) {
		return Record{}, fmt.Errorf("record index %d out of range (%d records)", i, len(s.records))
	}
	return s.records[i], nil
}

// SetVector replaces the vector row at index i.
func (s *Store) SetVector(i int, v []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vectors == nil || i < 0 || i >= len(s.vectors) {
		return fmt.Errorf("vector index %d out of range", i)
	}
	s.vectors[i] = v
	return nil
}

// SetVectors replaces the whole vector matrix, used by a full re-embed after
// the embedding model changes or when vectors were absent at load time.
func (s *Store) SetVectors(rows [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(rows) != len(s.records) {
		return fmt.Errorf("set vectors: %d rows but %d records", len(rows), len(s.records))
	}
	if len(rows) == 0 {
		s.vectors = nil
		return nil
	}
	s.vectors = rows
	s.dim = len(rows[0])
	return nil
}

// SetContent replaces the content of one chunk, identified by file path and
// chunk index. The embedding is not touched; callers follow up with a rebuild.
func (s *Store) SetContent(filePath string, chunkIndex int, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].FilePath == filePath && s.records[i].ChunkIndex == chunkIndex {
			s.records[i].ChunkContent = content
			return nil
		}
	}
	return fmt.Errorf("no chunk %d for %s", chunkIndex, filePath)
}

// ContainsFile reports whether any record carries the exact file path.
func (s *Store) ContainsFile(filePath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.FilePath == filePath {
			return true
		}
	}
	return false
}

// FileIndices returns the store indices of all records for filePath, in
// stored order.
func (s *Store) FileIndices(filePath string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var idxs []int
	for i, r := range s.records {
		if r.FilePath == filePath {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

// Model returns the embedding model recorded in the vector file header.
func (s *Store) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// SetModel records the embedding model (and implicitly invalidates nothing;
// callers reset the store first when the model changes).
func (s *Store) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
}

// Dimension returns the embedding dimension, 0 if no vectors are stored.
func (s *Store) Dimension() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dim
}

// Documents lists the ingested files with chunk counts, sorted by path.
func (s *Store) Documents() []DocumentInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	byPath := make(map[string]*DocumentInfo)
	for _, r := range s.records {
		d, ok := byPath[r.FilePath]
		if !ok {
			d = &DocumentInfo{FilePath: r.FilePath, IngestedAt: r.Timestamp}
			byPath[r.FilePath] = d
		}
		d.Chunks++
		if r.Timestamp.After(d.IngestedAt) {
			d.IngestedAt = r.Timestamp
		}
	}
	docs := make([]DocumentInfo, 0, len(byPath))
	for _, d := range byPath {
		docs = append(docs, *d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].FilePath < docs[j].FilePath })
	return docs
}

// Chunks returns the records for one file in chunk-index order.
func (s *Store) Chunks(filePath string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var recs []Record
	for _, r := range s.records {
		if r.FilePath == filePath {
			recs = append(recs, r)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ChunkIndex < recs[j].ChunkIndex })
	return recs
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
