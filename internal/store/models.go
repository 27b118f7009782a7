package store

import "time"

// Record is the metadata for one indexed chunk. Records are kept in a JSON
// array on disk; the embedding for records[i] is row i of the vector matrix.
type Record struct {
	FilePath     string    `json:"file_path"`
	ChunkIndex   int       `json:"chunk_index"`
	ChunkContent string    `json:"chunk_content"`
	ChunkSummary string    `json:"chunk_summary"`
	TotalChunks  int       `json:"total_chunks"`
	Timestamp    time.Time `json:"timestamp"`
}

// DocumentInfo summarizes one ingested file.
type DocumentInfo struct {
	FilePath   string
	Chunks     int
	IngestedAt time.Time
}

// vectorFile is the on-disk layout of doc_vectors.gob. The header records the
// embedding model so a model switch can be detected and force a full rebuild.
type vectorFile struct {
	Model     string
	Dimension int
	Rows      [][]float32
}
