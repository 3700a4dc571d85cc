// Package models defines core data structures for chunks, file records, queries, and results.
package models

import "time"

// Chunk is one passage of a source document. Start and End are character
// offsets into the normalized source text; End is exclusive.
type Chunk struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Position int    `json:"position"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	// Overlap is the number of leading characters shared with the previous chunk.
	Overlap int    `json:"overlap"`
	Text    string `json:"text"`
}

// FileStatus is the lifecycle state of an uploaded file's index.
type FileStatus string

const (
	FileStatusPending FileStatus = "pending"
	FileStatusIndexed FileStatus = "indexed"
	FileStatusFailed  FileStatus = "failed"
)

// FileRecord is the catalog entry for a user's uploaded file.
type FileRecord struct {
	UserID     string     `json:"user_id" db:"user_id"`
	Filename   string     `json:"filename" db:"filename"`
	Status     FileStatus `json:"status" db:"status"`
	ChunkCount int        `json:"chunk_count" db:"chunk_count"`
	Dimensions int        `json:"dimensions" db:"dimensions"`
	Error      string     `json:"error,omitempty" db:"error"`
	// SourceSize and SourceMtime describe the file on disk when it was last
	// ingested from a path; both are zero for in-memory uploads.
	SourceSize  int64     `json:"source_size,omitempty" db:"source_size"`
	SourceMtime int64     `json:"source_mtime,omitempty" db:"source_mtime"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
