package models

// Passage is one indexed chunk of source text plus its embedding vector.
// Passages are created at ingestion time and never mutated afterwards.
type Passage struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	SourceID      string    `json:"source_id"`
	SequenceIndex int       `json:"sequence_index"` // position in the source document
	Embedding     []float32 `json:"embedding,omitempty"`
}

// ScoredPassage is a retrieval result: a passage with its cosine similarity
// to the query.
type ScoredPassage struct {
	Passage Passage `json:"passage"`
	Score   float64 `json:"score"`
}

// UploadResponse represents a successful ingestion.
type UploadResponse struct {
	Success    bool   `json:"success"`
	ChunkCount int    `json:"chunk_count"`
	Preview    string `json:"preview,omitempty"` // first part of the extracted text
}
