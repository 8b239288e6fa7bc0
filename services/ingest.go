package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"docchat/models"

	"github.com/google/uuid"
)

// IngestService turns one uploaded file into indexed passages:
// OCR -> chunk -> embed -> store. From the caller's perspective ingestion
// is all-or-nothing; any collaborator failure fails the whole upload and no
// partial passage set is reported as queryable.
type IngestService struct {
	extractor TextExtractor
	embedder  Embedder
	store     VectorStore
	chunker   *Chunker

	mu          sync.Mutex
	documents   int
	totalChunks int
}

// NewIngestService creates an ingestion pipeline with injected collaborators.
func NewIngestService(extractor TextExtractor, embedder Embedder, store VectorStore, chunker *Chunker) *IngestService {
	return &IngestService{
		extractor: extractor,
		embedder:  embedder,
		store:     store,
		chunker:   chunker,
	}
}

// Ingest processes one uploaded file and returns the number of passages
// indexed, plus a short preview of the extracted text.
//
// Only image uploads are supported; anything else fails with
// ErrUnsupportedMediaType before the extractor is ever invoked. An OCR
// engine failure is ErrExtractionFailed; a run that succeeds but yields
// blank text is ErrNoExtractableText. Neither writes to the store.
func (s *IngestService) Ingest(ctx context.Context, data []byte, mimeType string) (int, string, error) {
	if !strings.HasPrefix(mimeType, "image/") {
		return 0, "", fmt.Errorf("%w: only image files are supported, got %q", ErrUnsupportedMediaType, mimeType)
	}

	text, err := s.extractor.Extract(ctx, data)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return 0, "", fmt.Errorf("%w: OCR produced no text", ErrNoExtractableText)
	}

	chunks := s.chunker.Split(text)
	if len(chunks) == 0 {
		return 0, "", fmt.Errorf("%w: no indexable content after chunking", ErrNoExtractableText)
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(embeddings) != len(chunks) {
		return 0, "", fmt.Errorf("%w: got %d embeddings for %d chunks", ErrEmbeddingFailed, len(embeddings), len(chunks))
	}

	sourceID := uuid.New().String()
	passages := make([]models.Passage, len(chunks))
	for i, chunk := range chunks {
		passages[i] = models.Passage{
			ID:            fmt.Sprintf("%s:%d", sourceID, i),
			Text:          chunk,
			SourceID:      sourceID,
			SequenceIndex: i,
			Embedding:     embeddings[i],
		}
	}

	if err := s.store.Add(ctx, passages); err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}

	s.mu.Lock()
	s.documents++
	s.totalChunks += len(passages)
	s.mu.Unlock()

	log.Printf("Ingested document %s: %d passages", sourceID, len(passages))
	return len(passages), preview(text, 200), nil
}

// preview returns the first n characters of text for the upload response.
func preview(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[:n] + "..."
}

// GetStatus returns the status of the ingestion pipeline.
func (s *IngestService) GetStatus() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]interface{}{
		"documents_ingested": s.documents,
		"passages_indexed":   s.totalChunks,
	}
}
