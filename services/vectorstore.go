package services

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"docchat/models"

	"github.com/philippgille/chromem-go"
)

// ChromemStore is the default VectorStore, backed by an embedded chromem-go
// collection. chromem ranks by cosine similarity, which is the only metric
// this system supports.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewChromemStore creates (or reopens) a chromem collection. With a
// non-empty path the database persists across restarts; otherwise it lives
// in memory. The embedding function is only used if a document arrives
// without a precomputed vector; ingestion always precomputes.
func NewChromemStore(path, collectionName string, embeddingFunc chromem.EmbeddingFunc) (*ChromemStore, error) {
	var db *chromem.DB
	var err error

	if path != "" {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open persistent store: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	return &ChromemStore{db: db, collection: collection}, nil
}

// Add persists passages with their embeddings.
func (s *ChromemStore) Add(ctx context.Context, passages []models.Passage) error {
	if len(passages) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(passages))
	for i, p := range passages {
		docs[i] = chromem.Document{
			ID:        p.ID,
			Content:   p.Text,
			Embedding: p.Embedding,
			Metadata: map[string]string{
				"source_id": p.SourceID,
				"sequence":  strconv.Itoa(p.SequenceIndex),
			},
		}
	}

	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Search returns up to k passages ordered by descending cosine similarity.
// An empty collection yields an empty result, not an error.
func (s *ChromemStore) Search(ctx context.Context, embedding []float32, k int) ([]models.ScoredPassage, error) {
	// chromem rejects queries asking for more results than stored documents.
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := s.collection.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	passages := make([]models.ScoredPassage, len(results))
	for i, r := range results {
		sequence, _ := strconv.Atoi(r.Metadata["sequence"])
		passages[i] = models.ScoredPassage{
			Passage: models.Passage{
				ID:            r.ID,
				Text:          r.Content,
				SourceID:      r.Metadata["source_id"],
				SequenceIndex: sequence,
			},
			Score: float64(r.Similarity),
		}
	}
	return passages, nil
}

// Count returns the number of stored passages.
func (s *ChromemStore) Count() int {
	return s.collection.Count()
}

// GetStatus returns the status of the store.
func (s *ChromemStore) GetStatus() map[string]interface{} {
	return map[string]interface{}{
		"type":          "chromem",
		"passage_count": s.collection.Count(),
		"status":        "active",
	}
}
