package services

import (
	"context"
	"math"
	"sort"
	"sync"

	"docchat/models"
)

// MemoryStore is an in-memory VectorStore for development and tests.
// Passages are immutable once added and search is read-only, so a single
// RWMutex is all the coordination needed.
type MemoryStore struct {
	mu       sync.RWMutex
	passages []models.Passage
}

// NewMemoryStore creates an empty in-memory vector store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Add persists passages with their embeddings.
func (s *MemoryStore) Add(ctx context.Context, passages []models.Passage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passages = append(s.passages, passages...)
	return nil
}

// Search returns up to k passages ordered by descending cosine similarity.
func (s *MemoryStore) Search(ctx context.Context, embedding []float32, k int) ([]models.ScoredPassage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scored := make([]models.ScoredPassage, 0, len(s.passages))
	for _, p := range s.passages {
		scored = append(scored, models.ScoredPassage{
			Passage: p,
			Score:   cosineSimilarity(embedding, p.Embedding),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Count returns the number of stored passages.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.passages)
}

// GetStatus returns the status of the store.
func (s *MemoryStore) GetStatus() map[string]interface{} {
	return map[string]interface{}{
		"type":          "memory",
		"passage_count": s.Count(),
		"status":        "active",
	}
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Returns 0 for mismatched or zero-magnitude vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
