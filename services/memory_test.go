package services

import (
	"context"
	"testing"

	"docchat/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSearchOrdersByCosineSimilarity(t *testing.T) {
	store := NewMemoryStore()
	err := store.Add(context.Background(), []models.Passage{
		{ID: "a", Text: "orthogonal", Embedding: []float32{0, 1, 0}},
		{ID: "b", Text: "exact match", Embedding: []float32{1, 0, 0}},
		{ID: "c", Text: "close match", Embedding: []float32{0.9, 0.1, 0}},
	})
	require.NoError(t, err)

	results, err := store.Search(context.Background(), []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "b", results[0].Passage.ID)
	assert.Equal(t, "c", results[1].Passage.ID)
	assert.Equal(t, "a", results[2].Passage.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.InDelta(t, 0.0, results[2].Score, 1e-9)
}

func TestMemoryStoreSearchTruncatesToK(t *testing.T) {
	store := NewMemoryStore()
	err := store.Add(context.Background(), []models.Passage{
		{ID: "a", Embedding: []float32{1, 0}},
		{ID: "b", Embedding: []float32{0, 1}},
		{ID: "c", Embedding: []float32{1, 1}},
	})
	require.NoError(t, err)

	results, err := store.Search(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestMemoryStoreSearchEmpty(t *testing.T) {
	store := NewMemoryStore()

	results, err := store.Search(context.Background(), []float32{1, 0}, 4)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStoreCount(t *testing.T) {
	store := NewMemoryStore()
	assert.Equal(t, 0, store.Count())

	err := store.Add(context.Background(), []models.Passage{
		{ID: "a", Embedding: []float32{1}},
		{ID: "b", Embedding: []float32{1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, store.Count())
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	// Degenerate inputs score zero instead of erroring.
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, cosineSimilarity(nil, nil))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}
