package services

import (
	"context"
	"errors"
	"testing"

	"docchat/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ingestion always precomputes embeddings, so the collection should never
// call this.
func unusedEmbeddingFunc(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedding func should not be called")
}

func newInMemoryChromem(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore("", "test", unusedEmbeddingFunc)
	require.NoError(t, err)
	return store
}

func TestChromemStoreSearchEmptyCollection(t *testing.T) {
	store := newInMemoryChromem(t)

	results, err := store.Search(context.Background(), []float32{1, 0, 0}, 4)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemStoreAddAndSearch(t *testing.T) {
	store := newInMemoryChromem(t)

	err := store.Add(context.Background(), []models.Passage{
		{ID: "doc:0", Text: "exact match", SourceID: "doc", SequenceIndex: 0, Embedding: []float32{1, 0, 0}},
		{ID: "doc:1", Text: "close match", SourceID: "doc", SequenceIndex: 1, Embedding: []float32{0.9, 0.1, 0}},
		{ID: "doc:2", Text: "orthogonal", SourceID: "doc", SequenceIndex: 2, Embedding: []float32{0, 1, 0}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, store.Count())

	results, err := store.Search(context.Background(), []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "doc:0", results[0].Passage.ID)
	assert.Equal(t, "exact match", results[0].Passage.Text)
	assert.Equal(t, "doc", results[0].Passage.SourceID)
	assert.Equal(t, 0, results[0].Passage.SequenceIndex)
	assert.Equal(t, "doc:1", results[1].Passage.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestChromemStoreClampsKToStoredCount(t *testing.T) {
	store := newInMemoryChromem(t)

	err := store.Add(context.Background(), []models.Passage{
		{ID: "doc:0", Text: "only passage", SourceID: "doc", Embedding: []float32{1, 0, 0}},
	})
	require.NoError(t, err)

	// Asking for more results than stored must not error.
	results, err := store.Search(context.Background(), []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestChromemStoreAddEmptyIsNoop(t *testing.T) {
	store := newInMemoryChromem(t)

	require.NoError(t, store.Add(context.Background(), nil))
	assert.Equal(t, 0, store.Count())
}
