package services

import (
	"context"

	"docchat/models"
)

// Embedder converts text into a fixed-dimension vector. The dimension is
// fixed for the lifetime of a deployed collection; changing it requires
// re-indexing every passage.
type Embedder interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces text from a language model given a system instruction
// and a conversation.
type Generator interface {
	// Generate produces a complete response in one blocking call.
	Generate(ctx context.Context, system string, messages []models.ChatMessage) (string, error)

	// GenerateStream produces a streaming response, one token per channel
	// element. The channel is closed when generation finishes.
	GenerateStream(ctx context.Context, system string, messages []models.ChatMessage) (<-chan StreamToken, error)
}

// VectorStore persists passages and answers nearest-neighbor queries by
// cosine similarity. Append-only from this service's perspective.
type VectorStore interface {
	// Add persists passages with their embeddings.
	Add(ctx context.Context, passages []models.Passage) error

	// Search returns up to k passages ordered by descending similarity.
	// An empty result is a valid "no context found" state, not an error.
	Search(ctx context.Context, embedding []float32, k int) ([]models.ScoredPassage, error)
}

// TextExtractor converts an uploaded image into raw text.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// StreamToken is a single increment of a streaming response.
type StreamToken struct {
	Content string
	Done    bool
	Error   error
}
