package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"docchat/models"

	"github.com/google/uuid"
)

// QdrantStore is a VectorStore backed by a remote Qdrant instance, talking
// to its REST API directly. Selected with vector_store.type "qdrant".
type QdrantStore struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

// NewQdrantStore creates the store and ensures the collection exists with
// cosine distance over vectors of the configured dimension.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("qdrant URL not set")
	}
	if cfg.Collection == "" {
		return nil, errors.New("qdrant collection not set")
	}
	if cfg.Dimension <= 0 {
		return nil, errors.New("invalid vector dimension")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	s := &QdrantStore{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: timeout},
	}

	// Create collection if missing; Qdrant returns OK when it already
	// exists with the same schema.
	body := map[string]any{
		"vectors": map[string]any{
			"size":     cfg.Dimension,
			"distance": "Cosine",
		},
	}
	if err := s.send(context.Background(), http.MethodPut,
		fmt.Sprintf("%s/collections/%s", s.url, s.collection), body, nil); err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return s, nil
}

// Add upserts passages as points with their embeddings and payload.
// Qdrant only accepts unsigned integers or UUIDs as point IDs, so the
// passage ID goes into the payload and the point ID is a UUID derived
// from it (deterministic, so re-upserting the same passage overwrites
// rather than duplicates).
func (s *QdrantStore) Add(ctx context.Context, passages []models.Passage) error {
	if len(passages) == 0 {
		return nil
	}

	points := make([]map[string]any, len(passages))
	for i, p := range passages {
		points[i] = map[string]any{
			"id":     pointID(p.ID),
			"vector": p.Embedding,
			"payload": map[string]any{
				"id":        p.ID,
				"text":      p.Text,
				"source_id": p.SourceID,
				"sequence":  p.SequenceIndex,
			},
		}
	}

	body := map[string]any{"points": points}
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection)
	if err := s.send(ctx, http.MethodPut, url, body, nil); err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// Search returns up to k passages ordered by descending cosine similarity.
func (s *QdrantStore) Search(ctx context.Context, embedding []float32, k int) ([]models.ScoredPassage, error) {
	body := map[string]any{
		"vector":       embedding,
		"limit":        k,
		"with_payload": true,
	}

	var out struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				ID       string `json:"id"`
				Text     string `json:"text"`
				SourceID string `json:"source_id"`
				Sequence int    `json:"sequence"`
			} `json:"payload"`
		} `json:"result"`
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection)
	if err := s.send(ctx, http.MethodPost, url, body, &out); err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	passages := make([]models.ScoredPassage, 0, len(out.Result))
	for _, r := range out.Result {
		passages = append(passages, models.ScoredPassage{
			Passage: models.Passage{
				ID:            r.Payload.ID,
				Text:          r.Payload.Text,
				SourceID:      r.Payload.SourceID,
				SequenceIndex: r.Payload.Sequence,
			},
			Score: r.Score,
		})
	}
	return passages, nil
}

// pointID maps a passage ID onto a UUID, the only string form Qdrant
// accepts for point IDs.
func pointID(passageID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(passageID)).String()
}

// send issues a JSON request and optionally decodes the response into out.
func (s *QdrantStore) send(ctx context.Context, method, url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant returned status %d: %s", resp.StatusCode, string(payload))
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decoding qdrant response: %w", err)
		}
	}
	return nil
}

// GetStatus returns the status of the store.
func (s *QdrantStore) GetStatus() map[string]interface{} {
	return map[string]interface{}{
		"type":       "qdrant",
		"url":        s.url,
		"collection": s.collection,
		"dimension":  s.dimension,
	}
}
