package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docchat/models"
)

// GeminiService handles communication with the Google Generative Language
// API. It implements both the Generator and Embedder interfaces: chat
// generation (blocking and streaming) and text embeddings come from the
// same provider so the whole pipeline shares one credential.
type GeminiService struct {
	apiKey         string
	baseURL        string
	model          string
	embeddingModel string
	httpClient     *http.Client
	streamClient   *http.Client
	maxRetries     int
}

// geminiPart is a single text part of a content block.
type geminiPart struct {
	Text string `json:"text"`
}

// geminiContent is a content block in the Gemini wire format.
type geminiContent struct {
	Role  string       `json:"role,omitempty"` // "user" or "model"
	Parts []geminiPart `json:"parts"`
}

// geminiGenerationConfig holds sampling parameters.
type geminiGenerationConfig struct {
	Temperature float64 `json:"temperature"`
}

// geminiGenerateRequest represents a generateContent request.
type geminiGenerateRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

// geminiError is the API error payload.
type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// geminiGenerateResponse represents a generateContent response (and a
// single streamed chunk, which uses the same shape).
type geminiGenerateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	Error *geminiError `json:"error,omitempty"`
}

// geminiEmbedRequest is one entry of a batchEmbedContents request.
type geminiEmbedRequest struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type geminiBatchEmbedRequest struct {
	Requests []geminiEmbedRequest `json:"requests"`
}

type geminiBatchEmbedResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
	Error *geminiError `json:"error,omitempty"`
}

type geminiEmbedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
	Error *geminiError `json:"error,omitempty"`
}

// NewGeminiService creates a Gemini client. Defaults: gemini-1.5-flash for
// generation, embedding-001 (768 dimensions) for embeddings.
func NewGeminiService(apiKey, baseURL, model, embeddingModel string, timeout time.Duration) *GeminiService {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	if embeddingModel == "" {
		embeddingModel = "embedding-001"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &GeminiService{
		apiKey:         apiKey,
		baseURL:        baseURL,
		model:          model,
		embeddingModel: embeddingModel,
		httpClient:     &http.Client{Timeout: timeout},
		// No client timeout for streaming; cancellation comes from the
		// request context instead.
		streamClient: &http.Client{},
		maxRetries:   3,
	}
}

// Generate produces a complete response in one blocking call.
func (g *GeminiService) Generate(ctx context.Context, system string, messages []models.ChatMessage) (string, error) {
	if g.apiKey == "" {
		return "", fmt.Errorf("Gemini API key not set")
	}

	request := g.buildGenerateRequest(system, messages)
	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)

	body, err := g.postWithRetry(ctx, url, request)
	if err != nil {
		return "", err
	}

	var genResp geminiGenerateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if genResp.Error != nil {
		return "", fmt.Errorf("Gemini API error: %s", genResp.Error.Message)
	}
	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response candidates from Gemini")
	}

	var sb strings.Builder
	for _, part := range genResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}

// GenerateStream produces a streaming response via the SSE endpoint. Tokens
// are delivered on the returned channel; the channel closes when the stream
// ends or the context is canceled.
func (g *GeminiService) GenerateStream(ctx context.Context, system string, messages []models.ChatMessage) (<-chan StreamToken, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("Gemini API key not set")
	}

	request := g.buildGenerateRequest(system, messages)
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request to Gemini: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("Gemini API returned status %d: %s", resp.StatusCode, string(body))
	}

	ch := make(chan StreamToken, 100)

	go func() {
		defer close(ch)
		defer resp.Body.Close()

		// Every delivery must also watch the context: an abandoned consumer
		// stops draining the channel, and a bare send would block this
		// goroutine (and pin the response body) forever.
		emit := func(token StreamToken) bool {
			select {
			case ch <- token:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				emit(StreamToken{Done: true, Error: ctx.Err()})
				return
			default:
			}

			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" || payload == "[DONE]" {
				continue
			}

			var chunk geminiGenerateResponse
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue // skip malformed chunks
			}
			if chunk.Error != nil {
				emit(StreamToken{Done: true, Error: fmt.Errorf("Gemini API error: %s", chunk.Error.Message)})
				return
			}
			if len(chunk.Candidates) == 0 {
				continue
			}

			var sb strings.Builder
			for _, part := range chunk.Candidates[0].Content.Parts {
				sb.WriteString(part.Text)
			}
			done := chunk.Candidates[0].FinishReason != ""

			if !emit(StreamToken{Content: sb.String(), Done: done}) {
				return
			}
			if done {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			emit(StreamToken{Done: true, Error: err})
			return
		}
		emit(StreamToken{Done: true})
	}()

	return ch, nil
}

// Embed generates an embedding vector for a single text.
func (g *GeminiService) Embed(ctx context.Context, text string) ([]float32, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("Gemini API key not set")
	}

	request := map[string]interface{}{
		"content": geminiContent{Parts: []geminiPart{{Text: text}}},
	}
	url := fmt.Sprintf("%s/models/%s:embedContent", g.baseURL, g.embeddingModel)

	body, err := g.postWithRetry(ctx, url, request)
	if err != nil {
		return nil, err
	}

	var embResp geminiEmbedResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if embResp.Error != nil {
		return nil, fmt.Errorf("Gemini API error: %s", embResp.Error.Message)
	}
	if len(embResp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embResp.Embedding.Values, nil
}

// EmbedBatch generates embeddings for multiple texts in one API call.
func (g *GeminiService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("Gemini API key not set")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	request := geminiBatchEmbedRequest{
		Requests: make([]geminiEmbedRequest, len(texts)),
	}
	for i, text := range texts {
		request.Requests[i] = geminiEmbedRequest{
			Model:   "models/" + g.embeddingModel,
			Content: geminiContent{Parts: []geminiPart{{Text: text}}},
		}
	}

	url := fmt.Sprintf("%s/models/%s:batchEmbedContents", g.baseURL, g.embeddingModel)
	body, err := g.postWithRetry(ctx, url, request)
	if err != nil {
		return nil, err
	}

	var batchResp geminiBatchEmbedResponse
	if err := json.Unmarshal(body, &batchResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if batchResp.Error != nil {
		return nil, fmt.Errorf("Gemini API error: %s", batchResp.Error.Message)
	}
	if len(batchResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(batchResp.Embeddings))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range batchResp.Embeddings {
		if len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// buildGenerateRequest converts chat messages to the Gemini wire format.
// The "assistant" role maps to Gemini's "model" role.
func (g *GeminiService) buildGenerateRequest(system string, messages []models.ChatMessage) geminiGenerateRequest {
	contents := make([]geminiContent, 0, len(messages))
	for _, msg := range messages {
		role := "user"
		if msg.Role == models.RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}

	request := geminiGenerateRequest{
		Contents:         contents,
		GenerationConfig: &geminiGenerationConfig{Temperature: 0},
	}
	if system != "" {
		request.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	return request
}

// postWithRetry sends a JSON POST, retrying on 429 and 5xx with exponential
// backoff.
func (g *GeminiService) postWithRetry(ctx context.Context, url string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", g.apiKey)

		resp, err := g.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("failed to make request to Gemini: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("Gemini API returned status %d: %s", resp.StatusCode, string(body))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("Gemini API returned status %d: %s", resp.StatusCode, string(body))
		}
		return body, nil
	}
	return nil, lastErr
}

// retryDelay returns an exponential backoff delay capped at 2 seconds.
func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := 200 * time.Millisecond << (attempt - 1)
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}

// IsAvailable checks if the Gemini service is configured.
func (g *GeminiService) IsAvailable() bool {
	return g.apiKey != ""
}

// GetModel returns the current generation model.
func (g *GeminiService) GetModel() string {
	return g.model
}

// GetStatus returns the status of the Gemini service.
func (g *GeminiService) GetStatus() map[string]interface{} {
	status := map[string]interface{}{
		"base_url":        g.baseURL,
		"model":           g.model,
		"embedding_model": g.embeddingModel,
		"timeout":         g.httpClient.Timeout.String(),
	}

	if g.IsAvailable() {
		status["status"] = "available"
		if len(g.apiKey) > 8 {
			status["api_key"] = g.apiKey[:4] + "..." + g.apiKey[len(g.apiKey)-4:]
		} else {
			status["api_key"] = "***"
		}
	} else {
		status["status"] = "unavailable"
		status["error"] = "GOOGLE_API_KEY not set"
	}
	return status
}
