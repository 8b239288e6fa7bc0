package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"docchat/models"
)

// Prompts for the two generation roles. The rewrite prompt must produce a
// question, never an answer; the answer prompt must stay inside the
// supplied context and say when the context is insufficient.
const (
	rewritePrompt = "You are a helpful assistant. Given a chat history and the latest user " +
		"question which might reference context in the chat history, formulate a " +
		"standalone question which can be understood without the chat history. " +
		"Do NOT answer the question, just reformulate it if needed and otherwise " +
		"return it as is."

	answerPromptFormat = "You are an expert AI assistant. Use only the following context to " +
		"answer the user's question. If you cannot find the answer in the " +
		"context, say so clearly.\n\nContext:\n%s"
)

// RAGService is the conversational retrieval orchestrator. Each request
// runs the same strictly sequential pipeline: validate -> rewrite the
// question into a standalone query -> retrieve passages -> synthesize a
// grounded answer, streamed token by token.
//
// The service holds no per-request state; concurrent requests only share
// the injected collaborators and fixed configuration.
type RAGService struct {
	embedder  Embedder
	generator Generator
	store     VectorStore
	topK      int
	startTime time.Time
}

// NewRAGService creates the orchestrator with injected collaborators.
func NewRAGService(embedder Embedder, generator Generator, store VectorStore, topK int) *RAGService {
	if topK <= 0 {
		topK = 4
	}
	return &RAGService{
		embedder:  embedder,
		generator: generator,
		store:     store,
		topK:      topK,
		startTime: time.Now(),
	}
}

// Answer runs the full pipeline for one chat request and returns the token
// stream of the grounded answer. The messages slice is the complete
// conversation; the last entry is the current question.
//
// Failures map onto the service error taxonomy: ErrInvalidRequest for a
// structurally invalid conversation, ErrRewriteFailed / ErrRetrievalFailed /
// ErrSynthesisFailed for collaborator failures. None of them are retried
// here; the caller decides how to surface them.
func (s *RAGService) Answer(ctx context.Context, messages []models.ChatMessage) (<-chan StreamToken, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: messages must not be empty", ErrInvalidRequest)
	}

	latest := strings.TrimSpace(messages[len(messages)-1].Content)
	if latest == "" {
		return nil, fmt.Errorf("%w: latest message is empty", ErrInvalidRequest)
	}
	history := messages[:len(messages)-1]

	query, err := s.Rewrite(ctx, history, latest)
	if err != nil {
		return nil, err
	}

	passages, err := s.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}

	// The synthesizer always runs, even with zero passages: the prompt's
	// "say when the context is insufficient" instruction governs the empty
	// case instead of a separate code path.
	system := fmt.Sprintf(answerPromptFormat, buildContextBlock(passages))

	stream, err := s.generator.GenerateStream(ctx, system, messages)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	return stream, nil
}

// AnswerText runs Answer and drains the stream into a single string, for
// callers without an incremental delivery channel (the Discord front end).
func (s *RAGService) AnswerText(ctx context.Context, messages []models.ChatMessage) (string, error) {
	stream, err := s.Answer(ctx, messages)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for token := range stream {
		if token.Error != nil {
			return "", fmt.Errorf("%w: %v", ErrSynthesisFailed, token.Error)
		}
		sb.WriteString(token.Content)
	}
	return strings.TrimSpace(sb.String()), nil
}

// Rewrite turns the latest user message into a standalone search query.
// With no history the message already stands alone and is returned verbatim
// without a model call. A generation failure is fatal for the request: an
// un-rewritten follow-up would retrieve irrelevant passages silently, so
// failing loudly is preferred.
func (s *RAGService) Rewrite(ctx context.Context, history []models.ChatMessage, latest string) (string, error) {
	if len(history) == 0 {
		return latest, nil
	}

	conversation := make([]models.ChatMessage, 0, len(history)+1)
	conversation = append(conversation, history...)
	conversation = append(conversation, models.ChatMessage{Role: models.RoleUser, Content: latest})

	query, err := s.generator.Generate(ctx, rewritePrompt, conversation)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRewriteFailed, err)
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("%w: model returned an empty query", ErrRewriteFailed)
	}

	log.Printf("Rewrote question to standalone query: %q", query)
	return query, nil
}

// Retrieve embeds the standalone query and returns the top-K passages by
// descending cosine similarity. An empty result is a valid "no context
// found" state and is passed through to the synthesizer as-is.
func (s *RAGService) Retrieve(ctx context.Context, query string) ([]models.ScoredPassage, error) {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", ErrRetrievalFailed, err)
	}

	passages, err := s.store.Search(ctx, embedding, s.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}
	return passages, nil
}

// buildContextBlock concatenates passage texts in retrieval order. An empty
// retrieval yields an explicit marker so the model sees that no context was
// found rather than an ambiguous blank.
func buildContextBlock(passages []models.ScoredPassage) string {
	if len(passages) == 0 {
		return "(no relevant context found)"
	}

	parts := make([]string, len(passages))
	for i, p := range passages {
		parts[i] = p.Passage.Text
	}
	return strings.Join(parts, "\n\n")
}

// GetStatus returns the current status of the orchestrator.
func (s *RAGService) GetStatus() map[string]interface{} {
	return map[string]interface{}{
		"status": "active",
		"top_k":  s.topK,
		"uptime": time.Since(s.startTime).String(),
	}
}
