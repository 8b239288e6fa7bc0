package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"docchat/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGemini(baseURL string) *GeminiService {
	return NewGeminiService("test-key", baseURL, "gemini-1.5-flash", "embedding-001", 5*time.Second)
}

func TestGeminiGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req geminiGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.SystemInstruction)
		assert.Equal(t, "be helpful", req.SystemInstruction.Parts[0].Text)
		require.Len(t, req.Contents, 2)
		assert.Equal(t, "user", req.Contents[0].Role)
		assert.Equal(t, "model", req.Contents[1].Role)

		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"hello there"}]},"finishReason":"STOP"}]}`)
	}))
	defer server.Close()

	svc := newTestGemini(server.URL)
	out, err := svc.Generate(context.Background(), "be helpful", []models.ChatMessage{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "yes?"},
	})

	require.NoError(t, err)
	assert.Equal(t, "hello there", out)
}

func TestGeminiGenerateRequiresAPIKey(t *testing.T) {
	svc := NewGeminiService("", "http://unused", "", "", 0)

	_, err := svc.Generate(context.Background(), "", []models.ChatMessage{
		{Role: models.RoleUser, Content: "hi"},
	})

	assert.Error(t, err)
}

func TestGeminiGenerateRetriesOnServerError(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"recovered"}]},"finishReason":"STOP"}]}`)
	}))
	defer server.Close()

	svc := newTestGemini(server.URL)
	out, err := svc.Generate(context.Background(), "", []models.ChatMessage{
		{Role: models.RoleUser, Content: "hi"},
	})

	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestGeminiGenerateDoesNotRetryClientErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":400,"message":"bad request"}}`)
	}))
	defer server.Close()

	svc := newTestGemini(server.URL)
	_, err := svc.Generate(context.Background(), "", []models.ChatMessage{
		{Role: models.RoleUser, Content: "hi"},
	})

	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestGeminiGenerateStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-1.5-flash:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"The total \"}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"is $45.00.\"}]},\"finishReason\":\"STOP\"}]}\n\n")
	}))
	defer server.Close()

	svc := newTestGemini(server.URL)
	stream, err := svc.GenerateStream(context.Background(), "system", []models.ChatMessage{
		{Role: models.RoleUser, Content: "what is the total?"},
	})
	require.NoError(t, err)

	var sb strings.Builder
	var sawDone bool
	for token := range stream {
		require.NoError(t, token.Error)
		sb.WriteString(token.Content)
		if token.Done {
			sawDone = true
		}
	}

	assert.Equal(t, "The total is $45.00.", sb.String())
	assert.True(t, sawDone)
}

func TestGeminiGenerateStreamSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"error\":{\"code\":500,\"message\":\"internal\"}}\n\n")
	}))
	defer server.Close()

	svc := newTestGemini(server.URL)
	stream, err := svc.GenerateStream(context.Background(), "", []models.ChatMessage{
		{Role: models.RoleUser, Content: "hi"},
	})
	require.NoError(t, err)

	var streamErr error
	for token := range stream {
		if token.Error != nil {
			streamErr = token.Error
		}
	}
	require.Error(t, streamErr)
	assert.Contains(t, streamErr.Error(), "internal")
}

func TestGeminiGenerateStreamAbandonedConsumerDoesNotLeak(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		// Far more chunks than the token channel buffers.
		for i := 0; i < 300; i++ {
			fmt.Fprintf(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"tok%d \"}]}}]}\n\n", i)
		}
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"end\"}]},\"finishReason\":\"STOP\"}]}\n\n")
	}))
	defer server.Close()

	before := runtime.NumGoroutine()

	svc := newTestGemini(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := svc.GenerateStream(ctx, "", []models.ChatMessage{
		{Role: models.RoleUser, Content: "hi"},
	})
	require.NoError(t, err)

	// Read one token, then walk away like a disconnected client.
	<-stream
	cancel()

	// The reader must unblock and exit even with the channel buffer full.
	// Drain keep-alive connections before sampling so the count targets the
	// reader goroutine, not idle net/http transport/server goroutines.
	require.Eventually(t, func() bool {
		svc.streamClient.CloseIdleConnections()
		server.CloseClientConnections()
		return runtime.NumGoroutine() <= before+2
	}, 2*time.Second, 20*time.Millisecond, "stream reader goroutine leaked")
}

func TestGeminiGenerateStreamNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	svc := newTestGemini(server.URL)
	_, err := svc.GenerateStream(context.Background(), "", []models.ChatMessage{
		{Role: models.RoleUser, Content: "hi"},
	})

	assert.Error(t, err)
}

func TestGeminiEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/embedding-001:embedContent", r.URL.Path)
		fmt.Fprint(w, `{"embedding":{"values":[0.1,0.2,0.3]}}`)
	}))
	defer server.Close()

	svc := newTestGemini(server.URL)
	vec, err := svc.Embed(context.Background(), "some text")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestGeminiEmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/embedding-001:batchEmbedContents", r.URL.Path)

		var req geminiBatchEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Requests, 2)
		assert.Equal(t, "models/embedding-001", req.Requests[0].Model)
		assert.Equal(t, "chunk one", req.Requests[0].Content.Parts[0].Text)

		fmt.Fprint(w, `{"embeddings":[{"values":[0.1,0.2]},{"values":[0.3,0.4]}]}`)
	}))
	defer server.Close()

	svc := newTestGemini(server.URL)
	vecs, err := svc.EmbedBatch(context.Background(), []string{"chunk one", "chunk two"})

	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vecs[0])
	assert.Equal(t, []float32{0.3, 0.4}, vecs[1])
}

func TestGeminiEmbedBatchCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"embeddings":[{"values":[0.1]}]}`)
	}))
	defer server.Close()

	svc := newTestGemini(server.URL)
	_, err := svc.EmbedBatch(context.Background(), []string{"one", "two"})

	assert.Error(t, err)
}

func TestGeminiEmbedBatchEmptyInput(t *testing.T) {
	svc := newTestGemini("http://unused")

	vecs, err := svc.EmbedBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestRetryDelayCapped(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, retryDelay(1))
	assert.Equal(t, 400*time.Millisecond, retryDelay(2))
	assert.LessOrEqual(t, retryDelay(10), 2*time.Second)
}
