package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"docchat/models"
	"docchat/services"
)

// ChatHandler answers a question about the indexed documents, streaming the
// answer incrementally. The request carries the full conversation; the last
// message is the current question.
//
// Failures before the first byte map to JSON error responses (400 for
// invalid input, 500 for collaborator failures). Once streaming has begun
// the only remaining failure mode is the caller disconnecting, which just
// stops emission.
func (c *Controller) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", err.Error())
		return
	}

	stream, err := c.rag.Answer(r.Context(), req.Messages)
	if err != nil {
		if errors.Is(err, services.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, "Invalid messages format", err.Error())
			return
		}
		log.Printf("Chat request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Something went wrong", err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)

	for token := range stream {
		if token.Error != nil {
			// Already streaming; nothing useful can be sent to the caller.
			log.Printf("Answer stream aborted: %v", token.Error)
			return
		}
		if token.Content == "" {
			continue
		}
		if _, err := fmt.Fprint(w, token.Content); err != nil {
			// Caller disconnected mid-stream; stop emitting.
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}
}
