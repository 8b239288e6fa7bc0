package controllers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"docchat/models"
	"docchat/services"
)

// Controller wires the HTTP endpoints to the services layer.
type Controller struct {
	rag     *services.RAGService
	ingest  *services.IngestService
	discord *services.DiscordService
}

// NewController creates a new controller instance.
func NewController(rag *services.RAGService, ingest *services.IngestService, discord *services.DiscordService) *Controller {
	return &Controller{
		rag:     rag,
		ingest:  ingest,
		discord: discord,
	}
}

// StartServices starts the optional background services.
func (c *Controller) StartServices(enableDiscord bool) error {
	if enableDiscord && c.discord != nil && c.discord.IsEnabled() {
		if err := c.discord.Start(); err != nil {
			log.Printf("Failed to start Discord service: %v", err)
			return err
		}
	} else if enableDiscord {
		log.Printf("Discord service requested but not properly configured (missing DISCORD_BOT_TOKEN)")
	}
	return nil
}

// StopServices stops all background services.
func (c *Controller) StopServices() error {
	if c.discord != nil {
		return c.discord.Stop()
	}
	return nil
}

// IndexHandler serves a minimal page listing the available endpoints.
func (c *Controller) IndexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	html := `
	<!DOCTYPE html>
	<html>
	<head><title>docchat</title></head>
	<body>
		<h1>docchat</h1>
		<p>Upload a document image, then ask questions about it.</p>
		<ul>
			<li><strong>POST /upload</strong> - multipart image upload (field "file")</li>
			<li><strong>POST /chat</strong> - {"messages": [{"role", "content"}]} with a streamed answer</li>
			<li><strong>GET /health</strong> - service status</li>
		</ul>
	</body>
	</html>`

	fmt.Fprint(w, html)
}

// HealthHandler provides a health check endpoint.
func (c *Controller) HealthHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"service":   "docchat",
		"endpoints": []string{"/", "/upload", "/chat", "/health"},
		"rag":       c.rag.GetStatus(),
		"ingest":    c.ingest.GetStatus(),
	}
	if c.discord != nil {
		health["discord"] = c.discord.GetStatus()
	}

	writeJSON(w, http.StatusOK, health)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError writes the standard error body.
func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, models.ErrorResponse{Error: message, Details: details})
}
