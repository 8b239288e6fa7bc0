package controllers

import (
	"errors"
	"io"
	"log"
	"net/http"

	"docchat/models"
	"docchat/services"
)

// maxUploadBytes bounds the in-memory multipart parse.
const maxUploadBytes = 32 << 20

// UploadHandler accepts a single image upload and runs it through the
// ingestion pipeline. Validation failures get specific 400 responses;
// collaborator failures get a generic 500 with a details string.
func (c *Controller) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form", err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided", "")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read file", err.Error())
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	count, preview, err := c.ingest.Ingest(r.Context(), data, mimeType)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnsupportedMediaType):
			writeError(w, http.StatusBadRequest, "Only image files are supported", err.Error())
		case errors.Is(err, services.ErrNoExtractableText):
			writeError(w, http.StatusBadRequest, "No text could be extracted from the image", err.Error())
		default:
			log.Printf("Ingestion failed for %s: %v", header.Filename, err)
			writeError(w, http.StatusInternalServerError, "Ingestion failed", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, models.UploadResponse{
		Success:    true,
		ChunkCount: count,
		Preview:    preview,
	})
}
