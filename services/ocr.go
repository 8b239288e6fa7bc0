package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// TesseractService extracts text from images by running the tesseract CLI.
// Character recognition itself stays in the external binary; this adapter
// only handles invocation and cleanup.
type TesseractService struct {
	binary    string
	languages string
	timeout   time.Duration
}

// NewTesseractService creates an OCR service. Defaults: the `tesseract`
// binary on PATH, English, 60 second timeout.
func NewTesseractService(binary, languages string, timeout time.Duration) *TesseractService {
	if binary == "" {
		binary = "tesseract"
	}
	if languages == "" {
		languages = "eng"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &TesseractService{
		binary:    binary,
		languages: languages,
		timeout:   timeout,
	}
}

// Extract writes the image to a temp file and runs tesseract against it,
// returning the recognized text from stdout.
func (t *TesseractService) Extract(ctx context.Context, data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "docchat-ocr-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing temp file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.binary, tmp.Name(), "stdout", "-l", t.languages)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("running tesseract: %s", msg)
	}

	return stdout.String(), nil
}

// IsAvailable checks whether the tesseract binary can be found.
func (t *TesseractService) IsAvailable() bool {
	_, err := exec.LookPath(t.binary)
	return err == nil
}

// GetStatus returns the status of the OCR service.
func (t *TesseractService) GetStatus() map[string]interface{} {
	status := map[string]interface{}{
		"binary":    t.binary,
		"languages": t.languages,
		"timeout":   t.timeout.String(),
	}
	if t.IsAvailable() {
		status["status"] = "available"
	} else {
		status["status"] = "unavailable"
		status["error"] = fmt.Sprintf("%s not found in PATH", t.binary)
	}
	return status
}
