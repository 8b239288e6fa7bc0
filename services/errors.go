package services

import "errors"

// Failure taxonomy. Input-validation failures are terminal and user-visible;
// collaborator failures are logged in full server-side and surfaced to the
// caller as a generic error plus a details string.
var (
	// ErrInvalidRequest marks a structurally invalid chat request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnsupportedMediaType marks an upload that is not an image.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrNoExtractableText marks an image whose OCR output is empty.
	ErrNoExtractableText = errors.New("no extractable text")

	// ErrExtractionFailed marks an OCR engine failure.
	ErrExtractionFailed = errors.New("text extraction failed")

	// ErrRewriteFailed marks a failed standalone-query rewrite.
	ErrRewriteFailed = errors.New("query rewrite failed")

	// ErrRetrievalFailed marks a vector store failure during search.
	ErrRetrievalFailed = errors.New("retrieval failed")

	// ErrSynthesisFailed marks a failed answer generation.
	ErrSynthesisFailed = errors.New("answer synthesis failed")

	// ErrEmbeddingFailed marks an embedding provider failure.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrStorageFailed marks a vector store failure during ingestion.
	ErrStorageFailed = errors.New("storage failed")
)
