package services

import "strings"

// Chunker splits extracted text into overlapping chunks sized for embedding
// and retrieval. It prefers natural boundaries: paragraphs first, then
// lines, then words, then single characters, so chunks don't break
// mid-token when avoidable.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewChunker creates a chunker. Invalid parameters fall back to the
// defaults used for document indexing (1000 characters, 200 overlap).
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 5
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   []string{"\n\n", "\n", " ", ""},
	}
}

// Split breaks text into chunks of at most chunkSize characters, with up to
// chunkOverlap trailing characters carried into the next chunk. Empty or
// whitespace-only input yields nil so callers can report "no content to
// index" instead of silently indexing nothing. The output is deterministic
// for identical input and parameters.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.split(text, c.separators)
}

func (c *Chunker) split(text string, separators []string) []string {
	// Pick the first separator that occurs in the text; "" always matches
	// and splits into single characters as the last resort.
	var sep string
	var rest []string
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	splits := splitKeepSeparator(text, sep)

	var chunks []string
	var fitting []string
	for _, s := range splits {
		if len(s) <= c.chunkSize {
			fitting = append(fitting, s)
			continue
		}
		// Oversized split: flush what fits, then descend to the next
		// finer-grained separator.
		if len(fitting) > 0 {
			chunks = append(chunks, c.merge(fitting)...)
			fitting = nil
		}
		if len(rest) == 0 {
			chunks = append(chunks, s)
		} else {
			chunks = append(chunks, c.split(s, rest)...)
		}
	}
	if len(fitting) > 0 {
		chunks = append(chunks, c.merge(fitting)...)
	}
	return chunks
}

// merge packs consecutive splits into chunks up to chunkSize, keeping the
// last chunkOverlap characters of each chunk as the start of the next.
func (c *Chunker) merge(splits []string) []string {
	var chunks []string
	var window []string
	total := 0

	for _, s := range splits {
		if total+len(s) > c.chunkSize && total > 0 {
			if chunk := strings.TrimSpace(strings.Join(window, "")); chunk != "" {
				chunks = append(chunks, chunk)
			}
			// Shrink the window down to the overlap before continuing.
			for total > c.chunkOverlap || (total+len(s) > c.chunkSize && total > 0) {
				total -= len(window[0])
				window = window[1:]
			}
		}
		window = append(window, s)
		total += len(s)
	}

	if chunk := strings.TrimSpace(strings.Join(window, "")); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// splitKeepSeparator splits text keeping the separator attached to the
// preceding piece, so joining the pieces reproduces the original text.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.SplitAfter(text, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
