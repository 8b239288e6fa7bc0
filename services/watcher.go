package services

import (
	"context"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// defaultDebounce is how long writes to a file must quiesce before it is
// ingested, so a file still being copied is not read half-written.
const defaultDebounce = 500 * time.Millisecond

// WatcherService monitors a drop directory and ingests matching files as
// they appear, as an alternative to the upload endpoint. Ingestion failures
// for individual files are logged and skipped, never fatal.
type WatcherService struct {
	ingest   *IngestService
	dir      string
	patterns []string
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcherService creates a folder watcher. Patterns are glob patterns
// matched against file base names, e.g. "*.png".
func NewWatcherService(ingest *IngestService, dir string, patterns []string) (*WatcherService, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		patterns = []string{"*.png", "*.jpg", "*.jpeg"}
	}
	return &WatcherService{
		ingest:   ingest,
		dir:      dir,
		patterns: patterns,
		debounce: defaultDebounce,
		watcher:  w,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Start begins watching. It creates the directory if missing and returns
// once the watch is registered; events are handled in the background until
// the context is canceled.
func (w *WatcherService) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}

	go w.run(ctx)

	log.Printf("Watching %s for new documents (patterns: %s)", w.dir, strings.Join(w.patterns, ", "))
	return nil
}

func (w *WatcherService) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !w.matches(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Watcher error: %v", err)
		}
	}
}

// schedule defers ingestion of a path until its writes quiesce. Each new
// event for the same path resets the timer, so a file being copied in
// several writes is only read once, after the last one.
func (w *WatcherService) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		w.ingestFile(ctx, path)
	})
}

// ingestFile reads one dropped file and runs it through the pipeline.
func (w *WatcherService) ingestFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("Failed to read %s: %v", path, err)
		return
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	count, _, err := w.ingest.Ingest(ctx, data, mimeType)
	if err != nil {
		log.Printf("Failed to ingest %s: %v", path, err)
		return
	}
	log.Printf("Auto-ingested %s: %d passages", path, count)
}

// matches reports whether the file base name matches any watch pattern.
func (w *WatcherService) matches(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.patterns {
		if ok, err := doublestar.Match(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}

// Stop stops the watcher and cancels any not-yet-quiesced ingestions.
func (w *WatcherService) Stop() error {
	w.mu.Lock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

// GetStatus returns the status of the watcher.
func (w *WatcherService) GetStatus() map[string]interface{} {
	return map[string]interface{}{
		"dir":      w.dir,
		"patterns": w.patterns,
	}
}
