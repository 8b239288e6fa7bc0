package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"docchat/config"
	"docchat/controllers"
	"docchat/services"
	"docchat/utils"

	"github.com/gorilla/mux"
	"github.com/philippgille/chromem-go"
	"github.com/rs/cors"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml config file")
	enableDiscord := flag.Bool("discord", false, "enable the Discord front end")
	enableWatcher := flag.Bool("watch", false, "enable the auto-ingest drop directory")
	flag.Parse()

	if err := utils.LoadEnvWithFallback(); err != nil {
		log.Printf("Could not load .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	gemini := services.NewGeminiService(
		os.Getenv(cfg.Gemini.APIKeyEnv),
		cfg.Gemini.BaseURL,
		cfg.Gemini.Model,
		cfg.Gemini.EmbeddingModel,
		time.Duration(cfg.Gemini.TimeoutSecs)*time.Second,
	)
	if !gemini.IsAvailable() {
		log.Printf("Warning: %s not set, generation and embedding calls will fail", cfg.Gemini.APIKeyEnv)
	}

	store, err := buildStore(cfg, gemini)
	if err != nil {
		log.Fatalf("Failed to initialize vector store: %v", err)
	}

	chunker := services.NewChunker(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap)
	ocr := services.NewTesseractService(cfg.OCR.Binary, cfg.OCR.Languages, time.Duration(cfg.OCR.TimeoutSecs)*time.Second)
	if !ocr.IsAvailable() {
		log.Printf("Warning: %s not found in PATH, uploads will fail", cfg.OCR.Binary)
	}

	ingest := services.NewIngestService(ocr, gemini, store, chunker)
	rag := services.NewRAGService(gemini, gemini, store, cfg.Retrieval.TopK)
	discord := services.NewDiscordService(rag)

	controller := controllers.NewController(rag, ingest, discord)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *enableWatcher || cfg.Watcher.Enabled {
		watcher, err := services.NewWatcherService(ingest, cfg.Watcher.Dir, cfg.Watcher.Patterns)
		if err != nil {
			log.Fatalf("Failed to create watcher: %v", err)
		}
		if err := watcher.Start(ctx); err != nil {
			log.Fatalf("Failed to start watcher: %v", err)
		}
		defer watcher.Stop()
	}

	if err := controller.StartServices(*enableDiscord); err != nil {
		log.Printf("Background services degraded: %v", err)
	}
	defer controller.StopServices()

	router := mux.NewRouter()
	router.HandleFunc("/", controller.IndexHandler).Methods("GET")
	router.HandleFunc("/upload", controller.UploadHandler).Methods("POST")
	router.HandleFunc("/chat", controller.ChatHandler).Methods("POST")
	router.HandleFunc("/health", controller.HealthHandler).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	handler := c.Handler(router)

	port := cfg.Server.Port
	if env := os.Getenv("PORT"); env != "" {
		port = env
	}
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	srv := &http.Server{Addr: port, Handler: handler}

	go func() {
		log.Printf("Server starting on port %s", port)
		log.Printf("Visit http://localhost%s to see the index page", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

// buildStore constructs the configured vector store implementation.
func buildStore(cfg *config.AppConfig, gemini *services.GeminiService) (services.VectorStore, error) {
	switch cfg.VectorStore.Type {
	case "qdrant":
		return services.NewQdrantStore(services.QdrantConfig{
			URL:        cfg.VectorStore.Qdrant.URL,
			APIKey:     os.Getenv(cfg.VectorStore.Qdrant.APIKeyEnv),
			Collection: cfg.VectorStore.Qdrant.Collection,
			Dimension:  cfg.VectorStore.Qdrant.Dimension,
			Timeout:    time.Duration(cfg.VectorStore.Qdrant.TimeoutSecs) * time.Second,
		})
	case "memory":
		return services.NewMemoryStore(), nil
	case "chromem", "":
		return services.NewChromemStore(
			cfg.VectorStore.Chromem.Path,
			cfg.VectorStore.Chromem.Collection,
			chromem.EmbeddingFunc(gemini.Embed),
		)
	default:
		return nil, fmt.Errorf("unknown vector store type %q", cfg.VectorStore.Type)
	}
}
