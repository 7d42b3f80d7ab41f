package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reelsmith/storyboard/internal/api"
	"github.com/reelsmith/storyboard/internal/config"
	"github.com/reelsmith/storyboard/internal/db"
	"github.com/reelsmith/storyboard/internal/genai"
	"github.com/reelsmith/storyboard/internal/media"
	"github.com/reelsmith/storyboard/internal/pipeline"
	"github.com/reelsmith/storyboard/internal/progress"
	"github.com/reelsmith/storyboard/internal/queue"
	"github.com/reelsmith/storyboard/internal/retry"
	"github.com/reelsmith/storyboard/internal/store"
	"github.com/reelsmith/storyboard/internal/transcribe"
	"github.com/reelsmith/storyboard/internal/worker"
)

func main() {
	log.Println("Starting Storyboard API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Saved-item library (Redis-backed, quota-recovering)
	savedStore, err := store.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to saved-item store: %v", err)
	}
	defer savedStore.Close()
	library := store.NewLibrary(savedStore)

	// Progress notifier — pipelines publish, we drain to the log
	notify := progress.New(64)
	defer notify.Close()
	go func() {
		for msg := range notify.Messages() {
			log.Printf("[Progress] %s", msg)
		}
	}()

	// Generative backend with shared retry policy
	policy := retry.New(func(msg string) { notify.Publish(msg) })
	backend := genai.NewService(cfg.GeminiKey, policy)
	pipelines := pipeline.New(backend, notify)

	// Whisper transcription — optional, powers speaker detection from audio
	var transcriber pipeline.Transcriber
	if cfg.OpenAIKey != "" {
		transcriber = transcribe.New(cfg.OpenAIKey)
		log.Println("Voiceover transcription enabled")
	} else {
		log.Println("OPENAI_API_KEY not set — character detection from audio disabled")
	}

	// Create API handler
	handler := api.NewHandler(database, q, pipelines, library, transcriber)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		ffmpegSvc := media.NewFFmpegService(cfg.MediaDir)
		w := worker.New(database, q, backend, notify, ffmpegSvc)

		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Shutdown worker
	if workerCancel != nil {
		workerCancel()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
