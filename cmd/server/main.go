package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"imagine-rag-backend/app"
	"imagine-rag-backend/config"
	"imagine-rag-backend/handlers"
	"imagine-rag-backend/logger"
	"imagine-rag-backend/repository"
	"imagine-rag-backend/service"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	db, err := repository.NewPool(ctx, cfg.DatabaseURL, true)
	if err != nil {
		zlog.Fatal("Failed to initialize Postgres", "error", err)
	}
	defer db.Close()
	zlog.Info("Postgres connection established with pgvector support")

	clients, err := app.WireClients(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("Failed to wire clients", "error", err)
	}
	defer clients.Close()

	// Initialize repositories
	chunkRepo := repository.NewChunkRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	jobRepo := repository.NewReindexJobRepository(db)

	// Initialize services
	retrievalService := service.NewRetrievalService(
		service.RetrievalWithEmbedder(clients.Embedder),
		service.RetrievalWithChunkStore(chunkRepo),
		service.RetrievalWithEmbedTimeout(cfg.EmbedTimeout),
		service.RetrievalWithLogger(zlog.With("component", "retrieval")),
	)
	feedbackService := service.NewFeedbackService(
		service.FeedbackWithStore(feedbackRepo),
		service.FeedbackWithLogger(zlog.With("component", "feedback")),
	)
	indexService := service.NewIndexService(append(
		app.IndexOptions(cfg, clients, zlog),
		service.IndexWithChunkStore(chunkRepo),
		service.IndexWithJobStore(jobRepo),
	)...)

	// Initialize handlers
	ragHandler := handlers.NewRAGHandler(ctx, retrievalService, feedbackService, indexService, zlog)
	contentHandler := handlers.NewContentHandler(clients.Storage, clients.Loader, cfg.ContentPrefix, zlog)

	if cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	handlers.RegisterRoutes(r, ragHandler, contentHandler, cfg.AdminKeyHash)
	if cfg.AdminKeyHash == "" {
		zlog.Warn("RAG_ADMIN_KEY_HASH not set; admin routes are disabled")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("Failed to start server", "error", err)
		}
	}()

	<-ctx.Done()
	zlog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("Server shutdown failed", "error", err)
	}
}
