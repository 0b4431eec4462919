package app

import (
	"context"
	"fmt"

	"imagine-rag-backend/config"
	"imagine-rag-backend/content"
	"imagine-rag-backend/embedding"
	"imagine-rag-backend/logger"
	"imagine-rag-backend/storage"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Clients holds the external collaborators shared by the server and the CLI tools
type Clients struct {
	Storage  storage.Storage
	Loader   *content.Loader
	Embedder embedding.Embedder

	closers []func() error
}

// WireClients connects blob storage and the embedding provider described by cfg
func WireClients(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Clients, error) {
	log.Info("Wiring clients...")

	store, err := storage.NewStorage(StorageConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.Info("Storage initialized", "type", cfg.StorageType, "prefix", cfg.ContentPrefix)

	c := &Clients{
		Storage: store,
		Loader:  content.NewLoader(store, cfg.ContentPrefix),
	}

	embedder, err := c.wireEmbedder(ctx, cfg, log)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Embedder = embedder
	return c, nil
}

// StorageConfig maps the environment settings onto the storage backend config
func StorageConfig(cfg *config.Config) storage.StorageConfig {
	return storage.StorageConfig{
		Type:         storage.StorageType(cfg.StorageType),
		LocalPath:    cfg.StoragePath,
		S3Bucket:     cfg.S3Bucket,
		S3Region:     cfg.S3Region,
		AWSAccessKey: cfg.AWSAccessKey,
		AWSSecretKey: cfg.AWSSecretKey,
	}
}

func (c *Clients) wireEmbedder(ctx context.Context, cfg *config.Config, log *logger.Logger) (embedding.Embedder, error) {
	var embedder embedding.Embedder
	switch cfg.Embedder {
	case "hash":
		log.Warn("Using the hash embedder; retrieval quality is for development only")
		embedder = embedding.NewHashEmbedder(cfg.EmbedDimension)
	default:
		if cfg.GeminiAPIKey == "" {
			log.Warn("GEMINI_API_KEY not set")
		}
		client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		c.closers = append(c.closers, client.Close)
		embedder = embedding.NewGeminiEmbedder(client, cfg.EmbedModel, cfg.EmbedDimension,
			embedding.GeminiWithLogger(log.With("component", "gemini")),
		)
		log.Info("Gemini embedder initialized", "model", cfg.EmbedModel, "dimension", cfg.EmbedDimension)
	}

	if cfg.RedisURL == "" {
		return embedder, nil
	}
	rdb, err := embedding.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}
	c.closers = append(c.closers, rdb.Close)
	log.Info("Query embedding cache enabled", "ttl", cfg.EmbedCacheTTL)

	cache := embedding.NewRedisQueryCache(rdb, "", cfg.EmbedCacheTTL)
	return embedding.NewCachedEmbedder(embedder, cache, log), nil
}

// Close releases the clients in reverse order of creation
func (c *Clients) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
}
