package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"imagine-rag-backend/embedding"
	"imagine-rag-backend/logger"
	"imagine-rag-backend/models"
	"imagine-rag-backend/pipeline"
)

// Query bounds
const (
	MinQueryLength = 2
	DefaultTopK    = 8
	MaxTopK        = 50
)

var (
	ErrInvalidQuery    = errors.New("invalid query")
	ErrEmbeddingFailed = errors.New("failed to generate embedding")
	ErrRetrievalFailed = errors.New("failed to retrieve chunks")
)

// ChunkSearcher ranks stored chunks for a query
type ChunkSearcher interface {
	Search(ctx context.Context, params models.SearchParams) ([]models.ScoredChunk, error)
}

// RetrievalService answers natural-language queries with ranked chunks
type RetrievalService struct {
	embedder     embedding.Embedder
	chunks       ChunkSearcher
	embedTimeout time.Duration
	log          *logger.Logger
}

// RetrievalServiceOption is a functional option for RetrievalService
type RetrievalServiceOption func(*RetrievalService)

// RetrievalWithEmbedder sets the query embedder
func RetrievalWithEmbedder(e embedding.Embedder) RetrievalServiceOption {
	return func(s *RetrievalService) {
		s.embedder = e
	}
}

// RetrievalWithChunkStore sets the chunk store searched by queries
func RetrievalWithChunkStore(store ChunkSearcher) RetrievalServiceOption {
	return func(s *RetrievalService) {
		s.chunks = store
	}
}

// RetrievalWithEmbedTimeout bounds the embedding call of every query
func RetrievalWithEmbedTimeout(d time.Duration) RetrievalServiceOption {
	return func(s *RetrievalService) {
		s.embedTimeout = d
	}
}

// RetrievalWithLogger sets the logger
func RetrievalWithLogger(log *logger.Logger) RetrievalServiceOption {
	return func(s *RetrievalService) {
		s.log = log
	}
}

// NewRetrievalService creates a new retrieval service
func NewRetrievalService(opts ...RetrievalServiceOption) *RetrievalService {
	s := &RetrievalService{
		embedTimeout: 20 * time.Second,
		log:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryRequest represents a retrieval query
type QueryRequest struct {
	Query       string
	TopK        int // 0 selects DefaultTopK
	Collections []models.Collection
	Filters     models.SearchFilters
	Intent      string
}

// QueryResult represents the ranked chunks of a query
type QueryResult struct {
	Results []models.ScoredChunk
	Intent  string
}

// Query validates the request, embeds the query and runs the hybrid search.
// Invalid requests fail before any embedding or store work.
func (s *RetrievalService) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	if s.embedder == nil {
		return nil, errors.New("embedder not set")
	}
	if s.chunks == nil {
		return nil, errors.New("chunk store not set")
	}

	params, err := buildSearchParams(req)
	if err != nil {
		return nil, err
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	vec, err := s.embedder.EmbedQuery(embedCtx, params.Query)
	cancel()
	if err != nil {
		s.log.Error("Query embedding failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	params.Embedding = vec

	results, err := s.chunks.Search(ctx, params)
	if err != nil {
		s.log.Error("Chunk search failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}

	s.log.Debug("Query answered", "results", len(results), "top_k", params.TopK, "intent", req.Intent)
	return &QueryResult{Results: results, Intent: req.Intent}, nil
}

func buildSearchParams(req QueryRequest) (models.SearchParams, error) {
	query := strings.TrimSpace(req.Query)
	if utf8.RuneCountInString(query) < MinQueryLength {
		return models.SearchParams{}, fmt.Errorf("%w: query must be at least %d characters", ErrInvalidQuery, MinQueryLength)
	}

	topK := req.TopK
	if topK == 0 {
		topK = DefaultTopK
	}
	if topK < 1 || topK > MaxTopK {
		return models.SearchParams{}, fmt.Errorf("%w: topK must be between 1 and %d", ErrInvalidQuery, MaxTopK)
	}

	collections := req.Collections
	if len(collections) == 0 {
		collections = models.DefaultQueryCollections
	}
	for _, c := range collections {
		if !c.Valid() {
			return models.SearchParams{}, fmt.Errorf("%w: unknown collection %q", ErrInvalidQuery, c)
		}
	}

	return models.SearchParams{
		Query:       query,
		TopK:        topK,
		Collections: collections,
		Filters:     normalizeFilters(req.Filters),
	}, nil
}

// normalizeFilters slugs tag filters the same way the pipeline slugs stored tags
func normalizeFilters(f models.SearchFilters) models.SearchFilters {
	out := models.SearchFilters{HasImage: f.HasImage, HasCode: f.HasCode}
	if len(f.Concepts) > 0 {
		out.Concepts = pipeline.SlugSet(f.Concepts)
	}
	if len(f.MnemonicTags) > 0 {
		out.MnemonicTags = pipeline.SlugSet(f.MnemonicTags)
	}
	if f.Domain != nil {
		if d := pipeline.Slug(*f.Domain); d != "" {
			out.Domain = &d
		}
	}
	return out
}
