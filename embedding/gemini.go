package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"imagine-rag-backend/logger"
)

const (
	maxRetries     = 3
	initialBackoff = time.Second
	// the batch endpoint accepts at most 100 requests per call
	maxBatchSize = 100
)

// GeminiEmbedder embeds text with a Gemini embedding model
type GeminiEmbedder struct {
	client         *genai.Client
	model          string
	dimension      int
	initialBackoff time.Duration
	log            *logger.Logger
}

// GeminiOption is a functional option for GeminiEmbedder
type GeminiOption func(*GeminiEmbedder)

// GeminiWithLogger sets the logger
func GeminiWithLogger(log *logger.Logger) GeminiOption {
	return func(e *GeminiEmbedder) {
		e.log = log
	}
}

// GeminiWithBackoff sets the delay before the first retry
func GeminiWithBackoff(d time.Duration) GeminiOption {
	return func(e *GeminiEmbedder) {
		e.initialBackoff = d
	}
}

// NewGeminiEmbedder creates an embedder for model with the expected output dimension
func NewGeminiEmbedder(client *genai.Client, model string, dimension int, opts ...GeminiOption) *GeminiEmbedder {
	e := &GeminiEmbedder{
		client:         client,
		model:          model,
		dimension:      dimension,
		initialBackoff: initialBackoff,
		log:            logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *GeminiEmbedder) Name() string   { return "gemini:" + e.model }
func (e *GeminiEmbedder) Dimension() int { return e.dimension }

// EmbedQuery embeds a retrieval query
func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	em := e.client.EmbeddingModel(e.model)
	em.TaskType = genai.TaskTypeRetrievalQuery

	var values []float32
	err := e.withRetry(ctx, func() error {
		res, err := em.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return err
		}
		if res == nil || res.Embedding == nil {
			return fmt.Errorf("empty embedding response")
		}
		values = res.Embedding.Values
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.finish(values)
}

// EmbedDocuments embeds chunk texts in batches, preserving order
func (e *GeminiEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	em := e.client.EmbeddingModel(e.model)
	em.TaskType = genai.TaskTypeRetrievalDocument

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := em.NewBatch()
		for _, text := range texts[start:end] {
			batch.AddContent(genai.Text(text))
		}

		var embeddings []*genai.ContentEmbedding
		err := e.withRetry(ctx, func() error {
			res, err := em.BatchEmbedContents(ctx, batch)
			if err != nil {
				return err
			}
			if res == nil || len(res.Embeddings) != end-start {
				return fmt.Errorf("batch embedding returned an unexpected number of vectors")
			}
			embeddings = res.Embeddings
			return nil
		})
		if err != nil {
			return nil, err
		}

		for _, emb := range embeddings {
			if emb == nil {
				return nil, fmt.Errorf("batch embedding returned a nil vector")
			}
			vec, err := e.finish(emb.Values)
			if err != nil {
				return nil, err
			}
			out = append(out, vec)
		}
	}
	return out, nil
}

func (e *GeminiEmbedder) finish(values []float32) ([]float32, error) {
	if len(values) != e.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(values), e.dimension)
	}
	return Normalize(values), nil
}

// withRetry retries transient failures with exponential backoff.
// Invalid requests and auth failures are returned at once.
func (e *GeminiEmbedder) withRetry(ctx context.Context, fn func() error) error {
	backoff := e.initialBackoff
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch status.Code(lastErr) {
		case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied:
			return fmt.Errorf("embedding request rejected: %w", lastErr)
		}
		e.log.Warn("Embedding attempt failed", "model", e.model, "attempt", attempt+1, "error", lastErr)
	}
	return fmt.Errorf("embedding failed after %d attempts: %w", maxRetries, lastErr)
}
