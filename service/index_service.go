package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"imagine-rag-backend/content"
	"imagine-rag-backend/embedding"
	"imagine-rag-backend/logger"
	"imagine-rag-backend/models"
	"imagine-rag-backend/pipeline"
	"imagine-rag-backend/repository"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidReindex     = errors.New("invalid reindex request")
	ErrReindexInProgress  = errors.New("a reindex is already running")
	ErrJobCreationFailed  = errors.New("failed to create reindex job")
	ErrJobNotFound        = errors.New("reindex job not found")
	ErrContentUnavailable = errors.New("content store unavailable")
)

// Reindex step statuses
const (
	stepPending    = "pending"
	stepInProgress = "in_progress"
	stepCompleted  = "completed"
	stepFailed     = "failed"
)

// SourceLoader provides the current content store snapshot
type SourceLoader interface {
	Load(ctx context.Context) (content.Source, error)
}

// ChunkWriter replaces the stored chunks of one source entity
type ChunkWriter interface {
	ReplaceSource(ctx context.Context, collection models.Collection, sourceID string, sourceTypes []models.SourceType, chunks []models.Chunk) (int64, error)
}

// ReindexJobStore persists reindex job progress
type ReindexJobStore interface {
	Create(ctx context.Context, job *models.ReindexJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ReindexJob, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.ReindexJobStatus) error
	UpdateProgress(ctx context.Context, job *models.ReindexJob) error
	Complete(ctx context.Context, id uuid.UUID) error
	Fail(ctx context.Context, id uuid.UUID, errorMessage string) error
}

// IndexService runs the content pipeline and persists the resulting chunks
type IndexService struct {
	loader   SourceLoader
	embedder embedding.Embedder
	chunks   ChunkWriter
	jobs     ReindexJobStore
	canon    pipeline.CanonCourse
	hasher   *pipeline.UserHasher
	splitter pipeline.Splitter
	workers  int
	log      *logger.Logger
	running  atomic.Bool
}

// IndexServiceOption is a functional option for IndexService
type IndexServiceOption func(*IndexService)

// IndexWithLoader sets the content source loader
func IndexWithLoader(loader SourceLoader) IndexServiceOption {
	return func(s *IndexService) {
		s.loader = loader
	}
}

// IndexWithEmbedder sets the document embedder
func IndexWithEmbedder(e embedding.Embedder) IndexServiceOption {
	return func(s *IndexService) {
		s.embedder = e
	}
}

// IndexWithChunkStore sets the chunk store written by reindex runs
func IndexWithChunkStore(store ChunkWriter) IndexServiceOption {
	return func(s *IndexService) {
		s.chunks = store
	}
}

// IndexWithJobStore sets the reindex job store
func IndexWithJobStore(store ReindexJobStore) IndexServiceOption {
	return func(s *IndexService) {
		s.jobs = store
	}
}

// IndexWithCanonCourse sets the course whose subchapters act as domains
func IndexWithCanonCourse(canon pipeline.CanonCourse) IndexServiceOption {
	return func(s *IndexService) {
		s.canon = canon
	}
}

// IndexWithUserHasher sets the hasher applied to learner ids
func IndexWithUserHasher(h *pipeline.UserHasher) IndexServiceOption {
	return func(s *IndexService) {
		s.hasher = h
	}
}

// IndexWithSplitter overrides the chunk splitter bounds
func IndexWithSplitter(sp pipeline.Splitter) IndexServiceOption {
	return func(s *IndexService) {
		s.splitter = sp
	}
}

// IndexWithWorkers sets how many entities are indexed concurrently
func IndexWithWorkers(n int) IndexServiceOption {
	return func(s *IndexService) {
		s.workers = n
	}
}

// IndexWithLogger sets the logger
func IndexWithLogger(log *logger.Logger) IndexServiceOption {
	return func(s *IndexService) {
		s.log = log
	}
}

// NewIndexService creates a new index service
func NewIndexService(opts ...IndexServiceOption) *IndexService {
	s := &IndexService{
		canon:    pipeline.CanonCourse{UID: "canon", Title: "Canon"},
		hasher:   pipeline.NewUserHasher(""),
		splitter: pipeline.NewSplitter(),
		workers:  4,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.workers < 1 {
		s.workers = 1
	}
	return s
}

// IndexableCollections are the collections a full reindex covers by default
var IndexableCollections = []models.Collection{
	models.CollectionCourseContent,
	models.CollectionOverviews,
	models.CollectionMnemonics,
	models.CollectionReflections,
	models.CollectionReviews,
	models.CollectionBlog,
}

// ReindexReport summarizes one pipeline run
type ReindexReport struct {
	Steps    models.ReindexSteps
	Entities int
	Chunks   int
	Failures int
	Pruned   int64
}

// Reindex exports, embeds and stores every entity of the given collections.
// A failing entity is logged and counted; it never aborts the run. progress,
// when set, is called after each collection finishes.
func (s *IndexService) Reindex(ctx context.Context, collections []models.Collection, progress func(*ReindexReport)) (*ReindexReport, error) {
	if s.loader == nil {
		return nil, errors.New("content loader not set")
	}
	if s.embedder == nil {
		return nil, errors.New("embedder not set")
	}
	if s.chunks == nil {
		return nil, errors.New("chunk store not set")
	}

	collections, err := resolveCollections(collections)
	if err != nil {
		return nil, err
	}

	src, err := s.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}
	exporter := pipeline.NewExporter(src, s.canon,
		pipeline.ExporterWithUserHasher(s.hasher),
		pipeline.ExporterWithSplitter(s.splitter),
	)

	report := &ReindexReport{Steps: pendingSteps(collections)}
	for i, collection := range collections {
		step := &report.Steps[i]
		step.Status = stepInProgress

		err := ctx.Err()
		if err == nil {
			err = s.indexCollection(ctx, exporter, collection, step, report)
		}
		if err != nil {
			step.Status = stepFailed
			if progress != nil {
				progress(report)
			}
			return report, err
		}

		step.Status = stepCompleted
		if progress != nil {
			progress(report)
		}
		s.log.Info("Collection indexed",
			"collection", collection,
			"entities", step.Entities,
			"chunks", step.Chunks,
			"failures", step.Failures,
		)
	}

	return report, nil
}

func (s *IndexService) indexCollection(
	ctx context.Context,
	exporter *pipeline.Exporter,
	collection models.Collection,
	step *models.ReindexStep,
	report *ReindexReport,
) error {
	jobs, err := exporter.Plan(ctx, []models.Collection{collection})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, job := range jobs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			chunks, pruned, err := s.indexEntity(gctx, job)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				step.Failures++
				report.Failures++
				s.log.Warn("Entity indexing failed",
					"collection", job.Collection,
					"source_id", job.SourceID,
					"error", err,
				)
				return nil
			}
			step.Entities++
			step.Chunks += chunks
			report.Entities++
			report.Chunks += chunks
			report.Pruned += pruned
			return nil
		})
	}

	return g.Wait()
}

// indexEntity embeds one entity's chunks and replaces its stored rows
func (s *IndexService) indexEntity(ctx context.Context, job pipeline.Job) (int, int64, error) {
	batch, err := job.Run(ctx)
	if err != nil {
		return 0, 0, err
	}

	if len(batch.Chunks) > 0 {
		texts := make([]string, len(batch.Chunks))
		for i, c := range batch.Chunks {
			texts[i] = c.Text
		}
		vectors, err := s.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		}
		if len(vectors) != len(batch.Chunks) {
			return 0, 0, fmt.Errorf("%w: got %d vectors for %d chunks", ErrEmbeddingFailed, len(vectors), len(batch.Chunks))
		}
		for i := range batch.Chunks {
			batch.Chunks[i].Embedding = vectors[i]
		}
	}

	pruned, err := s.chunks.ReplaceSource(ctx, batch.Collection, batch.SourceID, batch.SourceTypes, batch.Chunks)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to store chunks: %w", err)
	}
	return len(batch.Chunks), pruned, nil
}

func resolveCollections(collections []models.Collection) ([]models.Collection, error) {
	if len(collections) == 0 {
		return IndexableCollections, nil
	}
	seen := make(map[models.Collection]bool, len(collections))
	out := make([]models.Collection, 0, len(collections))
	for _, c := range collections {
		if !c.Valid() {
			return nil, fmt.Errorf("%w: unknown collection %q", ErrInvalidReindex, c)
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}

func pendingSteps(collections []models.Collection) models.ReindexSteps {
	steps := make(models.ReindexSteps, 0, len(collections))
	for _, c := range collections {
		steps = append(steps, models.ReindexStep{Collection: c, Status: stepPending})
	}
	return steps
}

// StartReindexRequest represents a request to start a reindex job
type StartReindexRequest struct {
	Collections []models.Collection
}

// StartReindexResult represents the result of creating a reindex job
type StartReindexResult struct {
	Job *models.ReindexJob
}

// StartReindex creates a pending job and reserves the single reindex slot.
// The caller must follow up with ProcessReindex, which releases the slot.
func (s *IndexService) StartReindex(ctx context.Context, req StartReindexRequest) (*StartReindexResult, error) {
	if s.jobs == nil {
		return nil, errors.New("reindex job store not set")
	}

	collections, err := resolveCollections(req.Collections)
	if err != nil {
		return nil, err
	}

	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrReindexInProgress
	}

	job := &models.ReindexJob{
		Status:      models.JobStatusPending,
		Collections: collections,
		Steps:       pendingSteps(collections),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		s.running.Store(false)
		s.log.Error("Failed to create reindex job", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrJobCreationFailed, err)
	}

	return &StartReindexResult{Job: job}, nil
}

// ProcessReindex runs a created job to completion, recording progress
func (s *IndexService) ProcessReindex(ctx context.Context, job *models.ReindexJob) error {
	defer s.running.Store(false)

	log := s.log.With("job_id", job.ID)
	// Job bookkeeping must land even after ctx is cancelled.
	jobCtx := context.WithoutCancel(ctx)
	if err := s.jobs.UpdateStatus(jobCtx, job.ID, models.JobStatusInProgress); err != nil {
		log.Warn("Failed to mark reindex job in progress", "error", err)
	}

	progress := func(report *ReindexReport) {
		job.Steps = report.Steps
		job.Entities = report.Entities
		job.Chunks = report.Chunks
		job.Failures = report.Failures
		if err := s.jobs.UpdateProgress(jobCtx, job); err != nil {
			log.Warn("Failed to record reindex progress", "error", err)
		}
	}

	report, err := s.Reindex(ctx, job.Collections, progress)
	// A job seen in a terminal state no longer blocks the next one.
	s.running.Store(false)
	if err != nil {
		log.Error("Reindex failed", "error", err)
		if failErr := s.jobs.Fail(jobCtx, job.ID, err.Error()); failErr != nil {
			log.Error("Failed to mark reindex job failed", "error", failErr)
		}
		return err
	}

	if err := s.jobs.Complete(jobCtx, job.ID); err != nil {
		return fmt.Errorf("failed to complete reindex job: %w", err)
	}
	log.Info("Reindex completed",
		"entities", report.Entities,
		"chunks", report.Chunks,
		"failures", report.Failures,
		"pruned", report.Pruned,
	)
	return nil
}

// GetReindexJob returns the current state of a job
func (s *IndexService) GetReindexJob(ctx context.Context, id uuid.UUID) (*models.ReindexJob, error) {
	if s.jobs == nil {
		return nil, errors.New("reindex job store not set")
	}
	job, err := s.jobs.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}
