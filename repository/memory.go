package repository

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"imagine-rag-backend/embedding"
	"imagine-rag-backend/models"

	"github.com/google/uuid"
)

// MemoryChunkStore is an in-process chunk store using brute-force cosine
// similarity and a term-coverage lexical rank. It backs development runs
// without Postgres and the service tests.
type MemoryChunkStore struct {
	mu     sync.RWMutex
	chunks map[string]models.Chunk
}

func NewMemoryChunkStore() *MemoryChunkStore {
	return &MemoryChunkStore{chunks: make(map[string]models.Chunk)}
}

// ReplaceSource upserts chunks and drops the entity's rows missing from them
func (s *MemoryChunkStore) ReplaceSource(
	_ context.Context,
	collection models.Collection,
	sourceID string,
	sourceTypes []models.SourceType,
	chunks []models.Chunk,
) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		keep[c.ChunkUID] = struct{}{}
		s.chunks[c.ChunkUID] = c
	}

	var pruned int64
	for uid, c := range s.chunks {
		if c.Meta.Collection != collection || c.Meta.SourceID != sourceID || !hasSourceType(sourceTypes, c.Meta.SourceType) {
			continue
		}
		if _, ok := keep[uid]; !ok {
			delete(s.chunks, uid)
			pruned++
		}
	}
	return pruned, nil
}

func hasSourceType(types []models.SourceType, t models.SourceType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// Search ranks matching chunks by the hybrid score
func (s *MemoryChunkStore) Search(ctx context.Context, params models.SearchParams) ([]models.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	queryTerms := embedding.Tokenize(params.Query)
	results := make([]models.ScoredChunk, 0)
	for _, c := range s.chunks {
		if !inCollections(params.Collections, c.Meta.Collection) || !params.Filters.Matches(c.Meta) {
			continue
		}
		vec := cosine(params.Embedding, c.Embedding)
		lex := lexicalRank(queryTerms, c.Text)
		results = append(results, models.ScoredChunk{
			Chunk:            c,
			VectorSimilarity: vec,
			LexicalRank:      lex,
			Score:            models.HybridScore(vec, lex),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkUID < results[j].ChunkUID
	})
	if params.TopK > 0 && len(results) > params.TopK {
		results = results[:params.TopK]
	}
	return results, nil
}

// Len returns the number of stored chunks
func (s *MemoryChunkStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Get returns a stored chunk by uid
func (s *MemoryChunkStore) Get(uid string) (models.Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[uid]
	return c, ok
}

func inCollections(collections []models.Collection, c models.Collection) bool {
	for _, candidate := range collections {
		if candidate == c {
			return true
		}
	}
	return false
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// lexicalRank scores in [0, 1): the share of distinct query terms present,
// damped by how often they occur
func lexicalRank(queryTerms []string, text string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	counts := make(map[string]int)
	for _, tok := range embedding.Tokenize(text) {
		counts[tok]++
	}

	distinct := make(map[string]struct{}, len(queryTerms))
	matched, hits := 0, 0
	for _, term := range queryTerms {
		if _, seen := distinct[term]; seen {
			continue
		}
		distinct[term] = struct{}{}
		if n := counts[term]; n > 0 {
			matched++
			hits += n
		}
	}
	coverage := float64(matched) / float64(len(distinct))
	return coverage * float64(hits) / float64(hits+1)
}

// MemoryFeedbackStore keeps feedback rows in memory. Writes made inside a
// failed WithTx call are discarded.
type MemoryFeedbackStore struct {
	mu           sync.Mutex
	interactions []models.Interaction
	judgments    []models.Judgment
}

func NewMemoryFeedbackStore() *MemoryFeedbackStore {
	return &MemoryFeedbackStore{}
}

func (s *MemoryFeedbackStore) WithTx(ctx context.Context, fn func(FeedbackWriter) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := &memoryFeedbackTx{}
	if err := fn(staged); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.interactions = append(s.interactions, staged.interactions...)
	s.judgments = append(s.judgments, staged.judgments...)
	return nil
}

// Interactions returns a copy of the committed interactions
func (s *MemoryFeedbackStore) Interactions() []models.Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Interaction(nil), s.interactions...)
}

// Judgments returns a copy of the committed judgments
func (s *MemoryFeedbackStore) Judgments() []models.Judgment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Judgment(nil), s.judgments...)
}

type memoryFeedbackTx struct {
	interactions []models.Interaction
	judgments    []models.Judgment
}

func (t *memoryFeedbackTx) InsertInteraction(_ context.Context, i *models.Interaction) error {
	i.CreatedAt = time.Now()
	t.interactions = append(t.interactions, *i)
	return nil
}

func (t *memoryFeedbackTx) InsertJudgment(_ context.Context, j *models.Judgment) error {
	j.CreatedAt = time.Now()
	t.judgments = append(t.judgments, *j)
	return nil
}

// MemoryReindexJobStore keeps reindex jobs in memory
type MemoryReindexJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]models.ReindexJob
}

func NewMemoryReindexJobStore() *MemoryReindexJobStore {
	return &MemoryReindexJobStore{jobs: make(map[uuid.UUID]models.ReindexJob)}
}

func (s *MemoryReindexJobStore) Create(_ context.Context, job *models.ReindexJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.ID = uuid.New()
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	s.jobs[job.ID] = cloneJob(*job)
	return nil
}

func (s *MemoryReindexJobStore) GetByID(_ context.Context, id uuid.UUID) (*models.ReindexJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneJob(job)
	return &out, nil
}

func (s *MemoryReindexJobStore) UpdateStatus(_ context.Context, id uuid.UUID, status models.ReindexJobStatus) error {
	return s.update(id, func(job *models.ReindexJob) {
		job.Status = status
	})
}

func (s *MemoryReindexJobStore) UpdateProgress(_ context.Context, progress *models.ReindexJob) error {
	return s.update(progress.ID, func(job *models.ReindexJob) {
		job.Steps = append(models.ReindexSteps(nil), progress.Steps...)
		job.Entities = progress.Entities
		job.Chunks = progress.Chunks
		job.Failures = progress.Failures
	})
}

func (s *MemoryReindexJobStore) Complete(_ context.Context, id uuid.UUID) error {
	return s.update(id, func(job *models.ReindexJob) {
		now := time.Now()
		job.Status = models.JobStatusCompleted
		job.CompletedAt = &now
	})
}

func (s *MemoryReindexJobStore) Fail(_ context.Context, id uuid.UUID, errorMessage string) error {
	return s.update(id, func(job *models.ReindexJob) {
		job.Status = models.JobStatusFailed
		job.ErrorMessage = &errorMessage
	})
}

func (s *MemoryReindexJobStore) update(id uuid.UUID, fn func(*models.ReindexJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	fn(&job)
	job.UpdatedAt = time.Now()
	s.jobs[id] = job
	return nil
}

func cloneJob(job models.ReindexJob) models.ReindexJob {
	job.Collections = append([]models.Collection{}, job.Collections...)
	job.Steps = append(models.ReindexSteps{}, job.Steps...)
	return job
}
