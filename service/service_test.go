package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagine-rag-backend/content"
	"imagine-rag-backend/embedding"
	"imagine-rag-backend/models"
	"imagine-rag-backend/repository"
)

type staticLoader struct {
	mu  sync.Mutex
	src content.Source
	err error
}

func (l *staticLoader) Load(context.Context) (content.Source, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src, l.err
}

func (l *staticLoader) set(snap *content.Snapshot) {
	l.mu.Lock()
	l.src = content.NewSnapshotSource(snap)
	l.mu.Unlock()
}

func corpus() *content.Snapshot {
	return &content.Snapshot{
		Courses:     []content.Course{{ID: "c-js", UID: "imagine-js", Title: "Imagine JS"}},
		Chapters:    []content.Chapter{{ID: "ch-js", CourseID: "c-js", Title: "Functions"}},
		Subchapters: []content.Subchapter{{ID: "sub-js", ChapterID: "ch-js", Title: "Scope"}},
		Pages: []content.Page{
			{
				ID:           "p-closures",
				Title:        "Meet the closure",
				SubchapterID: "sub-js",
				Type:         content.PageTextImageCode,
				Concepts:     []string{"Closures"},
				Entries: content.Entries{
					content.TextImageCodeEntry{
						Text:  "Closures capture variables from their enclosing scope.",
						Image: content.Image{URL: "https://cdn.example.com/box.png", Alt: "A box keeping a secret"},
						Code:  content.Code{Source: "const counter = () => { let n = 0; return () => ++n; };"},
					},
				},
			},
			{
				ID:           "p-hoisting",
				Title:        "Hoisting",
				SubchapterID: "sub-js",
				Type:         content.PageText,
				Entries: content.Entries{
					content.TextEntry{Text: "Declarations are moved to the top of their function."},
					content.TextEntry{Text: "Only var declarations are initialized with undefined."},
				},
			},
		},
	}
}

type poisonEmbedder struct {
	*embedding.HashEmbedder
}

func (e poisonEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if strings.Contains(t, "poison") {
			return nil, errors.New("provider rejected the batch")
		}
	}
	return e.HashEmbedder.EmbedDocuments(ctx, texts)
}

func newIndexService(loader SourceLoader, store ChunkWriter, jobs ReindexJobStore, embedder embedding.Embedder) *IndexService {
	return NewIndexService(
		IndexWithLoader(loader),
		IndexWithEmbedder(embedder),
		IndexWithChunkStore(store),
		IndexWithJobStore(jobs),
		IndexWithWorkers(2),
	)
}

func TestReindexThenQueryEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryChunkStore()
	embedder := embedding.NewHashEmbedder(256)
	loader := &staticLoader{}
	loader.set(corpus())

	report, err := newIndexService(loader, store, nil, embedder).Reindex(ctx, []models.Collection{models.CollectionCourseContent}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Entities)
	assert.Equal(t, 3, report.Chunks)
	assert.Zero(t, report.Failures)
	assert.Equal(t, 3, store.Len())

	retrieval := NewRetrievalService(RetrievalWithEmbedder(embedder), RetrievalWithChunkStore(store))
	res, err := retrieval.Query(ctx, QueryRequest{Query: "closures", TopK: 1})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)

	top := res.Results[0]
	assert.Equal(t, "course_content:page_unit:p-closures:u_0:0", top.ChunkUID)
	assert.True(t, top.Meta.HasImage)
	assert.Equal(t, []string{"js"}, top.Meta.CodeLanguages)
	assert.Equal(t, "imagine-js", top.Meta.Domain)
}

func TestQueryFiltersAreConjunctive(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryChunkStore()
	embedder := embedding.NewHashEmbedder(256)
	loader := &staticLoader{}
	loader.set(corpus())

	_, err := newIndexService(loader, store, nil, embedder).Reindex(ctx, nil, nil)
	require.NoError(t, err)

	retrieval := NewRetrievalService(RetrievalWithEmbedder(embedder), RetrievalWithChunkStore(store))
	noImage := false
	res, err := retrieval.Query(ctx, QueryRequest{Query: "closures", TopK: 50, Filters: models.SearchFilters{HasImage: &noImage}})
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	for _, r := range res.Results {
		assert.False(t, r.Meta.HasImage)
	}

	hasCode := true
	domain := "Imagine JS"
	res, err = retrieval.Query(ctx, QueryRequest{
		Query:   "closures",
		Filters: models.SearchFilters{HasCode: &hasCode, Domain: &domain, Concepts: []string{" Closures "}},
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "course_content:page_unit:p-closures:u_0:0", res.Results[0].ChunkUID)
}

type countingEmbedder struct {
	*embedding.HashEmbedder
	calls int
	err   error
}

func (e *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.HashEmbedder.EmbedQuery(ctx, text)
}

type failingSearcher struct{}

func (failingSearcher) Search(context.Context, models.SearchParams) ([]models.ScoredChunk, error) {
	return nil, errors.New("connection refused")
}

func TestQueryValidationHappensBeforeEmbedding(t *testing.T) {
	embedder := &countingEmbedder{HashEmbedder: embedding.NewHashEmbedder(8)}
	retrieval := NewRetrievalService(RetrievalWithEmbedder(embedder), RetrievalWithChunkStore(repository.NewMemoryChunkStore()))
	ctx := context.Background()

	cases := []QueryRequest{
		{Query: "a"},
		{Query: "  x  "},
		{Query: "closures", TopK: 51},
		{Query: "closures", TopK: -1},
		{Query: "closures", Collections: []models.Collection{"bogus"}},
	}
	for _, req := range cases {
		_, err := retrieval.Query(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidQuery)
	}
	assert.Zero(t, embedder.calls)
}

func TestQueryDependencyFailures(t *testing.T) {
	ctx := context.Background()

	broken := &countingEmbedder{HashEmbedder: embedding.NewHashEmbedder(8), err: errors.New("quota exceeded")}
	_, err := NewRetrievalService(RetrievalWithEmbedder(broken), RetrievalWithChunkStore(repository.NewMemoryChunkStore())).
		Query(ctx, QueryRequest{Query: "closures"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)

	_, err = NewRetrievalService(RetrievalWithEmbedder(embedding.NewHashEmbedder(8)), RetrievalWithChunkStore(failingSearcher{})).
		Query(ctx, QueryRequest{Query: "closures"})
	assert.ErrorIs(t, err, ErrRetrievalFailed)
}

type failingWriter struct {
	repository.FeedbackWriter
	failAt    int
	judgments int
}

func (w *failingWriter) InsertJudgment(ctx context.Context, j *models.Judgment) error {
	w.judgments++
	if w.judgments == w.failAt {
		return errors.New("insert failed")
	}
	return w.FeedbackWriter.InsertJudgment(ctx, j)
}

type flakyFeedbackStore struct {
	*repository.MemoryFeedbackStore
	failAt int
}

func (s *flakyFeedbackStore) WithTx(ctx context.Context, fn func(repository.FeedbackWriter) error) error {
	return s.MemoryFeedbackStore.WithTx(ctx, func(w repository.FeedbackWriter) error {
		return fn(&failingWriter{FeedbackWriter: w, failAt: s.failAt})
	})
}

func strPtr(s string) *string { return &s }

func TestRecordFeedback(t *testing.T) {
	store := repository.NewMemoryFeedbackStore()
	svc := NewFeedbackService(FeedbackWithStore(store))

	res, err := svc.Record(context.Background(), RecordFeedbackRequest{
		Interaction: InteractionInput{
			UserID:            strPtr("user-1"),
			Query:             "closures",
			RetrievedChunkIDs: []string{"course_content:page_unit:p-closures:u_0:0"},
			Outcome:           models.OutcomePositive,
		},
		Judgments: []JudgmentInput{
			{PositiveChunkID: strPtr("course_content:page_unit:p-closures:u_0:0"), NegativeChunkID: strPtr("not-a-real-chunk"), Label: 1},
		},
	})
	require.NoError(t, err)

	interactions := store.Interactions()
	require.Len(t, interactions, 1)
	assert.Equal(t, res.InteractionID, interactions[0].ID)
	assert.Equal(t, []string{}, interactions[0].SelectedChunkIDs)

	judgments := store.Judgments()
	require.Len(t, judgments, 1)
	assert.Equal(t, res.InteractionID, judgments[0].InteractionID)
}

func TestRecordFeedbackIsAtomic(t *testing.T) {
	store := &flakyFeedbackStore{MemoryFeedbackStore: repository.NewMemoryFeedbackStore(), failAt: 2}
	svc := NewFeedbackService(FeedbackWithStore(store))

	_, err := svc.Record(context.Background(), RecordFeedbackRequest{
		Interaction: InteractionInput{Query: "closures"},
		Judgments: []JudgmentInput{
			{PositiveChunkID: strPtr("a"), Label: 1},
			{NegativeChunkID: strPtr("b"), Label: -1},
		},
	})
	assert.ErrorIs(t, err, ErrFeedbackFailed)
	assert.Empty(t, store.Interactions())
	assert.Empty(t, store.Judgments())
}

func TestRecordFeedbackValidation(t *testing.T) {
	svc := NewFeedbackService(FeedbackWithStore(repository.NewMemoryFeedbackStore()))
	ctx := context.Background()

	_, err := svc.Record(ctx, RecordFeedbackRequest{Interaction: InteractionInput{Query: "q", Outcome: 2}})
	assert.ErrorIs(t, err, ErrInvalidFeedback)

	_, err = svc.Record(ctx, RecordFeedbackRequest{
		Interaction: InteractionInput{Query: "q"},
		Judgments:   []JudgmentInput{{Label: 0}},
	})
	assert.ErrorIs(t, err, ErrInvalidFeedback)
}

func TestRecordFeedbackAcceptsEmptyQuery(t *testing.T) {
	store := repository.NewMemoryFeedbackStore()
	svc := NewFeedbackService(FeedbackWithStore(store))

	res, err := svc.Record(context.Background(), RecordFeedbackRequest{
		Interaction: InteractionInput{Query: "  ", Outcome: models.OutcomeNeutral},
	})
	require.NoError(t, err)

	interactions := store.Interactions()
	require.Len(t, interactions, 1)
	assert.Equal(t, res.InteractionID, interactions[0].ID)
	assert.Equal(t, "", interactions[0].Query)
}

func TestReindexCountsEntityFailures(t *testing.T) {
	snap := corpus()
	snap.Pages = append(snap.Pages, content.Page{
		ID:      "p-poison",
		Type:    content.PageText,
		Entries: content.Entries{content.TextEntry{Text: "This page carries poison."}},
	})
	loader := &staticLoader{}
	loader.set(snap)
	store := repository.NewMemoryChunkStore()

	svc := newIndexService(loader, store, nil, poisonEmbedder{embedding.NewHashEmbedder(64)})
	report, err := svc.Reindex(context.Background(), []models.Collection{models.CollectionCourseContent}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failures)
	assert.Equal(t, 2, report.Entities)
	assert.Equal(t, 3, store.Len())
	assert.Equal(t, "completed", report.Steps[0].Status)
}

func TestReindexPrunesStaleChunks(t *testing.T) {
	ctx := context.Background()
	loader := &staticLoader{}
	loader.set(corpus())
	store := repository.NewMemoryChunkStore()
	svc := newIndexService(loader, store, nil, embedding.NewHashEmbedder(64))

	_, err := svc.Reindex(ctx, []models.Collection{models.CollectionCourseContent}, nil)
	require.NoError(t, err)
	_, ok := store.Get("course_content:page_unit:p-hoisting:u_1:0")
	require.True(t, ok)

	snap := corpus()
	snap.Pages[1].Entries = snap.Pages[1].Entries[:1]
	loader.set(snap)

	report, err := svc.Reindex(ctx, []models.Collection{models.CollectionCourseContent}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.Pruned)
	_, ok = store.Get("course_content:page_unit:p-hoisting:u_1:0")
	assert.False(t, ok)
}

func TestReindexContentUnavailable(t *testing.T) {
	loader := &staticLoader{err: errors.New("bucket missing")}
	svc := newIndexService(loader, repository.NewMemoryChunkStore(), nil, embedding.NewHashEmbedder(8))

	_, err := svc.Reindex(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrContentUnavailable)

	_, err = svc.Reindex(context.Background(), []models.Collection{"bogus"}, nil)
	assert.ErrorIs(t, err, ErrInvalidReindex)
}

func TestReindexJobLifecycle(t *testing.T) {
	ctx := context.Background()
	loader := &staticLoader{}
	loader.set(corpus())
	jobs := repository.NewMemoryReindexJobStore()
	svc := newIndexService(loader, repository.NewMemoryChunkStore(), jobs, embedding.NewHashEmbedder(64))

	started, err := svc.StartReindex(ctx, StartReindexRequest{Collections: []models.Collection{models.CollectionCourseContent}})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, started.Job.Status)

	_, err = svc.StartReindex(ctx, StartReindexRequest{})
	assert.ErrorIs(t, err, ErrReindexInProgress)

	require.NoError(t, svc.ProcessReindex(ctx, started.Job))

	job, err := svc.GetReindexJob(ctx, started.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.Chunks)
	require.Len(t, job.Steps, 1)
	assert.Equal(t, "completed", job.Steps[0].Status)

	_, err = svc.StartReindex(ctx, StartReindexRequest{})
	assert.NoError(t, err)
}

// strictJobStore rejects calls made with a finished context, like a database driver would
type strictJobStore struct {
	*repository.MemoryReindexJobStore
}

func (s strictJobStore) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ReindexJobStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryReindexJobStore.UpdateStatus(ctx, id, status)
}

func (s strictJobStore) Fail(ctx context.Context, id uuid.UUID, errorMessage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryReindexJobStore.Fail(ctx, id, errorMessage)
}

func TestProcessReindexStopsWhenContextCancelled(t *testing.T) {
	loader := &staticLoader{}
	loader.set(corpus())
	jobs := strictJobStore{repository.NewMemoryReindexJobStore()}
	store := repository.NewMemoryChunkStore()
	svc := newIndexService(loader, store, jobs, embedding.NewHashEmbedder(64))

	started, err := svc.StartReindex(context.Background(), StartReindexRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = svc.ProcessReindex(ctx, started.Job)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, store.Len())

	job, err := svc.GetReindexJob(context.Background(), started.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "context canceled")

	_, err = svc.StartReindex(context.Background(), StartReindexRequest{})
	assert.NoError(t, err)
}
