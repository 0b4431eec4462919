package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"imagine-rag-backend/content"
	"imagine-rag-backend/embedding"
	"imagine-rag-backend/repository"
	"imagine-rag-backend/service"
	"imagine-rag-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const adminKey = "let-me-in"

const closuresSnapshot = `
courses:
  - id: c-js
    uid: imagine-js
    title: Imagine JS
chapters:
  - id: ch-js
    course_id: c-js
    title: Functions
subchapters:
  - id: sub-js
    chapter_id: ch-js
    title: Scope
pages:
  - id: p-closures
    title: Closures
    subchapter_id: sub-js
    type: text_image_code
    concepts: [closure]
    entries:
      - component: text_image_code
        text: A closure keeps the variables of its birthplace.
        image:
          alt: captain guarding a treasure chest
        code:
          language: javascript
          source: "function outer(){ let x = 1; return () => x; }"
`

func init() {
	gin.SetMode(gin.TestMode)
}

type countingEmbedder struct {
	*embedding.HashEmbedder
	calls atomic.Int32
}

func (e *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	return e.HashEmbedder.EmbedQuery(ctx, text)
}

type testServer struct {
	router   *gin.Engine
	chunks   *repository.MemoryChunkStore
	feedback *repository.MemoryFeedbackStore
	embedder *countingEmbedder
}

func newTestServer(t *testing.T, adminKeyHash string) *testServer {
	t.Helper()
	return newTestServerWithContext(t, context.Background(), adminKeyHash)
}

func newTestServerWithContext(t *testing.T, ctx context.Context, adminKeyHash string) *testServer {
	t.Helper()

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	loader := content.NewLoader(store, "snapshots")

	chunks := repository.NewMemoryChunkStore()
	feedbackStore := repository.NewMemoryFeedbackStore()
	embedder := &countingEmbedder{HashEmbedder: embedding.NewHashEmbedder(256)}

	retrieval := service.NewRetrievalService(
		service.RetrievalWithEmbedder(embedder),
		service.RetrievalWithChunkStore(chunks),
	)
	feedback := service.NewFeedbackService(service.FeedbackWithStore(feedbackStore))
	index := service.NewIndexService(
		service.IndexWithLoader(loader),
		service.IndexWithEmbedder(embedder),
		service.IndexWithChunkStore(chunks),
		service.IndexWithJobStore(repository.NewMemoryReindexJobStore()),
		service.IndexWithWorkers(2),
	)

	router := gin.New()
	RegisterRoutes(router,
		NewRAGHandler(ctx, retrieval, feedback, index, nil),
		NewContentHandler(store, loader, "snapshots", nil),
		adminKeyHash,
	)

	return &testServer{
		router:   router,
		chunks:   chunks,
		feedback: feedbackStore,
		embedder: embedder,
	}
}

func hashAdminKey(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(adminKey), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func (s *testServer) do(method, path string, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func adminHeader() http.Header {
	h := http.Header{}
	h.Set(AdminKeyHeader, adminKey)
	return h
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *testServer) upload(t *testing.T, filename, data string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/rag/content", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(AdminKeyHeader, adminKey)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, "")
	w := srv.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestQueryRejectsSchemaViolations(t *testing.T) {
	srv := newTestServer(t, "")

	bodies := []string{
		`not json`,
		`{}`,
		`{"query": 5}`,
		`{"query": "a"}`,
		`{"query": "closures", "topK": 0}`,
		`{"query": "closures", "topK": 51}`,
		`{"query": "closures", "topK": "three"}`,
		`{"query": "closures", "filters": {"has_image": "yes"}}`,
		`{"query": "closures", "filters": {"concepts": "closure"}}`,
		`{"query": "closures", "collections": ["bogus"]}`,
	}
	for _, body := range bodies {
		w := srv.do(http.MethodPost, "/rag/query", body, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		resp := decode(t, w)
		assert.Equal(t, false, resp["ok"], body)
		assert.Equal(t, "INVALID_REQUEST", resp["error"].(map[string]any)["code"], body)
	}
	assert.Zero(t, srv.embedder.calls.Load())
}

func TestQueryOnEmptyStore(t *testing.T) {
	srv := newTestServer(t, "")
	w := srv.do(http.MethodPost, "/rag/query", `{"query": "closures", "intent": "teach"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, []any{}, resp["results"])
	assert.Equal(t, "teach", resp["intent"])
	assert.EqualValues(t, 1, srv.embedder.calls.Load())
}

func TestFeedback(t *testing.T) {
	srv := newTestServer(t, "")

	body := `{
		"interaction": {
			"user_id": "user-1",
			"query": "what is a closure",
			"answer": "a function with its scope",
			"retrieved_chunk_ids": ["course_content:page_unit:p-closures:u_0:0"],
			"outcome": 1
		},
		"judgments": [
			{"positive_chunk_id": "course_content:page_unit:p-closures:u_0:0", "label": 1}
		]
	}`
	w := srv.do(http.MethodPost, "/rag/feedback", body, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode(t, w)
	assert.Equal(t, true, resp["ok"])
	id, err := uuid.Parse(resp["interactionId"].(string))
	require.NoError(t, err)

	interactions := srv.feedback.Interactions()
	require.Len(t, interactions, 1)
	assert.Equal(t, id, interactions[0].ID)
	require.Len(t, srv.feedback.Judgments(), 1)
	assert.Equal(t, id, srv.feedback.Judgments()[0].InteractionID)
}

func TestFeedbackRejectsSchemaViolations(t *testing.T) {
	srv := newTestServer(t, "")

	bodies := []string{
		`{}`,
		`{"interaction": {"query": "q"}}`,
		`{"interaction": {"query": 42, "outcome": 0}}`,
		`{"interaction": {"query": "q", "outcome": 2}}`,
		`{"interaction": {"query": "q", "outcome": "good"}}`,
		`{"interaction": {"query": "q", "outcome": 1}, "judgments": [{"label": 0}]}`,
	}
	for _, body := range bodies {
		w := srv.do(http.MethodPost, "/rag/feedback", body, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Empty(t, srv.feedback.Interactions())
	assert.Empty(t, srv.feedback.Judgments())
}

func TestFeedbackAcceptsEmptyQuery(t *testing.T) {
	srv := newTestServer(t, "")

	for _, body := range []string{
		`{"interaction": {"query": "", "outcome": 0}}`,
		`{"interaction": {"outcome": -1}}`,
	} {
		w := srv.do(http.MethodPost, "/rag/feedback", body, nil)
		assert.Equal(t, http.StatusOK, w.Code, body+" "+w.Body.String())
	}
	interactions := srv.feedback.Interactions()
	require.Len(t, interactions, 2)
	assert.Equal(t, "", interactions[0].Query)
}

func TestAdminGate(t *testing.T) {
	srv := newTestServer(t, hashAdminKey(t))

	w := srv.do(http.MethodPost, "/rag/reindex", `{}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	wrong := http.Header{}
	wrong.Set(AdminKeyHeader, "nope")
	w = srv.do(http.MethodPost, "/rag/reindex", `{}`, wrong)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	disabled := newTestServer(t, "")
	w = disabled.do(http.MethodPost, "/rag/reindex", `{}`, adminHeader())
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "ADMIN_DISABLED", decode(t, w)["error"].(map[string]any)["code"])
}

func TestUploadReindexQuery(t *testing.T) {
	srv := newTestServer(t, hashAdminKey(t))

	w := srv.upload(t, "closures.yaml", closuresSnapshot)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	uploaded := decode(t, w)
	assert.Equal(t, "snapshots/closures.yaml", uploaded["key"])
	assert.EqualValues(t, 1, uploaded["counts"].(map[string]any)["pages"])

	w = srv.do(http.MethodGet, "/rag/content", "", adminHeader())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"snapshots/closures.yaml"}, decode(t, w)["snapshots"])

	w = srv.do(http.MethodPost, "/rag/reindex", `{"collections": ["course_content"]}`, adminHeader())
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	accepted := decode(t, w)
	assert.Equal(t, true, accepted["ok"])
	jobID := accepted["jobId"].(string)

	require.Eventually(t, func() bool {
		w := srv.do(http.MethodGet, "/rag/reindex/"+jobID, "", adminHeader())
		var resp struct {
			Job struct {
				Status string `json:"status"`
			} `json:"job"`
		}
		if w.Code != http.StatusOK || json.Unmarshal(w.Body.Bytes(), &resp) != nil {
			return false
		}
		return resp.Job.Status == "completed"
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, srv.chunks.Len())

	w = srv.do(http.MethodPost, "/rag/query", `{"query": "closures", "topK": 1}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	results := decode(t, w)["results"].([]any)
	require.Len(t, results, 1)

	top := results[0].(map[string]any)
	assert.Equal(t, "course_content:page_unit:p-closures:u_0:0", top["chunk_uid"])
	meta := top["meta"].(map[string]any)
	assert.Equal(t, true, meta["has_image"])
	assert.Equal(t, []any{"js"}, meta["code_languages"])
	assert.Equal(t, "imagine-js", meta["domain"])

	w = srv.do(http.MethodPost, "/rag/query", `{"query": "closures", "filters": {"has_image": false}}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["results"])
}

func TestUploadRejectsBadSnapshots(t *testing.T) {
	srv := newTestServer(t, hashAdminKey(t))

	w := srv.upload(t, "notes.txt", closuresSnapshot)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_FILE_TYPE", decode(t, w)["error"].(map[string]any)["code"])

	w = srv.upload(t, "broken.yaml", "pages: [this is: not: valid")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_SNAPSHOT", decode(t, w)["error"].(map[string]any)["code"])
}

func TestReindexRequests(t *testing.T) {
	srv := newTestServer(t, hashAdminKey(t))

	w := srv.do(http.MethodPost, "/rag/reindex", `{"collections": ["bogus"]}`, adminHeader())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(http.MethodGet, "/rag/reindex/not-a-uuid", "", adminHeader())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(http.MethodGet, "/rag/reindex/"+uuid.New().String(), "", adminHeader())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func waitForJob(t *testing.T, srv *testServer, jobID, status string) map[string]any {
	t.Helper()
	var job map[string]any
	require.Eventually(t, func() bool {
		w := srv.do(http.MethodGet, "/rag/reindex/"+jobID, "", adminHeader())
		var resp struct {
			Job map[string]any `json:"job"`
		}
		if w.Code != http.StatusOK || json.Unmarshal(w.Body.Bytes(), &resp) != nil {
			return false
		}
		job = resp.Job
		return job["status"] == status
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestReindexStopsWithServerContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := newTestServerWithContext(t, ctx, hashAdminKey(t))

	w := srv.upload(t, "closures.yaml", closuresSnapshot)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	cancel()
	w = srv.do(http.MethodPost, "/rag/reindex", `{"collections": ["course_content"]}`, adminHeader())
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	jobID := decode(t, w)["jobId"].(string)

	job := waitForJob(t, srv, jobID, "failed")
	assert.Contains(t, job["error_message"], "context canceled")
	assert.Zero(t, srv.chunks.Len())
}

func TestDeleteSnapshot(t *testing.T) {
	srv := newTestServer(t, hashAdminKey(t))

	w := srv.upload(t, "closures.yaml", closuresSnapshot)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = srv.do(http.MethodPost, "/rag/reindex", `{"collections": ["course_content"]}`, adminHeader())
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	job := waitForJob(t, srv, decode(t, w)["jobId"].(string), "completed")
	assert.EqualValues(t, 1, job["chunks"])

	w = srv.do(http.MethodDelete, "/rag/content/closures.yaml", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = srv.do(http.MethodDelete, "/rag/content/closures.txt", "", adminHeader())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(http.MethodDelete, "/rag/content/closures.yaml", "", adminHeader())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "snapshots/closures.yaml", decode(t, w)["key"])

	w = srv.do(http.MethodGet, "/rag/content", "", adminHeader())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["snapshots"])

	w = srv.do(http.MethodDelete, "/rag/content/closures.yaml", "", adminHeader())
	assert.Equal(t, http.StatusNotFound, w.Code)

	// The loader no longer serves the deleted snapshot
	w = srv.do(http.MethodPost, "/rag/reindex", `{"collections": ["course_content"]}`, adminHeader())
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	job = waitForJob(t, srv, decode(t, w)["jobId"].(string), "completed")
	assert.EqualValues(t, 0, job["chunks"])
}
