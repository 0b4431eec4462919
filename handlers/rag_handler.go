package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"imagine-rag-backend/logger"
	"imagine-rag-backend/models"
	"imagine-rag-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RAGHandler handles HTTP requests for retrieval, feedback and reindexing
type RAGHandler struct {
	ctx       context.Context
	retrieval *service.RetrievalService
	feedback  *service.FeedbackService
	index     *service.IndexService
	log       *logger.Logger
}

// NewRAGHandler creates a new RAG handler. Background reindex runs are
// bound to ctx and stop when it is cancelled.
func NewRAGHandler(
	ctx context.Context,
	retrieval *service.RetrievalService,
	feedback *service.FeedbackService,
	index *service.IndexService,
	log *logger.Logger,
) *RAGHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &RAGHandler{
		ctx:       ctx,
		retrieval: retrieval,
		feedback:  feedback,
		index:     index,
		log:       log,
	}
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"ok": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

type queryBody struct {
	Query       string               `json:"query" binding:"required"`
	TopK        *int                 `json:"topK"`
	Collections []models.Collection  `json:"collections"`
	Filters     models.SearchFilters `json:"filters"`
	Intent      string               `json:"intent"`
}

// Query handles POST /rag/query
func (h *RAGHandler) Query(c *gin.Context) {
	var body queryBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	req := service.QueryRequest{
		Query:       body.Query,
		Collections: body.Collections,
		Filters:     body.Filters,
		Intent:      body.Intent,
	}
	if body.TopK != nil {
		if *body.TopK < 1 {
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "topK must be between 1 and 50")
			return
		}
		req.TopK = *body.TopK
	}

	result, err := h.retrieval.Query(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidQuery):
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		case errors.Is(err, service.ErrEmbeddingFailed):
			respondError(c, http.StatusInternalServerError, "EMBEDDING_FAILED", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "RETRIEVAL_FAILED", err.Error())
		}
		return
	}

	results := result.Results
	if results == nil {
		results = []models.ScoredChunk{}
	}
	resp := gin.H{"ok": true, "results": results}
	if result.Intent != "" {
		resp["intent"] = result.Intent
	}
	c.JSON(http.StatusOK, resp)
}

type interactionBody struct {
	UserID            *string  `json:"user_id"`
	Query             string   `json:"query"`
	Answer            string   `json:"answer"`
	RetrievedChunkIDs []string `json:"retrieved_chunk_ids"`
	SelectedChunkIDs  []string `json:"selected_chunk_ids"`
	Domain            *string  `json:"domain"`
	Outcome           *int     `json:"outcome" binding:"required"`
	Notes             *string  `json:"notes"`
}

type judgmentBody struct {
	PositiveChunkID *string `json:"positive_chunk_id"`
	NegativeChunkID *string `json:"negative_chunk_id"`
	Label           int     `json:"label"`
	Reason          *string `json:"reason"`
}

type feedbackBody struct {
	Interaction *interactionBody `json:"interaction" binding:"required"`
	Judgments   []judgmentBody   `json:"judgments"`
}

// Feedback handles POST /rag/feedback
func (h *RAGHandler) Feedback(c *gin.Context) {
	var body feedbackBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	in := body.Interaction
	req := service.RecordFeedbackRequest{
		Interaction: service.InteractionInput{
			UserID:            in.UserID,
			Query:             in.Query,
			Answer:            in.Answer,
			RetrievedChunkIDs: in.RetrievedChunkIDs,
			SelectedChunkIDs:  in.SelectedChunkIDs,
			Domain:            in.Domain,
			Outcome:           models.Outcome(*in.Outcome),
			Notes:             in.Notes,
		},
	}
	for _, j := range body.Judgments {
		req.Judgments = append(req.Judgments, service.JudgmentInput{
			PositiveChunkID: j.PositiveChunkID,
			NegativeChunkID: j.NegativeChunkID,
			Label:           j.Label,
			Reason:          j.Reason,
		})
	}

	result, err := h.feedback.Record(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidFeedback) {
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "FEEDBACK_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":            true,
		"interactionId": result.InteractionID,
	})
}

type reindexBody struct {
	Collections []models.Collection `json:"collections"`
}

// Reindex handles POST /rag/reindex
func (h *RAGHandler) Reindex(c *gin.Context) {
	var body reindexBody
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.index.StartReindex(c.Request.Context(), service.StartReindexRequest{
		Collections: body.Collections,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidReindex):
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		case errors.Is(err, service.ErrReindexInProgress):
			respondError(c, http.StatusConflict, "REINDEX_IN_PROGRESS", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "REINDEX_FAILED", err.Error())
		}
		return
	}

	// Request context ends with the response; the run lives as long as the server.
	job := result.Job
	go func() {
		if err := h.index.ProcessReindex(h.ctx, job); err != nil {
			h.log.Error("Reindex job failed", "job_id", job.ID, "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"ok":    true,
		"jobId": job.ID,
	})
}

// ReindexStatus handles GET /rag/reindex/:id
func (h *RAGHandler) ReindexStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "Invalid job ID format")
		return
	}

	job, err := h.index.GetReindexJob(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			respondError(c, http.StatusNotFound, "NOT_FOUND", "Reindex job not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "RETRIEVAL_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":  true,
		"job": job,
	})
}
