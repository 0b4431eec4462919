package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"imagine-rag-backend/logger"
	"imagine-rag-backend/models"
	"imagine-rag-backend/repository"

	"github.com/google/uuid"
)

var (
	ErrInvalidFeedback = errors.New("invalid feedback")
	ErrFeedbackFailed  = errors.New("failed to record feedback")
)

// FeedbackStore runs feedback writes in one transaction
type FeedbackStore interface {
	WithTx(ctx context.Context, fn func(repository.FeedbackWriter) error) error
}

// FeedbackService records interactions and their pairwise judgments
type FeedbackService struct {
	store FeedbackStore
	log   *logger.Logger
}

// FeedbackServiceOption is a functional option for FeedbackService
type FeedbackServiceOption func(*FeedbackService)

// FeedbackWithStore sets the feedback store
func FeedbackWithStore(store FeedbackStore) FeedbackServiceOption {
	return func(s *FeedbackService) {
		s.store = store
	}
}

// FeedbackWithLogger sets the logger
func FeedbackWithLogger(log *logger.Logger) FeedbackServiceOption {
	return func(s *FeedbackService) {
		s.log = log
	}
}

// NewFeedbackService creates a new feedback service
func NewFeedbackService(opts ...FeedbackServiceOption) *FeedbackService {
	s := &FeedbackService{log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InteractionInput is the interaction part of a feedback submission
type InteractionInput struct {
	UserID            *string
	Query             string
	Answer            string
	RetrievedChunkIDs []string
	SelectedChunkIDs  []string
	Domain            *string
	Outcome           models.Outcome
	Notes             *string
}

// JudgmentInput is one pairwise judgment of a feedback submission
type JudgmentInput struct {
	PositiveChunkID *string
	NegativeChunkID *string
	Label           int
	Reason          *string
}

// RecordFeedbackRequest represents a feedback submission
type RecordFeedbackRequest struct {
	Interaction InteractionInput
	Judgments   []JudgmentInput
}

// RecordFeedbackResult represents the result of recording feedback
type RecordFeedbackResult struct {
	InteractionID uuid.UUID
}

// Record persists the interaction and all judgments atomically. A failing
// judgment leaves no interaction behind.
func (s *FeedbackService) Record(ctx context.Context, req RecordFeedbackRequest) (*RecordFeedbackResult, error) {
	if s.store == nil {
		return nil, errors.New("feedback store not set")
	}
	if err := validateFeedback(req); err != nil {
		return nil, err
	}

	in := req.Interaction
	interaction := &models.Interaction{
		ID:                uuid.New(),
		UserID:            in.UserID,
		Query:             strings.TrimSpace(in.Query),
		Answer:            in.Answer,
		RetrievedChunkIDs: nonNilIDs(in.RetrievedChunkIDs),
		SelectedChunkIDs:  nonNilIDs(in.SelectedChunkIDs),
		Domain:            in.Domain,
		Outcome:           in.Outcome,
		Notes:             in.Notes,
	}

	err := s.store.WithTx(ctx, func(w repository.FeedbackWriter) error {
		if err := w.InsertInteraction(ctx, interaction); err != nil {
			return err
		}
		for _, j := range req.Judgments {
			judgment := &models.Judgment{
				ID:              uuid.New(),
				InteractionID:   interaction.ID,
				PositiveChunkID: j.PositiveChunkID,
				NegativeChunkID: j.NegativeChunkID,
				Label:           j.Label,
				Reason:          j.Reason,
			}
			if err := w.InsertJudgment(ctx, judgment); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("Feedback transaction failed", "user_id", derefString(in.UserID), "error", err)
		return nil, fmt.Errorf("%w: %v", ErrFeedbackFailed, err)
	}

	s.log.Info("Feedback recorded", "interaction_id", interaction.ID, "judgments", len(req.Judgments))
	return &RecordFeedbackResult{InteractionID: interaction.ID}, nil
}

func validateFeedback(req RecordFeedbackRequest) error {
	if !req.Interaction.Outcome.Valid() {
		return fmt.Errorf("%w: outcome must be -1, 0 or 1", ErrInvalidFeedback)
	}
	for i, j := range req.Judgments {
		if j.Label != 1 && j.Label != -1 {
			return fmt.Errorf("%w: judgment %d label must be 1 or -1", ErrInvalidFeedback, i)
		}
	}
	return nil
}

func nonNilIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
