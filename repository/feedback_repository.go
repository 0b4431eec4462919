package repository

import (
	"context"
	"fmt"

	"imagine-rag-backend/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FeedbackWriter inserts feedback rows inside an open transaction
type FeedbackWriter interface {
	InsertInteraction(ctx context.Context, interaction *models.Interaction) error
	InsertJudgment(ctx context.Context, judgment *models.Judgment) error
}

// FeedbackRepository handles database operations for interactions and judgments
type FeedbackRepository struct {
	db *pgxpool.Pool
}

// NewFeedbackRepository creates a new feedback repository
func NewFeedbackRepository(db *pgxpool.Pool) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// WithTx runs fn in a read-committed transaction. Any error from fn rolls
// back every row it wrote.
func (r *FeedbackRepository) WithTx(ctx context.Context, fn func(FeedbackWriter) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&feedbackTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit feedback: %w", err)
	}
	return nil
}

type feedbackTx struct {
	tx pgx.Tx
}

func (f *feedbackTx) InsertInteraction(ctx context.Context, i *models.Interaction) error {
	query := `
		INSERT INTO rag_interactions (
			id, user_id, query, answer, retrieved_chunk_ids, selected_chunk_ids,
			domain, outcome, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	err := f.tx.QueryRow(ctx, query,
		i.ID,
		i.UserID,
		i.Query,
		i.Answer,
		i.RetrievedChunkIDs,
		i.SelectedChunkIDs,
		i.Domain,
		int(i.Outcome),
		i.Notes,
	).Scan(&i.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}
	return nil
}

func (f *feedbackTx) InsertJudgment(ctx context.Context, j *models.Judgment) error {
	query := `
		INSERT INTO rag_judgments (
			id, interaction_id, positive_chunk_id, negative_chunk_id, label, reason
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := f.tx.QueryRow(ctx, query,
		j.ID,
		j.InteractionID,
		j.PositiveChunkID,
		j.NegativeChunkID,
		j.Label,
		j.Reason,
	).Scan(&j.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert judgment: %w", err)
	}
	return nil
}
