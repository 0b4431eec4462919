package models

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the tri-state result of an answered query
type Outcome int

const (
	OutcomeNegative Outcome = -1
	OutcomeNeutral  Outcome = 0
	OutcomePositive Outcome = 1
)

// Valid reports whether o is -1, 0 or 1
func (o Outcome) Valid() bool {
	return o >= OutcomeNegative && o <= OutcomePositive
}

// Interaction is one logged query/answer/outcome event
type Interaction struct {
	ID                uuid.UUID `json:"id"`
	UserID            *string   `json:"user_id,omitempty"`
	Query             string    `json:"query"`
	Answer            string    `json:"answer"`
	RetrievedChunkIDs []string  `json:"retrieved_chunk_ids"`
	SelectedChunkIDs  []string  `json:"selected_chunk_ids"`
	Domain            *string   `json:"domain,omitempty"`
	Outcome           Outcome   `json:"outcome"`
	Notes             *string   `json:"notes,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Judgment is a pairwise relevance signal tied to an interaction.
// Chunk ids are stored as chunk_uid strings and are not checked against the corpus.
type Judgment struct {
	ID              uuid.UUID `json:"id"`
	InteractionID   uuid.UUID `json:"interaction_id"`
	PositiveChunkID *string   `json:"positive_chunk_id,omitempty"`
	NegativeChunkID *string   `json:"negative_chunk_id,omitempty"`
	Label           int       `json:"label"` // +1 or -1
	Reason          *string   `json:"reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
