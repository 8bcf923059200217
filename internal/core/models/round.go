package models

import (
	"time"

	"github.com/google/uuid"
)

type RoundStatus string

const (
	RoundStatusPending     RoundStatus = "pending"
	RoundStatusAggregating RoundStatus = "aggregating"
	RoundStatusCompleted   RoundStatus = "completed"
)

// Round is one aggregation cycle within a session. It transitions
// pending -> aggregating -> completed exactly once and never regresses;
// the aggregating state doubles as the per-round aggregation lock.
type Round struct {
	ID                  uuid.UUID   `json:"id"`
	SessionID           uuid.UUID   `json:"session_id"`
	RoundNumber         int         `json:"round_number"`
	Status              RoundStatus `json:"status"`
	AggregatedModelHash string      `json:"aggregated_model_hash,omitempty"`
	Accuracy            float64     `json:"accuracy"`
	ContributorCount    int         `json:"contributor_count"`
	CheckpointCID       string      `json:"checkpoint_cid,omitempty"`
	ResultTx            string      `json:"result_tx,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
	CompletedAt         *time.Time  `json:"completed_at,omitempty"`
}

func NewRound(sessionID uuid.UUID, roundNumber int) *Round {
	return &Round{
		ID:          uuid.New(),
		SessionID:   sessionID,
		RoundNumber: roundNumber,
		Status:      RoundStatusPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}
