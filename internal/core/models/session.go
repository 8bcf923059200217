package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// Session is one federated training task spanning multiple aggregation rounds.
// DataKey is the base64 AES-256 key sealing every contribution payload in this
// session. It is returned to the creator exactly once and never serialized in
// read responses.
type Session struct {
	ID                uuid.UUID     `json:"id"`
	Name              string        `json:"name"`
	ModelHash         string        `json:"model_hash"`
	CreatorAddress    string        `json:"creator_address"`
	DataKey           string        `json:"-"`
	TotalRounds       int           `json:"total_rounds"`
	CurrentRound      int           `json:"current_round"`
	MinContributors   int           `json:"min_contributors"`
	AccuracyThreshold float64       `json:"accuracy_threshold"`
	Status            SessionStatus `json:"status"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
}

func NewSession(name, modelHash, creatorAddress, dataKey string, totalRounds, minContributors int, accuracyThreshold float64) *Session {
	return &Session{
		ID:                uuid.New(),
		Name:              name,
		ModelHash:         modelHash,
		CreatorAddress:    creatorAddress,
		DataKey:           dataKey,
		TotalRounds:       totalRounds,
		CurrentRound:      0,
		MinContributors:   minContributors,
		AccuracyThreshold: accuracyThreshold,
		Status:            SessionStatusPending,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
}

func (s *Session) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("session name is required")
	}
	if s.CreatorAddress == "" {
		return fmt.Errorf("creator address is required")
	}
	if s.TotalRounds <= 0 {
		return fmt.Errorf("total rounds must be positive, got %d", s.TotalRounds)
	}
	if s.MinContributors <= 0 {
		return fmt.Errorf("min contributors must be positive, got %d", s.MinContributors)
	}
	if s.AccuracyThreshold < 0 || s.AccuracyThreshold > 1 {
		return fmt.Errorf("accuracy threshold must be in [0, 1], got %v", s.AccuracyThreshold)
	}
	return nil
}
