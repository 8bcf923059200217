package models

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type (
	ContributionStatus string
	ExclusionReason    string
)

const (
	ContributionStatusSubmitted  ContributionStatus = "submitted"
	ContributionStatusVerified   ContributionStatus = "verified"
	ContributionStatusAggregated ContributionStatus = "aggregated"
	ContributionStatusExcluded   ContributionStatus = "excluded"
	ContributionStatusRewarded   ContributionStatus = "rewarded"
)

const (
	ExclusionReasonDecryptFailed      ExclusionReason = "decrypt_failed"
	ExclusionReasonCommitmentMismatch ExclusionReason = "commitment_mismatch"
	ExclusionReasonBelowThreshold     ExclusionReason = "below_threshold"
	ExclusionReasonShapeMismatch      ExclusionReason = "shape_mismatch"
)

// Contribution is one contributor's sealed model update within a round.
// Commitment, Nonce, and EncryptedPayload are stored verbatim so the
// commit-reveal check can be replayed byte-for-byte at aggregation time.
// Accuracy and PrivacyScore are contributor-reported and untrusted; they only
// shape the aggregation weight, never any security decision.
type Contribution struct {
	ID                 uuid.UUID          `json:"id"`
	RoundID            uuid.UUID          `json:"round_id"`
	SessionID          uuid.UUID          `json:"session_id"`
	ContributorAddress string             `json:"contributor_address"`
	GradientHash       string             `json:"gradient_hash"`
	Commitment         string             `json:"commitment"`
	Nonce              string             `json:"nonce"`
	EncryptedPayload   string             `json:"encrypted_payload"`
	Accuracy           float64            `json:"accuracy"`
	PrivacyScore       float64            `json:"privacy_score"`
	Status             ContributionStatus `json:"status"`
	ExclusionReason    ExclusionReason    `json:"exclusion_reason,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func NewContribution(roundID, sessionID uuid.UUID, contributorAddress string) *Contribution {
	return &Contribution{
		ID:                 uuid.New(),
		RoundID:            roundID,
		SessionID:          sessionID,
		ContributorAddress: contributorAddress,
		Status:             ContributionStatusSubmitted,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
}

func (c *Contribution) Validate() error {
	if c.ContributorAddress == "" {
		return fmt.Errorf("contributor address is required")
	}
	if c.Commitment == "" {
		return fmt.Errorf("commitment is required")
	}
	if c.Nonce == "" {
		return fmt.Errorf("nonce is required")
	}
	if _, err := base64.StdEncoding.DecodeString(c.Nonce); err != nil {
		return fmt.Errorf("nonce must be base64: %w", err)
	}
	if c.EncryptedPayload == "" {
		return fmt.Errorf("encrypted payload is required")
	}
	if _, err := base64.StdEncoding.DecodeString(c.EncryptedPayload); err != nil {
		return fmt.Errorf("encrypted payload must be base64: %w", err)
	}
	if c.Accuracy < 0 || c.Accuracy > 1 {
		return fmt.Errorf("accuracy must be in [0, 1], got %v", c.Accuracy)
	}
	if c.PrivacyScore <= 0 || c.PrivacyScore > 1 {
		return fmt.Errorf("privacy score must be in (0, 1], got %v", c.PrivacyScore)
	}
	return nil
}

// ActiveStatuses are the contribution states that count toward quorum and are
// candidates for aggregation.
func ActiveStatuses() []ContributionStatus {
	return []ContributionStatus{ContributionStatusSubmitted, ContributionStatusVerified}
}
