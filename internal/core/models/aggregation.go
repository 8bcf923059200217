package models

import (
	"github.com/google/uuid"

	"github.com/theblitlabs/sentinel/internal/gradients"
)

type OutcomeStatus string

const (
	OutcomeAccepted OutcomeStatus = "accepted"
	OutcomeExcluded OutcomeStatus = "excluded"
)

// ContributionOutcome records how one contribution fared during aggregation.
// Weight is the normalized aggregation weight and is only set for accepted
// contributions.
type ContributionOutcome struct {
	ContributionID     uuid.UUID       `json:"contribution_id"`
	ContributorAddress string          `json:"contributor_address"`
	Status             OutcomeStatus   `json:"status"`
	Reason             ExclusionReason `json:"reason,omitempty"`
	Weight             float64         `json:"weight,omitempty"`
}

// AggregationResult is the transient output of one aggregation pass. The
// gradients are handed to the caller for checkpointing and never persisted
// with the round.
type AggregationResult struct {
	ModelHash           string                `json:"model_hash"`
	Accuracy            float64               `json:"accuracy"`
	ContributorCount    int                   `json:"contributor_count"`
	AggregatedGradients gradients.TensorSet   `json:"-"`
	Outcomes            []ContributionOutcome `json:"outcomes"`
}

// Accepted returns the outcomes that made it into the aggregate.
func (r *AggregationResult) Accepted() []ContributionOutcome {
	out := make([]ContributionOutcome, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Status == OutcomeAccepted {
			out = append(out, o)
		}
	}
	return out
}
