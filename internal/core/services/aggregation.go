package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/theblitlabs/sentinel/internal/core/models"
	"github.com/theblitlabs/sentinel/internal/gradients"
	"github.com/theblitlabs/sentinel/internal/privacy"
	"github.com/theblitlabs/sentinel/pkg/logger"
)

// AggregationEngine combines the surviving contributions of one round into a
// single weighted model update. It is pure computation over an immutable
// snapshot: it decrypts, replays commitments, filters, and averages, but never
// touches storage. Persisting the outcome is the coordinator's job.
type AggregationEngine struct {
	workers int
}

func NewAggregationEngine(workers int) *AggregationEngine {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &AggregationEngine{workers: workers}
}

// evaluation is the per-contribution verdict from the parallel check pass.
// Tensors are only set when the contribution is still a candidate.
type evaluation struct {
	excluded bool
	reason   models.ExclusionReason
	tensors  gradients.TensorSet
}

// Aggregate runs the full verification and averaging pass over the snapshot.
//
// Per contribution, independently: decrypt with the session data key, replay
// the commitment against the revealed payload and stored nonce, apply the
// accuracy threshold, and check tensor shapes against the first surviving
// contribution. Failures exclude that contribution with a reason and the pass
// continues. Gradients are combined with normalized accuracy*privacy_score
// weights; the result accuracy is the unweighted mean of accepted accuracies.
func (e *AggregationEngine) Aggregate(ctx context.Context, snapshot []models.Contribution, dataKey []byte, threshold float64) (*models.AggregationResult, error) {
	log := logger.WithComponent("aggregation_engine")

	if len(snapshot) == 0 {
		return nil, ErrInsufficientContributions
	}

	evals := make([]evaluation, len(snapshot))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range snapshot {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			evals[i] = e.evaluate(&snapshot[i], dataKey, threshold)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Shape compatibility is decided against the first surviving contribution
	// in snapshot order, so it runs after the parallel pass.
	outcomes := make([]models.ContributionOutcome, len(snapshot))
	var (
		base        gradients.TensorSet
		accepted    []int
		rawWeights  []float64
		totalWeight float64
	)
	for i := range snapshot {
		c := &snapshot[i]
		outcomes[i] = models.ContributionOutcome{
			ContributionID:     c.ID,
			ContributorAddress: c.ContributorAddress,
		}

		ev := &evals[i]
		if !ev.excluded && base != nil && !gradients.SameShape(base, ev.tensors) {
			ev.excluded = true
			ev.reason = models.ExclusionReasonShapeMismatch
		}

		if ev.excluded {
			outcomes[i].Status = models.OutcomeExcluded
			outcomes[i].Reason = ev.reason
			log.Warn().
				Str("contribution_id", c.ID.String()).
				Str("contributor", c.ContributorAddress).
				Str("reason", string(ev.reason)).
				Msg("Contribution excluded from aggregation")
			continue
		}

		if base == nil {
			base = ev.tensors
		}
		outcomes[i].Status = models.OutcomeAccepted
		w := c.Accuracy * c.PrivacyScore
		accepted = append(accepted, i)
		rawWeights = append(rawWeights, w)
		totalWeight += w
	}

	if len(accepted) == 0 {
		return nil, fmt.Errorf("%w: %d candidates, 0 accepted", ErrInsufficientContributions, len(snapshot))
	}

	// Normalize so the included weights always sum to 1. A zero total can only
	// happen with zero-accuracy contributions under a zero threshold; fall back
	// to equal weights rather than dividing by zero.
	weights := make([]float64, len(accepted))
	for i, w := range rawWeights {
		if totalWeight > 0 {
			weights[i] = w / totalWeight
		} else {
			weights[i] = 1.0 / float64(len(accepted))
		}
	}

	sets := make([]gradients.TensorSet, len(accepted))
	var accuracySum float64
	for i, idx := range accepted {
		sets[i] = evals[idx].tensors
		accuracySum += snapshot[idx].Accuracy
		outcomes[idx].Weight = weights[i]
	}

	combined, err := gradients.WeightedSum(sets, weights)
	if err != nil {
		return nil, fmt.Errorf("combine accepted contributions: %w", err)
	}
	modelHash, err := gradients.Hash(combined)
	if err != nil {
		return nil, fmt.Errorf("hash aggregated model: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &models.AggregationResult{
		ModelHash:           modelHash,
		Accuracy:            accuracySum / float64(len(accepted)),
		ContributorCount:    len(accepted),
		AggregatedGradients: combined,
		Outcomes:            outcomes,
	}

	log.Info().
		Int("candidates", len(snapshot)).
		Int("accepted", len(accepted)).
		Str("model_hash", modelHash).
		Float64("accuracy", result.Accuracy).
		Msg("Aggregation pass completed")

	return result, nil
}

// evaluate runs the independent checks for one contribution: decrypt,
// commitment replay, accuracy threshold, payload decode. Shape checks happen
// later in snapshot order.
func (e *AggregationEngine) evaluate(c *models.Contribution, dataKey []byte, threshold float64) evaluation {
	sealed, err := base64.StdEncoding.DecodeString(c.EncryptedPayload)
	if err != nil {
		return evaluation{excluded: true, reason: models.ExclusionReasonDecryptFailed}
	}

	payload, err := privacy.Open(dataKey, sealed)
	if err != nil {
		return evaluation{excluded: true, reason: models.ExclusionReasonDecryptFailed}
	}

	nonce, err := base64.StdEncoding.DecodeString(c.Nonce)
	if err != nil || !privacy.VerifyCommitment(payload, c.Commitment, nonce) {
		return evaluation{excluded: true, reason: models.ExclusionReasonCommitmentMismatch}
	}

	if c.Accuracy < threshold {
		return evaluation{excluded: true, reason: models.ExclusionReasonBelowThreshold}
	}

	tensors, err := gradients.Decode(payload)
	if err != nil {
		return evaluation{excluded: true, reason: models.ExclusionReasonShapeMismatch}
	}

	return evaluation{tensors: tensors}
}
