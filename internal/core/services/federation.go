package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/theblitlabs/sentinel/internal/core/config"
	"github.com/theblitlabs/sentinel/internal/core/models"
	"github.com/theblitlabs/sentinel/internal/core/ports"
	"github.com/theblitlabs/sentinel/internal/gradients"
	"github.com/theblitlabs/sentinel/internal/privacy"
	"github.com/theblitlabs/sentinel/internal/telemetry"
	"github.com/theblitlabs/sentinel/pkg/logger"
)

// FederationService owns the session and round lifecycle: it registers
// sessions, appends contributions to the ledger, gates aggregation on quorum,
// and commits round outcomes atomically. Collaborator adapters (chain anchor,
// checkpoint store, reputation webhook) are optional and best effort.
type FederationService struct {
	sessionRepo ports.SessionRepository
	roundRepo   ports.RoundRepository
	contribRepo ports.ContributionRepository
	engine      *AggregationEngine
	cfg         config.FederationConfig

	// aggSem caps concurrent aggregations so the CPU-bound passes cannot
	// starve the request handlers.
	aggSem *semaphore.Weighted

	anchor              ports.ResultAnchor
	anchorContributions bool
	checkpoints         ports.CheckpointStore
	notifier            ports.RoundNotifier
}

func NewFederationService(
	sessionRepo ports.SessionRepository,
	roundRepo ports.RoundRepository,
	contribRepo ports.ContributionRepository,
	engine *AggregationEngine,
	cfg config.FederationConfig,
) *FederationService {
	maxConcurrent := cfg.MaxConcurrentAggregations
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &FederationService{
		sessionRepo: sessionRepo,
		roundRepo:   roundRepo,
		contribRepo: contribRepo,
		engine:      engine,
		cfg:         cfg,
		aggSem:      semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

func (s *FederationService) SetResultAnchor(anchor ports.ResultAnchor, anchorContributions bool) {
	s.anchor = anchor
	s.anchorContributions = anchorContributions
}

func (s *FederationService) SetCheckpointStore(store ports.CheckpointStore) {
	s.checkpoints = store
}

func (s *FederationService) SetRoundNotifier(notifier ports.RoundNotifier) {
	s.notifier = notifier
}

type CreateSessionRequest struct {
	Name              string          `json:"name"`
	CreatorAddress    string          `json:"creator_address"`
	Architecture      json.RawMessage `json:"architecture"`
	TotalRounds       int             `json:"total_rounds"`
	MinContributors   int             `json:"min_contributors"`
	AccuracyThreshold float64         `json:"accuracy_threshold"`
	// DataKey optionally supplies the base64 session key; one is minted
	// when absent.
	DataKey string `json:"data_key,omitempty"`
}

// CreateSession registers a training task, mints its data key, opens round 1,
// and activates the session. The returned session carries the data key so the
// creator can hand it to contributors; it is never readable again.
func (s *FederationService) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	log := logger.WithComponent("federation_service")

	modelHash, err := hashArchitecture(req.Architecture)
	if err != nil {
		return nil, err
	}

	totalRounds := req.TotalRounds
	if totalRounds == 0 {
		totalRounds = s.cfg.MaxRounds
	}
	if totalRounds > s.cfg.MaxRounds {
		return nil, fmt.Errorf("%w: total rounds %d exceeds limit %d", ErrInvalidRequest, totalRounds, s.cfg.MaxRounds)
	}
	minContributors := req.MinContributors
	if minContributors == 0 {
		minContributors = s.cfg.MinContributors
	}
	threshold := req.AccuracyThreshold
	if threshold == 0 {
		threshold = s.cfg.DefaultAccuracyThreshold
	}

	dataKey, err := resolveDataKey(req.DataKey)
	if err != nil {
		return nil, err
	}

	session := models.NewSession(req.Name, modelHash, req.CreatorAddress, dataKey, totalRounds, minContributors, threshold)
	if err := session.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	round := models.NewRound(session.ID, 1)
	if err := s.roundRepo.Create(ctx, round); err != nil {
		return nil, fmt.Errorf("open first round: %w", err)
	}
	if err := s.sessionRepo.UpdateStatus(ctx, session.ID, models.SessionStatusActive); err != nil {
		return nil, fmt.Errorf("activate session: %w", err)
	}
	session.Status = models.SessionStatusActive
	telemetry.AddActiveSessions(1)

	log.Info().
		Str("session_id", session.ID.String()).
		Str("creator", session.CreatorAddress).
		Int("total_rounds", session.TotalRounds).
		Int("min_contributors", session.MinContributors).
		Msg("Session registered")

	return session, nil
}

type SubmitContributionRequest struct {
	ContributorAddress string  `json:"contributor_address"`
	RoundNumber        int     `json:"round_number,omitempty"`
	GradientHash       string  `json:"gradient_hash"`
	Commitment         string  `json:"commitment"`
	Nonce              string  `json:"nonce"`
	EncryptedPayload   string  `json:"encrypted_payload"`
	Accuracy           float64 `json:"accuracy"`
	PrivacyScore       float64 `json:"privacy_score"`
}

// SubmitContribution appends one sealed update to the round ledger. A zero
// round number targets the session's open round. When chain anchoring for
// contributions is on, a successful receipt advances the entry to verified;
// anchor failures leave it submitted and both states count toward quorum.
func (s *FederationService) SubmitContribution(ctx context.Context, sessionID uuid.UUID, req SubmitContributionRequest) (*models.Contribution, error) {
	log := logger.WithComponent("federation_service")

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusActive {
		return nil, fmt.Errorf("%w: session is %s", ErrSessionNotActive, session.Status)
	}

	roundNumber := req.RoundNumber
	if roundNumber == 0 {
		roundNumber = session.CurrentRound + 1
	}
	round, err := s.roundRepo.GetByNumber(ctx, sessionID, roundNumber)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, fmt.Errorf("%w: round %d", ErrRoundNotFound, roundNumber)
		}
		return nil, err
	}
	if round.Status == models.RoundStatusCompleted {
		return nil, fmt.Errorf("%w: round %d", ErrRoundClosed, roundNumber)
	}

	contribution := models.NewContribution(round.ID, sessionID, req.ContributorAddress)
	contribution.GradientHash = req.GradientHash
	contribution.Commitment = req.Commitment
	contribution.Nonce = req.Nonce
	contribution.EncryptedPayload = req.EncryptedPayload
	contribution.Accuracy = req.Accuracy
	contribution.PrivacyScore = req.PrivacyScore
	if err := contribution.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if err := s.contribRepo.Create(ctx, contribution); err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s in round %d", ErrDuplicateContribution, req.ContributorAddress, roundNumber)
		}
		return nil, fmt.Errorf("store contribution: %w", err)
	}
	telemetry.RecordContribution(string(contribution.Status))

	if s.anchor != nil && s.anchorContributions {
		if txHash, err := s.anchor.AnchorContribution(ctx, contribution); err != nil {
			log.Warn().Err(err).
				Str("contribution_id", contribution.ID.String()).
				Msg("Contribution receipt anchoring failed, entry stays submitted")
		} else if err := s.contribRepo.UpdateStatus(ctx, contribution.ID, models.ContributionStatusVerified); err != nil {
			log.Warn().Err(err).
				Str("contribution_id", contribution.ID.String()).
				Msg("Failed to mark contribution verified")
		} else {
			contribution.Status = models.ContributionStatusVerified
			log.Debug().
				Str("contribution_id", contribution.ID.String()).
				Str("tx_hash", txHash).
				Msg("Contribution receipt anchored")
		}
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Int("round", roundNumber).
		Str("contributor", contribution.ContributorAddress).
		Str("status", string(contribution.Status)).
		Msg("Contribution recorded")

	return contribution, nil
}

// AggregateRound runs one aggregation attempt for the given round.
//
// Order matters: the quorum check fails before any claim or crypto work; the
// claim (pending -> aggregating) serializes attempts; the snapshot freezes the
// candidate set; the engine runs under the concurrency cap; and the outcome
// commits in one transaction. Any failure or cancellation before that commit
// releases the claim and leaves every row as it was.
func (s *FederationService) AggregateRound(ctx context.Context, sessionID uuid.UUID, roundNumber int) (*models.AggregationResult, error) {
	log := logger.WithComponent("federation_service")
	started := time.Now()

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	round, err := s.roundRepo.GetByNumber(ctx, sessionID, roundNumber)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, fmt.Errorf("%w: round %d", ErrRoundNotFound, roundNumber)
		}
		return nil, err
	}

	count, err := s.contribRepo.CountActive(ctx, round.ID)
	if err != nil {
		return nil, fmt.Errorf("count contributions: %w", err)
	}
	if count < session.MinContributors {
		return nil, fmt.Errorf("%w: need %d, got %d", ErrQuorumNotMet, session.MinContributors, count)
	}

	if err := s.roundRepo.ClaimForAggregation(ctx, round.ID); err != nil {
		if errors.Is(err, ports.ErrStateConflict) {
			return nil, fmt.Errorf("%w: round %d is %s", ErrRoundNotPending, roundNumber, round.Status)
		}
		return nil, fmt.Errorf("claim round: %w", err)
	}
	claimed := true
	defer func() {
		if claimed {
			s.releaseClaim(round.ID)
		}
	}()

	snapshot, err := s.contribRepo.SnapshotActive(ctx, round.ID)
	if err != nil {
		return nil, fmt.Errorf("snapshot contributions: %w", err)
	}

	dataKey, err := base64.StdEncoding.DecodeString(session.DataKey)
	if err != nil {
		return nil, fmt.Errorf("decode session data key: %w", err)
	}

	if err := s.aggSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	result, err := s.engine.Aggregate(ctx, snapshot, dataKey, session.AccuracyThreshold)
	s.aggSem.Release(1)
	if err != nil {
		if errors.Is(err, ErrInsufficientContributions) {
			telemetry.RecordAggregation("insufficient", time.Since(started))
			log.Warn().
				Str("session_id", sessionID.String()).
				Int("round", roundNumber).
				Int("candidates", len(snapshot)).
				Msg("Every candidate excluded, round stays retriable")
		}
		return nil, err
	}
	for _, o := range result.Outcomes {
		if o.Status == models.OutcomeExcluded {
			telemetry.RecordExclusion(string(o.Reason))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	round.Status = models.RoundStatusCompleted
	round.AggregatedModelHash = result.ModelHash
	round.Accuracy = result.Accuracy
	round.ContributorCount = result.ContributorCount
	round.UpdatedAt = now
	round.CompletedAt = &now

	commit := ports.AggregationCommit{
		Round:        round,
		SessionID:    session.ID,
		CurrentRound: round.RoundNumber,
	}
	for i, o := range result.Outcomes {
		switch o.Status {
		case models.OutcomeAccepted:
			commit.Accepted = append(commit.Accepted, o.ContributionID)
		case models.OutcomeExcluded:
			if commit.Excluded == nil {
				commit.Excluded = make(map[uuid.UUID]models.ExclusionReason)
			}
			commit.Excluded[o.ContributionID] = result.Outcomes[i].Reason
		}
	}
	if round.RoundNumber >= session.TotalRounds {
		commit.SessionStatus = models.SessionStatusCompleted
	} else {
		commit.SessionStatus = models.SessionStatusActive
		commit.NextRound = models.NewRound(session.ID, round.RoundNumber+1)
	}

	if err := s.roundRepo.FinalizeAggregation(ctx, commit); err != nil {
		telemetry.RecordAggregation("failed", time.Since(started))
		return nil, fmt.Errorf("finalize round: %w", err)
	}
	claimed = false

	session.CurrentRound = commit.CurrentRound
	session.Status = commit.SessionStatus
	telemetry.RecordAggregation("completed", time.Since(started))
	if session.Status == models.SessionStatusCompleted {
		telemetry.AddActiveSessions(-1)
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Int("round", roundNumber).
		Str("model_hash", result.ModelHash).
		Float64("accuracy", result.Accuracy).
		Int("contributors", result.ContributorCount).
		Str("session_status", string(session.Status)).
		Msg("Round aggregated")

	s.afterAggregation(session, round, result)

	return result, nil
}

// releaseClaim reverts aggregating -> pending with a background context so a
// cancelled request still restores the round.
func (s *FederationService) releaseClaim(roundID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.roundRepo.ReleaseAggregationClaim(ctx, roundID); err != nil {
		logger.WithComponent("federation_service").Error().Err(err).
			Str("round_id", roundID.String()).
			Msg("Failed to release aggregation claim")
	}
}

// afterAggregation runs the best-effort collaborator calls once the round is
// durably committed: checkpoint archival, chain anchoring, reputation webhook.
// Failures are logged and never unwind the completed round.
func (s *FederationService) afterAggregation(session *models.Session, round *models.Round, result *models.AggregationResult) {
	log := logger.WithComponent("federation_service")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.checkpoints != nil {
		if blob, err := gradients.Encode(result.AggregatedGradients); err != nil {
			log.Warn().Err(err).Msg("Checkpoint encoding failed")
		} else if cid, err := s.checkpoints.StoreCheckpoint(ctx, result.ModelHash, blob); err != nil {
			log.Warn().Err(err).Msg("Checkpoint upload failed")
		} else if err := s.roundRepo.SetCheckpoint(ctx, round.ID, cid); err != nil {
			log.Warn().Err(err).Str("cid", cid).Msg("Failed to record checkpoint CID")
		} else {
			round.CheckpointCID = cid
			log.Info().Str("cid", cid).Str("round_id", round.ID.String()).Msg("Round checkpoint archived")
		}
	}

	if s.anchor != nil {
		if txHash, err := s.anchor.AnchorRoundResult(ctx, round); err != nil {
			log.Warn().Err(err).Str("round_id", round.ID.String()).Msg("Round result anchoring failed")
		} else if err := s.roundRepo.SetResultTx(ctx, round.ID, txHash); err != nil {
			log.Warn().Err(err).Str("tx_hash", txHash).Msg("Failed to record anchor transaction")
		} else {
			round.ResultTx = txHash
			log.Info().Str("tx_hash", txHash).Str("round_id", round.ID.String()).Msg("Round result anchored")
		}
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyRoundCompleted(ctx, session, round, result); err != nil {
			log.Warn().Err(err).Str("round_id", round.ID.String()).Msg("Round completion notification failed")
		}
	}
}

// GetSession returns a session by id.
func (s *FederationService) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return s.getSession(ctx, id)
}

func (s *FederationService) ListSessions(ctx context.Context, limit, offset int) ([]models.Session, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.sessionRepo.List(ctx, limit, offset)
}

func (s *FederationService) GetRound(ctx context.Context, sessionID uuid.UUID, roundNumber int) (*models.Round, error) {
	round, err := s.roundRepo.GetByNumber(ctx, sessionID, roundNumber)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, fmt.Errorf("%w: round %d", ErrRoundNotFound, roundNumber)
		}
		return nil, err
	}
	return round, nil
}

func (s *FederationService) ListRounds(ctx context.Context, sessionID uuid.UUID) ([]models.Round, error) {
	if _, err := s.getSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.roundRepo.ListBySession(ctx, sessionID)
}

// ListContributions returns the audit trail for a session, optionally scoped
// to one round number (0 means all rounds).
func (s *FederationService) ListContributions(ctx context.Context, sessionID uuid.UUID, roundNumber int) ([]models.Contribution, error) {
	if _, err := s.getSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if roundNumber > 0 {
		round, err := s.roundRepo.GetByNumber(ctx, sessionID, roundNumber)
		if err != nil {
			if errors.Is(err, ports.ErrNotFound) {
				return nil, fmt.Errorf("%w: round %d", ErrRoundNotFound, roundNumber)
			}
			return nil, err
		}
		return s.contribRepo.ListByRound(ctx, round.ID)
	}
	return s.contribRepo.ListBySession(ctx, sessionID)
}

// MarkContributionRewarded is the ledger surface for the external reward
// collaborator. Only aggregated contributions can be rewarded.
func (s *FederationService) MarkContributionRewarded(ctx context.Context, id uuid.UUID) (*models.Contribution, error) {
	contribution, err := s.contribRepo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, ErrContributionNotFound
		}
		return nil, err
	}
	if contribution.Status != models.ContributionStatusAggregated {
		return nil, fmt.Errorf("%w: status is %s", ErrNotRewardable, contribution.Status)
	}
	if err := s.contribRepo.UpdateStatus(ctx, id, models.ContributionStatusRewarded); err != nil {
		return nil, err
	}
	contribution.Status = models.ContributionStatusRewarded
	return contribution, nil
}

func (s *FederationService) getSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	session, err := s.sessionRepo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, err
	}
	return session, nil
}

// hashArchitecture fingerprints the model architecture with a key-sorted JSON
// encoding so equivalent descriptions hash identically.
func hashArchitecture(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: architecture is required", ErrInvalidRequest)
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("%w: architecture must be valid JSON: %v", ErrInvalidRequest, err)
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonicalize architecture: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func resolveDataKey(encoded string) (string, error) {
	if encoded == "" {
		key, err := privacy.NewDataKey()
		if err != nil {
			return "", err
		}
		return base64.StdEncoding.EncodeToString(key), nil
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: data key must be base64: %v", ErrInvalidRequest, err)
	}
	if len(key) != privacy.DataKeySize {
		return "", fmt.Errorf("%w: data key must be %d bytes, got %d", ErrInvalidRequest, privacy.DataKeySize, len(key))
	}
	return encoded, nil
}
