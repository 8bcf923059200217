package ports

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/theblitlabs/sentinel/internal/core/models"
)

// Storage error contract shared by every repository implementation. Services
// translate these into the domain taxonomy.
var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicate     = errors.New("duplicate record")
	ErrStateConflict = errors.New("state conflict")
)

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	List(ctx context.Context, limit, offset int) ([]models.Session, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.SessionStatus) error
}

type RoundRepository interface {
	Create(ctx context.Context, round *models.Round) error
	Get(ctx context.Context, id uuid.UUID) (*models.Round, error)
	GetByNumber(ctx context.Context, sessionID uuid.UUID, roundNumber int) (*models.Round, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Round, error)
	// ClaimForAggregation flips pending -> aggregating for exactly one caller;
	// every other caller gets a state conflict.
	ClaimForAggregation(ctx context.Context, id uuid.UUID) error
	// ReleaseAggregationClaim reverts aggregating -> pending after a failed or
	// cancelled attempt.
	ReleaseAggregationClaim(ctx context.Context, id uuid.UUID) error
	// FinalizeAggregation applies the whole round outcome in one transaction.
	FinalizeAggregation(ctx context.Context, commit AggregationCommit) error
	SetCheckpoint(ctx context.Context, id uuid.UUID, cid string) error
	SetResultTx(ctx context.Context, id uuid.UUID, txHash string) error
}

// AggregationCommit carries everything FinalizeAggregation must apply
// atomically: the completed round, contribution status changes, the session
// advance, and the next round when the session continues.
type AggregationCommit struct {
	Round         *models.Round
	Accepted      []uuid.UUID
	Excluded      map[uuid.UUID]models.ExclusionReason
	SessionID     uuid.UUID
	CurrentRound  int
	SessionStatus models.SessionStatus
	NextRound     *models.Round
}

type ContributionRepository interface {
	Create(ctx context.Context, contribution *models.Contribution) error
	Get(ctx context.Context, id uuid.UUID) (*models.Contribution, error)
	// CountActive counts submitted and verified contributions for quorum.
	CountActive(ctx context.Context, roundID uuid.UUID) (int, error)
	// SnapshotActive reads the aggregation candidates in one query so an
	// in-flight aggregation never races with new submissions.
	SnapshotActive(ctx context.Context, roundID uuid.UUID) ([]models.Contribution, error)
	ListByRound(ctx context.Context, roundID uuid.UUID) ([]models.Contribution, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Contribution, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.ContributionStatus) error
}
