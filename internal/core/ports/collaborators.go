package ports

import (
	"context"

	"github.com/theblitlabs/sentinel/internal/core/models"
)

// ResultAnchor records audit digests on the settlement chain. Settlement
// correctness is the collaborator's problem; callers only persist the
// returned transaction hash.
type ResultAnchor interface {
	AnchorRoundResult(ctx context.Context, round *models.Round) (string, error)
	AnchorContribution(ctx context.Context, contribution *models.Contribution) (string, error)
}

// CheckpointStore archives the aggregated tensor blob and returns a content
// address for the round record.
type CheckpointStore interface {
	StoreCheckpoint(ctx context.Context, modelHash string, payload []byte) (string, error)
}

// RoundNotifier tells the reputation collaborator that a round completed.
type RoundNotifier interface {
	NotifyRoundCompleted(ctx context.Context, session *models.Session, round *models.Round, result *models.AggregationResult) error
}

// MetricsProvider reports process host metrics for the telemetry gauges.
type MetricsProvider interface {
	GetSystemMetrics() (memory int64, cpu float64)
}
