package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/theblitlabs/sentinel/internal/core/models"
	"github.com/theblitlabs/sentinel/internal/core/ports"
)

type RoundRepository struct {
	db *sqlx.DB
}

func NewRoundRepository(db *sqlx.DB) *RoundRepository {
	return &RoundRepository{db: db}
}

func (r *RoundRepository) Create(ctx context.Context, round *models.Round) error {
	params := map[string]interface{}{
		"id":           round.ID,
		"session_id":   round.SessionID,
		"round_number": round.RoundNumber,
		"status":       round.Status,
		"created_at":   round.CreatedAt,
		"updated_at":   round.UpdatedAt,
	}

	query := `
		INSERT INTO rounds (
			id, session_id, round_number, status, created_at, updated_at
		) VALUES (
			:id, :session_id, :round_number, :status, :created_at, :updated_at
		)
	`

	_, err := r.db.NamedExecContext(ctx, query, params)
	if isUniqueViolation(err) {
		return ports.ErrDuplicate
	}
	return err
}

type dbRound struct {
	ID                  uuid.UUID          `db:"id"`
	SessionID           uuid.UUID          `db:"session_id"`
	RoundNumber         int                `db:"round_number"`
	Status              models.RoundStatus `db:"status"`
	AggregatedModelHash string             `db:"aggregated_model_hash"`
	Accuracy            float64            `db:"accuracy"`
	ContributorCount    int                `db:"contributor_count"`
	CheckpointCID       string             `db:"checkpoint_cid"`
	ResultTx            string             `db:"result_tx"`
	CreatedAt           time.Time          `db:"created_at"`
	UpdatedAt           time.Time          `db:"updated_at"`
	CompletedAt         *time.Time         `db:"completed_at"`
}

func (d *dbRound) toModel() *models.Round {
	return &models.Round{
		ID:                  d.ID,
		SessionID:           d.SessionID,
		RoundNumber:         d.RoundNumber,
		Status:              d.Status,
		AggregatedModelHash: d.AggregatedModelHash,
		Accuracy:            d.Accuracy,
		ContributorCount:    d.ContributorCount,
		CheckpointCID:       d.CheckpointCID,
		ResultTx:            d.ResultTx,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
		CompletedAt:         d.CompletedAt,
	}
}

func (r *RoundRepository) Get(ctx context.Context, id uuid.UUID) (*models.Round, error) {
	var row dbRound
	query := `SELECT * FROM rounds WHERE id = $1`

	err := r.db.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	return row.toModel(), nil
}

func (r *RoundRepository) GetByNumber(ctx context.Context, sessionID uuid.UUID, roundNumber int) (*models.Round, error) {
	var row dbRound
	query := `SELECT * FROM rounds WHERE session_id = $1 AND round_number = $2`

	err := r.db.GetContext(ctx, &row, query, sessionID, roundNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	return row.toModel(), nil
}

func (r *RoundRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Round, error) {
	var rows []dbRound
	query := `SELECT * FROM rounds WHERE session_id = $1 ORDER BY round_number ASC`

	err := r.db.SelectContext(ctx, &rows, query, sessionID)
	if err != nil {
		return nil, err
	}

	rounds := make([]models.Round, len(rows))
	for i := range rows {
		rounds[i] = *rows[i].toModel()
	}
	return rounds, nil
}

// ClaimForAggregation is the aggregation lock: the conditional update moves
// pending -> aggregating for exactly one caller regardless of how many race.
func (r *RoundRepository) ClaimForAggregation(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE rounds SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`

	result, err := r.db.ExecContext(ctx, query, models.RoundStatusAggregating, time.Now(), id, models.RoundStatusPending)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ports.ErrStateConflict
	}
	return nil
}

func (r *RoundRepository) ReleaseAggregationClaim(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE rounds SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`

	result, err := r.db.ExecContext(ctx, query, models.RoundStatusPending, time.Now(), id, models.RoundStatusAggregating)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ports.ErrStateConflict
	}
	return nil
}

// FinalizeAggregation applies the round completion, the contribution status
// changes, the session advance, and the next round insert in one transaction.
// Either everything lands or nothing does.
func (r *RoundRepository) FinalizeAggregation(ctx context.Context, commit ports.AggregationCommit) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE rounds SET
			status = $1,
			aggregated_model_hash = $2,
			accuracy = $3,
			contributor_count = $4,
			updated_at = $5,
			completed_at = $6
		WHERE id = $7 AND status = $8`,
		models.RoundStatusCompleted,
		commit.Round.AggregatedModelHash,
		commit.Round.Accuracy,
		commit.Round.ContributorCount,
		commit.Round.UpdatedAt,
		commit.Round.CompletedAt,
		commit.Round.ID,
		models.RoundStatusAggregating,
	)
	if err != nil {
		return fmt.Errorf("complete round: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ports.ErrStateConflict
	}

	if len(commit.Accepted) > 0 {
		query, args, err := sqlx.In(
			`UPDATE contributions SET status = ?, updated_at = ? WHERE id IN (?)`,
			models.ContributionStatusAggregated, commit.Round.UpdatedAt, commit.Accepted,
		)
		if err != nil {
			return fmt.Errorf("build accepted update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("mark contributions aggregated: %w", err)
		}
	}

	for id, reason := range commit.Excluded {
		if _, err := tx.ExecContext(ctx,
			`UPDATE contributions SET status = $1, exclusion_reason = $2, updated_at = $3 WHERE id = $4`,
			models.ContributionStatusExcluded, reason, commit.Round.UpdatedAt, id,
		); err != nil {
			return fmt.Errorf("mark contribution excluded: %w", err)
		}
	}

	if commit.SessionStatus == models.SessionStatusCompleted {
		_, err = tx.ExecContext(ctx,
			`UPDATE sessions SET current_round = $1, status = $2, updated_at = $3, completed_at = $3 WHERE id = $4`,
			commit.CurrentRound, commit.SessionStatus, commit.Round.UpdatedAt, commit.SessionID,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE sessions SET current_round = $1, status = $2, updated_at = $3 WHERE id = $4`,
			commit.CurrentRound, commit.SessionStatus, commit.Round.UpdatedAt, commit.SessionID,
		)
	}
	if err != nil {
		return fmt.Errorf("advance session: %w", err)
	}

	if commit.NextRound != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rounds (id, session_id, round_number, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			commit.NextRound.ID, commit.NextRound.SessionID, commit.NextRound.RoundNumber,
			commit.NextRound.Status, commit.NextRound.CreatedAt, commit.NextRound.UpdatedAt,
		); err != nil {
			return fmt.Errorf("open next round: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *RoundRepository) SetCheckpoint(ctx context.Context, id uuid.UUID, cid string) error {
	return r.setColumn(ctx, id, "checkpoint_cid", cid)
}

func (r *RoundRepository) SetResultTx(ctx context.Context, id uuid.UUID, txHash string) error {
	return r.setColumn(ctx, id, "result_tx", txHash)
}

func (r *RoundRepository) setColumn(ctx context.Context, id uuid.UUID, column, value string) error {
	query := fmt.Sprintf(`UPDATE rounds SET %s = $1, updated_at = $2 WHERE id = $3`, column)

	result, err := r.db.ExecContext(ctx, query, value, time.Now(), id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ports.ErrNotFound
	}
	return nil
}
