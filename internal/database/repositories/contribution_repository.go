package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/theblitlabs/sentinel/internal/core/models"
	"github.com/theblitlabs/sentinel/internal/core/ports"
)

type ContributionRepository struct {
	db *sqlx.DB
}

func NewContributionRepository(db *sqlx.DB) *ContributionRepository {
	return &ContributionRepository{db: db}
}

func (r *ContributionRepository) Create(ctx context.Context, contribution *models.Contribution) error {
	params := map[string]interface{}{
		"id":                  contribution.ID,
		"round_id":            contribution.RoundID,
		"session_id":          contribution.SessionID,
		"contributor_address": contribution.ContributorAddress,
		"gradient_hash":       contribution.GradientHash,
		"commitment":          contribution.Commitment,
		"nonce":               contribution.Nonce,
		"encrypted_payload":   contribution.EncryptedPayload,
		"accuracy":            contribution.Accuracy,
		"privacy_score":       contribution.PrivacyScore,
		"status":              contribution.Status,
		"created_at":          contribution.CreatedAt,
		"updated_at":          contribution.UpdatedAt,
	}

	query := `
		INSERT INTO contributions (
			id, round_id, session_id, contributor_address,
			gradient_hash, commitment, nonce, encrypted_payload,
			accuracy, privacy_score, status, created_at, updated_at
		) VALUES (
			:id, :round_id, :session_id, :contributor_address,
			:gradient_hash, :commitment, :nonce, :encrypted_payload,
			:accuracy, :privacy_score, :status, :created_at, :updated_at
		)
	`

	_, err := r.db.NamedExecContext(ctx, query, params)
	if isUniqueViolation(err) {
		return ports.ErrDuplicate
	}
	return err
}

type dbContribution struct {
	ID                 uuid.UUID                 `db:"id"`
	RoundID            uuid.UUID                 `db:"round_id"`
	SessionID          uuid.UUID                 `db:"session_id"`
	ContributorAddress string                    `db:"contributor_address"`
	GradientHash       string                    `db:"gradient_hash"`
	Commitment         string                    `db:"commitment"`
	Nonce              string                    `db:"nonce"`
	EncryptedPayload   string                    `db:"encrypted_payload"`
	Accuracy           float64                   `db:"accuracy"`
	PrivacyScore       float64                   `db:"privacy_score"`
	Status             models.ContributionStatus `db:"status"`
	ExclusionReason    models.ExclusionReason    `db:"exclusion_reason"`
	CreatedAt          time.Time                 `db:"created_at"`
	UpdatedAt          time.Time                 `db:"updated_at"`
}

func (d *dbContribution) toModel() *models.Contribution {
	return &models.Contribution{
		ID:                 d.ID,
		RoundID:            d.RoundID,
		SessionID:          d.SessionID,
		ContributorAddress: d.ContributorAddress,
		GradientHash:       d.GradientHash,
		Commitment:         d.Commitment,
		Nonce:              d.Nonce,
		EncryptedPayload:   d.EncryptedPayload,
		Accuracy:           d.Accuracy,
		PrivacyScore:       d.PrivacyScore,
		Status:             d.Status,
		ExclusionReason:    d.ExclusionReason,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func (r *ContributionRepository) Get(ctx context.Context, id uuid.UUID) (*models.Contribution, error) {
	var row dbContribution
	query := `SELECT * FROM contributions WHERE id = $1`

	err := r.db.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	return row.toModel(), nil
}

func (r *ContributionRepository) CountActive(ctx context.Context, roundID uuid.UUID) (int, error) {
	query, args, err := sqlx.In(
		`SELECT COUNT(*) FROM contributions WHERE round_id = ? AND status IN (?)`,
		roundID, models.ActiveStatuses(),
	)
	if err != nil {
		return 0, err
	}

	var count int
	if err := r.db.GetContext(ctx, &count, r.db.Rebind(query), args...); err != nil {
		return 0, err
	}
	return count, nil
}

// SnapshotActive reads the candidate set in one query, ordered by submission
// time so aggregation order is stable.
func (r *ContributionRepository) SnapshotActive(ctx context.Context, roundID uuid.UUID) ([]models.Contribution, error) {
	query, args, err := sqlx.In(
		`SELECT * FROM contributions WHERE round_id = ? AND status IN (?) ORDER BY created_at ASC`,
		roundID, models.ActiveStatuses(),
	)
	if err != nil {
		return nil, err
	}

	var rows []dbContribution
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	contributions := make([]models.Contribution, len(rows))
	for i := range rows {
		contributions[i] = *rows[i].toModel()
	}
	return contributions, nil
}

func (r *ContributionRepository) ListByRound(ctx context.Context, roundID uuid.UUID) ([]models.Contribution, error) {
	var rows []dbContribution
	query := `SELECT * FROM contributions WHERE round_id = $1 ORDER BY created_at ASC`

	err := r.db.SelectContext(ctx, &rows, query, roundID)
	if err != nil {
		return nil, err
	}

	contributions := make([]models.Contribution, len(rows))
	for i := range rows {
		contributions[i] = *rows[i].toModel()
	}
	return contributions, nil
}

func (r *ContributionRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Contribution, error) {
	var rows []dbContribution
	query := `SELECT * FROM contributions WHERE session_id = $1 ORDER BY created_at ASC`

	err := r.db.SelectContext(ctx, &rows, query, sessionID)
	if err != nil {
		return nil, err
	}

	contributions := make([]models.Contribution, len(rows))
	for i := range rows {
		contributions[i] = *rows[i].toModel()
	}
	return contributions, nil
}

func (r *ContributionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ContributionStatus) error {
	query := `UPDATE contributions SET status = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
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
