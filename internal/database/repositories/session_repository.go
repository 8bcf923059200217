package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/theblitlabs/sentinel/internal/core/models"
	"github.com/theblitlabs/sentinel/internal/core/ports"
)

// uniqueViolation is the Postgres error code for duplicate keys.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

type SessionRepository struct {
	db *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	params := map[string]interface{}{
		"id":                 session.ID,
		"name":               session.Name,
		"model_hash":         session.ModelHash,
		"creator_address":    session.CreatorAddress,
		"data_key":           session.DataKey,
		"total_rounds":       session.TotalRounds,
		"current_round":      session.CurrentRound,
		"min_contributors":   session.MinContributors,
		"accuracy_threshold": session.AccuracyThreshold,
		"status":             session.Status,
		"created_at":         session.CreatedAt,
		"updated_at":         session.UpdatedAt,
	}

	query := `
		INSERT INTO sessions (
			id, name, model_hash, creator_address, data_key,
			total_rounds, current_round, min_contributors, accuracy_threshold,
			status, created_at, updated_at
		) VALUES (
			:id, :name, :model_hash, :creator_address, :data_key,
			:total_rounds, :current_round, :min_contributors, :accuracy_threshold,
			:status, :created_at, :updated_at
		)
	`

	_, err := r.db.NamedExecContext(ctx, query, params)
	if isUniqueViolation(err) {
		return ports.ErrDuplicate
	}
	return err
}

type dbSession struct {
	ID                uuid.UUID            `db:"id"`
	Name              string               `db:"name"`
	ModelHash         string               `db:"model_hash"`
	CreatorAddress    string               `db:"creator_address"`
	DataKey           string               `db:"data_key"`
	TotalRounds       int                  `db:"total_rounds"`
	CurrentRound      int                  `db:"current_round"`
	MinContributors   int                  `db:"min_contributors"`
	AccuracyThreshold float64              `db:"accuracy_threshold"`
	Status            models.SessionStatus `db:"status"`
	CreatedAt         time.Time            `db:"created_at"`
	UpdatedAt         time.Time            `db:"updated_at"`
	CompletedAt       *time.Time           `db:"completed_at"`
}

func (s *dbSession) toModel() *models.Session {
	return &models.Session{
		ID:                s.ID,
		Name:              s.Name,
		ModelHash:         s.ModelHash,
		CreatorAddress:    s.CreatorAddress,
		DataKey:           s.DataKey,
		TotalRounds:       s.TotalRounds,
		CurrentRound:      s.CurrentRound,
		MinContributors:   s.MinContributors,
		AccuracyThreshold: s.AccuracyThreshold,
		Status:            s.Status,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
		CompletedAt:       s.CompletedAt,
	}
}

func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var row dbSession
	query := `SELECT * FROM sessions WHERE id = $1`

	err := r.db.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}

	return row.toModel(), nil
}

func (r *SessionRepository) List(ctx context.Context, limit, offset int) ([]models.Session, error) {
	var rows []dbSession
	query := `SELECT * FROM sessions ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	err := r.db.SelectContext(ctx, &rows, query, limit, offset)
	if err != nil {
		return nil, err
	}

	sessions := make([]models.Session, len(rows))
	for i := range rows {
		sessions[i] = *rows[i].toModel()
	}
	return sessions, nil
}

func (r *SessionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.SessionStatus) error {
	query := `UPDATE sessions SET status = $1, updated_at = $2 WHERE id = $3`

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
