package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/theblitlabs/sentinel/internal/core/models"
	"github.com/theblitlabs/sentinel/internal/core/ports"
)

type MockRoundRepository struct {
	mock.Mock
}

func (m *MockRoundRepository) Create(ctx context.Context, round *models.Round) error {
	args := m.Called(ctx, round)
	return args.Error(0)
}

func (m *MockRoundRepository) Get(ctx context.Context, id uuid.UUID) (*models.Round, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Round), args.Error(1)
}

func (m *MockRoundRepository) GetByNumber(ctx context.Context, sessionID uuid.UUID, roundNumber int) (*models.Round, error) {
	args := m.Called(ctx, sessionID, roundNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Round), args.Error(1)
}

func (m *MockRoundRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Round, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Round), args.Error(1)
}

func (m *MockRoundRepository) ClaimForAggregation(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRoundRepository) ReleaseAggregationClaim(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRoundRepository) FinalizeAggregation(ctx context.Context, commit ports.AggregationCommit) error {
	args := m.Called(ctx, commit)
	return args.Error(0)
}

func (m *MockRoundRepository) SetCheckpoint(ctx context.Context, id uuid.UUID, cid string) error {
	args := m.Called(ctx, id, cid)
	return args.Error(0)
}

func (m *MockRoundRepository) SetResultTx(ctx context.Context, id uuid.UUID, txHash string) error {
	args := m.Called(ctx, id, txHash)
	return args.Error(0)
}
