package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/theblitlabs/sentinel/internal/core/models"
)

type MockContributionRepository struct {
	mock.Mock
}

func (m *MockContributionRepository) Create(ctx context.Context, contribution *models.Contribution) error {
	args := m.Called(ctx, contribution)
	return args.Error(0)
}

func (m *MockContributionRepository) Get(ctx context.Context, id uuid.UUID) (*models.Contribution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contribution), args.Error(1)
}

func (m *MockContributionRepository) CountActive(ctx context.Context, roundID uuid.UUID) (int, error) {
	args := m.Called(ctx, roundID)
	return args.Int(0), args.Error(1)
}

func (m *MockContributionRepository) SnapshotActive(ctx context.Context, roundID uuid.UUID) ([]models.Contribution, error) {
	args := m.Called(ctx, roundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Contribution), args.Error(1)
}

func (m *MockContributionRepository) ListByRound(ctx context.Context, roundID uuid.UUID) ([]models.Contribution, error) {
	args := m.Called(ctx, roundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Contribution), args.Error(1)
}

func (m *MockContributionRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Contribution, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Contribution), args.Error(1)
}

func (m *MockContributionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ContributionStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}
