package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/theblitlabs/sentinel/internal/core/models"
)

type MockResultAnchor struct {
	mock.Mock
}

func (m *MockResultAnchor) AnchorRoundResult(ctx context.Context, round *models.Round) (string, error) {
	args := m.Called(ctx, round)
	return args.String(0), args.Error(1)
}

func (m *MockResultAnchor) AnchorContribution(ctx context.Context, contribution *models.Contribution) (string, error) {
	args := m.Called(ctx, contribution)
	return args.String(0), args.Error(1)
}

type MockCheckpointStore struct {
	mock.Mock
}

func (m *MockCheckpointStore) StoreCheckpoint(ctx context.Context, modelHash string, payload []byte) (string, error) {
	args := m.Called(ctx, modelHash, payload)
	return args.String(0), args.Error(1)
}

type MockRoundNotifier struct {
	mock.Mock
}

func (m *MockRoundNotifier) NotifyRoundCompleted(ctx context.Context, session *models.Session, round *models.Round, result *models.AggregationResult) error {
	args := m.Called(ctx, session, round, result)
	return args.Error(0)
}
