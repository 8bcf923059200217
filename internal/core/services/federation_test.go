package services_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/theblitlabs/sentinel/internal/core/config"
	"github.com/theblitlabs/sentinel/internal/core/models"
	"github.com/theblitlabs/sentinel/internal/core/ports"
	"github.com/theblitlabs/sentinel/internal/core/services"
	"github.com/theblitlabs/sentinel/internal/mocks"
)

func testFederationConfig() config.FederationConfig {
	return config.FederationConfig{
		MinContributors:           3,
		MaxRounds:                 10,
		DefaultAccuracyThreshold:  0.5,
		AggregationWorkers:        2,
		MaxConcurrentAggregations: 2,
	}
}

func newTestService() (*services.FederationService, *mocks.MockSessionRepository, *mocks.MockRoundRepository, *mocks.MockContributionRepository) {
	sessionRepo := new(mocks.MockSessionRepository)
	roundRepo := new(mocks.MockRoundRepository)
	contribRepo := new(mocks.MockContributionRepository)
	engine := services.NewAggregationEngine(2)
	svc := services.NewFederationService(sessionRepo, roundRepo, contribRepo, engine, testFederationConfig())
	return svc, sessionRepo, roundRepo, contribRepo
}

func activeSession(key []byte, totalRounds int) *models.Session {
	session := models.NewSession(
		"mnist-run",
		"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		"0xcreator",
		base64.StdEncoding.EncodeToString(key),
		totalRounds, 3, 0.8,
	)
	session.Status = models.SessionStatusActive
	return session
}

func validSubmitRequest(address string) services.SubmitContributionRequest {
	return services.SubmitContributionRequest{
		ContributorAddress: address,
		GradientHash:       "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		Commitment:         "2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae",
		Nonce:              base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32)),
		EncryptedPayload:   base64.StdEncoding.EncodeToString([]byte("sealed-bytes")),
		Accuracy:           0.9,
		PrivacyScore:       1.0,
	}
}

func TestCreateSession(t *testing.T) {
	svc, sessionRepo, roundRepo, _ := newTestService()
	ctx := context.Background()

	sessionRepo.On("Create", ctx, mock.AnythingOfType("*models.Session")).Return(nil)
	var openedRound *models.Round
	roundRepo.On("Create", ctx, mock.AnythingOfType("*models.Round")).
		Run(func(args mock.Arguments) {
			openedRound = args.Get(1).(*models.Round)
		}).
		Return(nil)
	sessionRepo.On("UpdateStatus", ctx, mock.AnythingOfType("uuid.UUID"), models.SessionStatusActive).Return(nil)

	session, err := svc.CreateSession(ctx, services.CreateSessionRequest{
		Name:           "mnist-run",
		CreatorAddress: "0xcreator",
		Architecture:   json.RawMessage(`{"layers":[{"type":"dense","units":128}]}`),
		TotalRounds:    5,
	})
	require.NoError(t, err)

	assert.Equal(t, models.SessionStatusActive, session.Status)
	assert.Equal(t, 5, session.TotalRounds)
	assert.Equal(t, 3, session.MinContributors)
	assert.InDelta(t, 0.5, session.AccuracyThreshold, 1e-9)
	assert.Len(t, session.ModelHash, 64)
	assert.Equal(t, 0, session.CurrentRound)

	key, err := base64.StdEncoding.DecodeString(session.DataKey)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	require.NotNil(t, openedRound)
	assert.Equal(t, 1, openedRound.RoundNumber)
	assert.Equal(t, session.ID, openedRound.SessionID)

	sessionRepo.AssertExpectations(t)
	roundRepo.AssertExpectations(t)
}

func TestCreateSessionValidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		req  services.CreateSessionRequest
	}{
		{
			name: "missing architecture",
			req: services.CreateSessionRequest{
				Name:           "run",
				CreatorAddress: "0xcreator",
			},
		},
		{
			name: "architecture not JSON",
			req: services.CreateSessionRequest{
				Name:           "run",
				CreatorAddress: "0xcreator",
				Architecture:   json.RawMessage(`{not json`),
			},
		},
		{
			name: "rounds exceed limit",
			req: services.CreateSessionRequest{
				Name:           "run",
				CreatorAddress: "0xcreator",
				Architecture:   json.RawMessage(`{"layers":[]}`),
				TotalRounds:    11,
			},
		},
		{
			name: "data key not base64",
			req: services.CreateSessionRequest{
				Name:           "run",
				CreatorAddress: "0xcreator",
				Architecture:   json.RawMessage(`{"layers":[]}`),
				DataKey:        "not-base64!!!",
			},
		},
		{
			name: "data key wrong size",
			req: services.CreateSessionRequest{
				Name:           "run",
				CreatorAddress: "0xcreator",
				Architecture:   json.RawMessage(`{"layers":[]}`),
				DataKey:        base64.StdEncoding.EncodeToString([]byte("short")),
			},
		},
		{
			name: "missing name",
			req: services.CreateSessionRequest{
				CreatorAddress: "0xcreator",
				Architecture:   json.RawMessage(`{"layers":[]}`),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _, _ := newTestService()
			session, err := svc.CreateSession(ctx, tt.req)
			assert.Nil(t, session)
			assert.ErrorIs(t, err, services.ErrInvalidRequest)
		})
	}
}

func TestCreateSessionArchitectureHashIgnoresKeyOrder(t *testing.T) {
	svc, sessionRepo, roundRepo, _ := newTestService()
	ctx := context.Background()

	sessionRepo.On("Create", ctx, mock.AnythingOfType("*models.Session")).Return(nil)
	roundRepo.On("Create", ctx, mock.AnythingOfType("*models.Round")).Return(nil)
	sessionRepo.On("UpdateStatus", ctx, mock.AnythingOfType("uuid.UUID"), models.SessionStatusActive).Return(nil)

	first, err := svc.CreateSession(ctx, services.CreateSessionRequest{
		Name:           "run-a",
		CreatorAddress: "0xcreator",
		Architecture:   json.RawMessage(`{"type":"dense","units":128}`),
	})
	require.NoError(t, err)

	second, err := svc.CreateSession(ctx, services.CreateSessionRequest{
		Name:           "run-b",
		CreatorAddress: "0xcreator",
		Architecture:   json.RawMessage(`{"units":128,"type":"dense"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, first.ModelHash, second.ModelHash)
}

func TestSubmitContribution(t *testing.T) {
	svc, sessionRepo, roundRepo, contribRepo := newTestService()
	ctx := context.Background()

	key := mustDataKey(t)
	session := activeSession(key, 3)
	round := models.NewRound(session.ID, 1)

	sessionRepo.On("Get", ctx, session.ID).Return(session, nil)
	roundRepo.On("GetByNumber", ctx, session.ID, 1).Return(round, nil)
	contribRepo.On("Create", ctx, mock.AnythingOfType("*models.Contribution")).Return(nil)

	contribution, err := svc.SubmitContribution(ctx, session.ID, validSubmitRequest("0xaaa"))
	require.NoError(t, err)

	assert.Equal(t, models.ContributionStatusSubmitted, contribution.Status)
	assert.Equal(t, round.ID, contribution.RoundID)
	assert.Equal(t, session.ID, contribution.SessionID)
	assert.Equal(t, "0xaaa", contribution.ContributorAddress)

	contribRepo.AssertExpectations(t)
}

func TestSubmitContributionTargetsOpenRound(t *testing.T) {
	svc, sessionRepo, roundRepo, contribRepo := newTestService()
	ctx := context.Background()

	key := mustDataKey(t)
	session := activeSession(key, 5)
	session.CurrentRound = 2
	round := models.NewRound(session.ID, 3)

	sessionRepo.On("Get", ctx, session.ID).Return(session, nil)
	roundRepo.On("GetByNumber", ctx, session.ID, 3).Return(round, nil)
	contribRepo.On("Create", ctx, mock.AnythingOfType("*models.Contribution")).Return(nil)

	contribution, err := svc.SubmitContribution(ctx, session.ID, validSubmitRequest("0xaaa"))
	require.NoError(t, err)
	assert.Equal(t, round.ID, contribution.RoundID)

	roundRepo.AssertExpectations(t)
}

func TestSubmitContributionSessionNotActive(t *testing.T) {
	svc, sessionRepo, roundRepo, _ := newTestService()
	ctx := context.Background()

	key := mustDataKey(t)
	session := activeSession(key, 3)
	session.Status = models.SessionStatusCompleted

	sessionRepo.On("Get", ctx, session.ID).Return(session, nil)

	contribution, err := svc.SubmitContribution(ctx, session.ID, validSubmitRequest("0xaaa"))
	assert.Nil(t, contribution)
	assert.ErrorIs(t, err, services.ErrSessionNotActive)
	roundRepo.AssertNotCalled(t, "GetByNumber", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitContributionRoundClosed(t *testing.T) {
	svc, sessionRepo, roundRepo, contribRepo := newTestService()
	ctx := context.Background()

	key := mustDataKey(t)
	session := activeSession(key, 3)
	round := models.NewRound(session.ID, 1)
	round.Status = models.RoundStatusCompleted

	sessionRepo.On("Get", ctx, session.ID).Return(session, nil)
	roundRepo.On("GetByNumber", ctx, session.ID, 1).Return(round, nil)

	contribution, err := svc.SubmitContribution(ctx, session.ID, validSubmitRequest("0xaaa"))
	assert.Nil(t, contribution)
	assert.ErrorIs(t, err, services.ErrRoundClosed)
	contribRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSubmitContributionDuplicate(t *testing.T) {
	svc, sessionRepo, roundRepo, contribRepo := newTestService()
	ctx := context.Background()

	key := mustDataKey(t)
	session := activeSession(key, 3)
	round := models.NewRound(session.ID, 1)

	sessionRepo.On("Get", ctx, session.ID).Return(session, nil)
	roundRepo.On("GetByNumber", ctx, session.ID, 1).Return(round, nil)
	contribRepo.On("Create", ctx, mock.AnythingOfType("*models.Contribution")).Return(ports.ErrDuplicate)

	contribution, err := svc.SubmitContribution(ctx, session.ID, validSubmitRequest("0xaaa"))
	assert.Nil(t, contribution)
	assert.ErrorIs(t, err, services.ErrDuplicateContribution)
}

func TestSubmitContributionUnknownSession(t *testing.T) {
	svc, sessionRepo, _, _ := newTestService()
	ctx := context.Background()

	sessionID := uuid.New()
	sessionRepo.On("Get", ctx, sessionID).Return(nil, ports.ErrNotFound)

	contribution, err := svc.SubmitContribution(ctx, sessionID, validSubmitRequest("0xaaa"))
	assert.Nil(t, contribution)
	assert.ErrorIs(t, err, services.ErrSessionNotFound)
}

func TestSubmitContributionAnchorsReceipt(t *testing.T) {
	svc, sessionRepo, roundRepo, contribRepo := newTestService()
	anchor := new(mocks.MockResultAnchor)
	svc.SetResultAnchor(anchor, true)
	ctx := context.Background()

	key := mustDataKey(t)
	session := activeSession(key, 3)
	round := models.NewRound(session.ID, 1)

	sessionRepo.On("Get", ctx, session.ID).Return(session, nil)
	roundRepo.On("GetByNumber", ctx, session.ID, 1).Return(round, nil)
	contribRepo.On("Create", ctx, mock.AnythingOfType("*models.Contribution")).Return(nil)
	anchor.On("AnchorContribution", ctx, mock.AnythingOfType("*models.Contribution")).Return("0xreceipt", nil)
	contribRepo.On("UpdateStatus", ctx, mock.AnythingOfType("uuid.UUID"), models.ContributionStatusVerified).Return(nil)

	contribution, err := svc.SubmitContribution(ctx, session.ID, validSubmitRequest("0xaaa"))
	require.NoError(t, err)
	assert.Equal(t, models.ContributionStatusVerified, contribution.Status)

	anchor.AssertExpectations(t)
	contribRepo.AssertExpectations(t)
}

func TestSubmitContributionAnchorFailureKeepsSubmitted(t *testing.T) {
	svc, sessionRepo, roundRepo, contribRepo := newTestService()
	anchor := new(mocks.MockResultAnchor)
	svc.SetResultAnchor(anchor, true)
	ctx := context.Background()

	key := mustDataKey(t)
	session := activeSession(key, 3)
	round := models.NewRound(session.ID, 1)

	sessionRepo.On("Get", ctx, session.ID).Return(session, nil)
	roundRepo.On("GetByNumber", ctx, session.ID, 1).Return(round, nil)
	contribRepo.On("Create", ctx, mock.AnythingOfType("*models.Contribution")).Return(nil)
	anchor.On("AnchorContribution", ctx, mock.AnythingOfType("*models.Contribution")).Return("", errors.New("rpc down"))

	contribution, err := svc.SubmitContribution(ctx, session.ID, validSubmitRequest("0xaaa"))
	require.NoError(t, err)
	assert.Equal(t, models.ContributionStatusSubmitted, contribution.Status)
	contribRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestAggregateRoundQuorumNotMet(t *testing.T) {
	svc, sessionRepo, roundRepo, contribRepo := newTestService()
	ctx := context.Background()

	key := mustDataKey(t)
	session := activeSession(key, 3)
	round := models.NewRound(session.ID, 1)

	sessionRepo.On("Get", ctx, session.ID).Return(session, nil)
	roundRepo.On("GetByNumber", ctx, session.ID, 1).Return(round, nil)
	contribRepo.On("CountActive", ctx, round.ID).Return(2, nil)

	result, err := svc.AggregateRound(ctx, session.ID, 1)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, services.ErrQuorumNotMet)

	// Below quorum nothing is claimed, decrypted, or verified.
	roundRepo.AssertNotCalled(t, "ClaimForAggregation", mock.Anything, mock.Anything)
	contribRepo.AssertNotCalled(t, "SnapshotActive", mock.Anything, mock.Anything)
}

func TestAggregateRoundConcurrentClaim(t *testing.T) {
	svc, sessionRepo, roundRepo, contribRepo := newTestService()
	ctx := context.Background()

	key := mustDataKey(t)
	session := activeSession(key, 3)
	round := models.NewRound(session.ID, 1)

	sessionRepo.On("Get", ctx, session.ID).Return(session, nil)
	roundRepo.On("GetByNumber", ctx, session.ID, 1).Return(round, nil)
	contribRepo.On("CountActive", ctx, round.ID).Return(3, nil)
	roundRepo.On("ClaimForAggregation", ctx, round.ID).Return(ports.ErrStateConflict)

	result, err := svc.AggregateRound(ctx, session.ID, 1)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, services.ErrRoundNotPending)

	contribRepo.AssertNotCalled(t, "SnapshotActive", mock.Anything, mock.Anything)
	roundRepo.AssertNotCalled(t, "ReleaseAggregationClaim", mock.Anything, mock.Anything)
}

func TestAggregateRoundCompletesSession(t *testing.T) {
	svc, sessionRepo, roundRepo, contribRepo := newTestService()
	ctx := context.Background()

	key := mustDataKey(t)
	session := activeSession(key, 1)
	round := models.NewRound(session.ID, 1)

	snapshot := []models.Contribution{
		sealedContribution(t, key, "0xaaa", layerSet(1, 2), 0.90, 1.0),
		sealedContribution(t, key, "0xbbb", layerSet(4, 5), 0.85, 1.0),
		sealedContribution(t, key, "0xccc", layerSet(7, 8), 0.95, 1.0),
	}

	sessionRepo.On("Get", ctx, session.ID).Return(session, nil)
	roundRepo.On("GetByNumber", ctx, session.ID, 1).Return(round, nil)
	contribRepo.On("CountActive", ctx, round.ID).Return(3, nil)
	roundRepo.On("ClaimForAggregation", ctx, round.ID).Return(nil)
	contribRepo.On("SnapshotActive", ctx, round.ID).Return(snapshot, nil)

	var commit ports.AggregationCommit
	roundRepo.On("FinalizeAggregation", ctx, mock.AnythingOfType("ports.AggregationCommit")).
		Run(func(args mock.Arguments) {
			commit = args.Get(1).(ports.AggregationCommit)
		}).
		Return(nil)

	result, err := svc.AggregateRound(ctx, session.ID, 1)
	require.NoError(t, err)

	assert.Equal(t, 3, result.ContributorCount)
	assert.InDelta(t, 0.90, result.Accuracy, 1e-9)

	assert.Equal(t, models.RoundStatusCompleted, commit.Round.Status)
	assert.Equal(t, result.ModelHash, commit.Round.AggregatedModelHash)
	require.NotNil(t, commit.Round.CompletedAt)
	assert.Len(t, commit.Accepted, 3)
	assert.Empty(t, commit.Excluded)
	assert.Equal(t, 1, commit.CurrentRound)
	assert.Equal(t, models.SessionStatusCompleted, commit.SessionStatus)
	assert.Nil(t, commit.NextRound)

	assert.Equal(t, models.SessionStatusCompleted, session.Status)
	assert.Equal(t, 1, session.CurrentRound)

	roundRepo.AssertNotCalled(t, "ReleaseAggregationClaim", mock.Anything, mock.Anything)
}

func TestAggregateRoundOpensNextRound(t *testing.T) {
	svc, sessionRepo, roundRepo, contribRepo := newTestService()
	ctx := context.Background()

	key := mustDataKey(t)
	session := activeSession(key, 3)
	round := models.NewRound(session.ID, 1)

	snapshot := []models.Contribution{
		sealedContribution(t, key, "0xaaa", layerSet(1, 2), 0.90, 1.0),
		sealedContribution(t, key, "0xbbb", layerSet(4, 5), 0.85, 1.0),
		sealedContribution(t, key, "0xccc", layerSet(7, 8), 0.95, 1.0),
	}

	sessionRepo.On("Get", ctx, session.ID).Return(session, nil)
	roundRepo.On("GetByNumber", ctx, session.ID, 1).Return(round, nil)
	contribRepo.On("CountActive", ctx, round.ID).Return(3, nil)
	roundRepo.On("ClaimForAggregation", ctx, round.ID).Return(nil)
	contribRepo.On("SnapshotActive", ctx, round.ID).Return(snapshot, nil)

	var commit ports.AggregationCommit
	roundRepo.On("FinalizeAggregation", ctx, mock.AnythingOfType("ports.AggregationCommit")).
		Run(func(args mock.Arguments) {
			commit = args.Get(1).(ports.AggregationCommit)
		}).
		Return(nil)

	_, err := svc.AggregateRound(ctx, session.ID, 1)
	require.NoError(t, err)

	assert.Equal(t, models.SessionStatusActive, commit.SessionStatus)
	require.NotNil(t, commit.NextRound)
	assert.Equal(t, 2, commit.NextRound.RoundNumber)
	assert.Equal(t, session.ID, commit.NextRound.SessionID)
	assert.Equal(t, models.SessionStatusActive, session.Status)
	assert.Equal(t, 1, session.CurrentRound)
}

func TestAggregateRoundAllExcludedReleasesClaim(t *testing.T) {
	svc, sessionRepo, roundRepo, contribRepo := newTestService()
	ctx := context.Background()

	key := mustDataKey(t)
	session := activeSession(key, 3)
	round := models.NewRound(session.ID, 1)

	snapshot := []models.Contribution{
		sealedContribution(t, key, "0xaaa", layerSet(1, 2), 0.10, 1.0),
		sealedContribution(t, key, "0xbbb", layerSet(4, 5), 0.20, 1.0),
		sealedContribution(t, key, "0xccc", layerSet(7, 8), 0.30, 1.0),
	}

	sessionRepo.On("Get", ctx, session.ID).Return(session, nil)
	roundRepo.On("GetByNumber", ctx, session.ID, 1).Return(round, nil)
	contribRepo.On("CountActive", ctx, round.ID).Return(3, nil)
	roundRepo.On("ClaimForAggregation", ctx, round.ID).Return(nil)
	contribRepo.On("SnapshotActive", ctx, round.ID).Return(snapshot, nil)
	roundRepo.On("ReleaseAggregationClaim", mock.Anything, round.ID).Return(nil)

	result, err := svc.AggregateRound(ctx, session.ID, 1)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, services.ErrInsufficientContributions)

	roundRepo.AssertCalled(t, "ReleaseAggregationClaim", mock.Anything, round.ID)
	roundRepo.AssertNotCalled(t, "FinalizeAggregation", mock.Anything, mock.Anything)
}

func TestAggregateRoundFinalizeFailureReleasesClaim(t *testing.T) {
	svc, sessionRepo, roundRepo, contribRepo := newTestService()
	ctx := context.Background()

	key := mustDataKey(t)
	session := activeSession(key, 3)
	round := models.NewRound(session.ID, 1)

	snapshot := []models.Contribution{
		sealedContribution(t, key, "0xaaa", layerSet(1, 2), 0.90, 1.0),
		sealedContribution(t, key, "0xbbb", layerSet(4, 5), 0.85, 1.0),
		sealedContribution(t, key, "0xccc", layerSet(7, 8), 0.95, 1.0),
	}

	sessionRepo.On("Get", ctx, session.ID).Return(session, nil)
	roundRepo.On("GetByNumber", ctx, session.ID, 1).Return(round, nil)
	contribRepo.On("CountActive", ctx, round.ID).Return(3, nil)
	roundRepo.On("ClaimForAggregation", ctx, round.ID).Return(nil)
	contribRepo.On("SnapshotActive", ctx, round.ID).Return(snapshot, nil)
	roundRepo.On("FinalizeAggregation", ctx, mock.AnythingOfType("ports.AggregationCommit")).Return(errors.New("db down"))
	roundRepo.On("ReleaseAggregationClaim", mock.Anything, round.ID).Return(nil)

	result, err := svc.AggregateRound(ctx, session.ID, 1)
	assert.Nil(t, result)
	assert.Error(t, err)

	roundRepo.AssertCalled(t, "ReleaseAggregationClaim", mock.Anything, round.ID)
}

func TestAggregateRoundRunsCollaborators(t *testing.T) {
	svc, sessionRepo, roundRepo, contribRepo := newTestService()
	anchor := new(mocks.MockResultAnchor)
	checkpoints := new(mocks.MockCheckpointStore)
	notifier := new(mocks.MockRoundNotifier)
	svc.SetResultAnchor(anchor, false)
	svc.SetCheckpointStore(checkpoints)
	svc.SetRoundNotifier(notifier)
	ctx := context.Background()

	key := mustDataKey(t)
	session := activeSession(key, 1)
	round := models.NewRound(session.ID, 1)

	snapshot := []models.Contribution{
		sealedContribution(t, key, "0xaaa", layerSet(1, 2), 0.90, 1.0),
		sealedContribution(t, key, "0xbbb", layerSet(4, 5), 0.85, 1.0),
		sealedContribution(t, key, "0xccc", layerSet(7, 8), 0.95, 1.0),
	}

	sessionRepo.On("Get", ctx, session.ID).Return(session, nil)
	roundRepo.On("GetByNumber", ctx, session.ID, 1).Return(round, nil)
	contribRepo.On("CountActive", ctx, round.ID).Return(3, nil)
	roundRepo.On("ClaimForAggregation", ctx, round.ID).Return(nil)
	contribRepo.On("SnapshotActive", ctx, round.ID).Return(snapshot, nil)
	roundRepo.On("FinalizeAggregation", ctx, mock.AnythingOfType("ports.AggregationCommit")).Return(nil)

	checkpoints.On("StoreCheckpoint", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("[]uint8")).Return("QmCheckpoint", nil)
	roundRepo.On("SetCheckpoint", mock.Anything, round.ID, "QmCheckpoint").Return(nil)
	anchor.On("AnchorRoundResult", mock.Anything, round).Return("0xanchor", nil)
	roundRepo.On("SetResultTx", mock.Anything, round.ID, "0xanchor").Return(nil)
	notifier.On("NotifyRoundCompleted", mock.Anything, session, round, mock.AnythingOfType("*models.AggregationResult")).Return(nil)

	_, err := svc.AggregateRound(ctx, session.ID, 1)
	require.NoError(t, err)

	assert.Equal(t, "QmCheckpoint", round.CheckpointCID)
	assert.Equal(t, "0xanchor", round.ResultTx)

	checkpoints.AssertExpectations(t)
	anchor.AssertExpectations(t)
	notifier.AssertExpectations(t)
	roundRepo.AssertExpectations(t)
}

func TestMarkContributionRewarded(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		status  models.ContributionStatus
		found   bool
		wantErr error
	}{
		{name: "aggregated becomes rewarded", status: models.ContributionStatusAggregated, found: true},
		{name: "submitted is not rewardable", status: models.ContributionStatusSubmitted, found: true, wantErr: services.ErrNotRewardable},
		{name: "excluded is not rewardable", status: models.ContributionStatusExcluded, found: true, wantErr: services.ErrNotRewardable},
		{name: "unknown contribution", found: false, wantErr: services.ErrContributionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _, contribRepo := newTestService()

			key := mustDataKey(t)
			contribution := sealedContribution(t, key, "0xaaa", layerSet(1), 0.9, 1.0)
			contribution.Status = tt.status

			if tt.found {
				contribRepo.On("Get", ctx, contribution.ID).Return(&contribution, nil)
			} else {
				contribRepo.On("Get", ctx, contribution.ID).Return(nil, ports.ErrNotFound)
			}
			if tt.wantErr == nil {
				contribRepo.On("UpdateStatus", ctx, contribution.ID, models.ContributionStatusRewarded).Return(nil)
			}

			updated, err := svc.MarkContributionRewarded(ctx, contribution.ID)
			if tt.wantErr != nil {
				assert.Nil(t, updated)
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, models.ContributionStatusRewarded, updated.Status)
				contribRepo.AssertExpectations(t)
			}
		})
	}
}

func TestListContributionsScopedToRound(t *testing.T) {
	svc, sessionRepo, roundRepo, contribRepo := newTestService()
	ctx := context.Background()

	key := mustDataKey(t)
	session := activeSession(key, 3)
	round := models.NewRound(session.ID, 2)

	sessionRepo.On("Get", ctx, session.ID).Return(session, nil)
	roundRepo.On("GetByNumber", ctx, session.ID, 2).Return(round, nil)
	contribRepo.On("ListByRound", ctx, round.ID).Return([]models.Contribution{}, nil)

	_, err := svc.ListContributions(ctx, session.ID, 2)
	require.NoError(t, err)
	contribRepo.AssertCalled(t, "ListByRound", ctx, round.ID)
	contribRepo.AssertNotCalled(t, "ListBySession", mock.Anything, mock.Anything)
}
