package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/theblitlabs/sentinel/internal/core/models"
	"github.com/theblitlabs/sentinel/pkg/logger"
)

type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) RoundAnchor(opts *bind.CallOpts, sessionID [32]byte, roundNumber *big.Int) ([32]byte, error) {
	args := m.Called(opts, sessionID, roundNumber)
	return args.Get(0).([32]byte), args.Error(1)
}

func (m *mockRegistry) Owner(opts *bind.CallOpts) (common.Address, error) {
	args := m.Called(opts)
	return args.Get(0).(common.Address), args.Error(1)
}

func (m *mockRegistry) AnchorRound(opts *bind.TransactOpts, sessionID [32]byte, roundNumber *big.Int, modelHash [32]byte) (*types.Transaction, error) {
	args := m.Called(opts, sessionID, roundNumber, modelHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Transaction), args.Error(1)
}

func (m *mockRegistry) AnchorContribution(opts *bind.TransactOpts, sessionID [32]byte, roundID [32]byte, contributor common.Address, commitment [32]byte) (*types.Transaction, error) {
	args := m.Called(opts, sessionID, roundID, contributor, commitment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Transaction), args.Error(1)
}

func newTestAnchor(t *testing.T, reg *mockRegistry) (*Anchor, common.Address) {
	t.Helper()
	logger.InitWithMode(logger.LogModeTest)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	anchor := &Anchor{
		registry:   reg,
		privateKey: key,
		chainID:    big.NewInt(1337),
	}
	return anchor, crypto.PubkeyToAddress(key.PublicKey)
}

func signedBy(from common.Address) interface{} {
	return mock.MatchedBy(func(opts *bind.TransactOpts) bool {
		return opts.From == from && opts.Signer != nil && opts.Context != nil
	})
}

func TestAnchorRoundResult(t *testing.T) {
	reg := new(mockRegistry)
	anchor, from := newTestAnchor(t, reg)

	round := models.NewRound(uuid.New(), 2)
	round.AggregatedModelHash = "4ea5c508a6566e76240543f8feb06fd457777be39549c4016436afda65d2330e"

	tx := types.NewTx(&types.LegacyTx{Nonce: 7})
	expectedHash := [32]byte(common.HexToHash(round.AggregatedModelHash))
	reg.On("AnchorRound", signedBy(from), idWord(round.SessionID), big.NewInt(2), expectedHash).Return(tx, nil)

	txHash, err := anchor.AnchorRoundResult(context.Background(), round)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash().Hex(), txHash)
	reg.AssertExpectations(t)
}

func TestAnchorRoundResultFailure(t *testing.T) {
	reg := new(mockRegistry)
	anchor, _ := newTestAnchor(t, reg)

	round := models.NewRound(uuid.New(), 1)
	reg.On("AnchorRound", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("no peers"))

	_, err := anchor.AnchorRoundResult(context.Background(), round)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to anchor round result")
}

func TestAnchorContribution(t *testing.T) {
	reg := new(mockRegistry)
	anchor, from := newTestAnchor(t, reg)

	contribution := models.NewContribution(uuid.New(), uuid.New(), "0x1234567890123456789012345678901234567890")
	contribution.Commitment = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

	tx := types.NewTx(&types.LegacyTx{Nonce: 3})
	expectedCommitment := [32]byte(common.HexToHash(contribution.Commitment))
	reg.On("AnchorContribution", signedBy(from),
		idWord(contribution.SessionID),
		idWord(contribution.RoundID),
		common.HexToAddress(contribution.ContributorAddress),
		expectedCommitment,
	).Return(tx, nil)

	txHash, err := anchor.AnchorContribution(context.Background(), contribution)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash().Hex(), txHash)
	reg.AssertExpectations(t)
}

func TestIDWordIsStable(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, idWord(id), idWord(id))
	assert.NotEqual(t, idWord(id), idWord(uuid.New()))
}
