package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"

	"github.com/theblitlabs/sentinel/internal/core/config"
	"github.com/theblitlabs/sentinel/internal/core/models"
	"github.com/theblitlabs/sentinel/internal/core/ports"
	"github.com/theblitlabs/sentinel/pkg/logger"
	"github.com/theblitlabs/sentinel/pkg/registry"
)

// Anchor writes round and contribution digests to the federation registry
// contract. Transaction hashes are returned without waiting for inclusion;
// the anchor is an audit record, not a settlement dependency.
type Anchor struct {
	client     *ethclient.Client
	registry   registry.Registry
	privateKey *ecdsa.PrivateKey
	chainID    *big.Int
}

var _ ports.ResultAnchor = (*Anchor)(nil)

func NewAnchor(cfg config.ChainConfig, privateKey *ecdsa.PrivateKey) (*Anchor, error) {
	client, err := ethclient.Dial(cfg.RPC)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain RPC %s: %w", cfg.RPC, err)
	}

	reg, err := registry.NewRegistry(common.HexToAddress(cfg.RegistryAddress), client)
	if err != nil {
		client.Close()
		return nil, err
	}

	return &Anchor{
		client:     client,
		registry:   reg,
		privateKey: privateKey,
		chainID:    big.NewInt(cfg.ChainID),
	}, nil
}

func (a *Anchor) Close() {
	a.client.Close()
}

// Ping probes the RPC endpoint for health checks.
func (a *Anchor) Ping(ctx context.Context) error {
	if _, err := a.client.BlockNumber(ctx); err != nil {
		return fmt.Errorf("chain rpc unreachable: %w", err)
	}
	return nil
}

func (a *Anchor) AnchorRoundResult(ctx context.Context, round *models.Round) (string, error) {
	opts, err := a.transactOpts(ctx)
	if err != nil {
		return "", err
	}

	tx, err := a.registry.AnchorRound(opts,
		idWord(round.SessionID),
		big.NewInt(int64(round.RoundNumber)),
		[32]byte(common.HexToHash(round.AggregatedModelHash)),
	)
	if err != nil {
		return "", fmt.Errorf("failed to anchor round result: %w", err)
	}

	logger.WithComponent("chain").Info().
		Str("tx_hash", tx.Hash().Hex()).
		Str("session_id", round.SessionID.String()).
		Int("round_number", round.RoundNumber).
		Msg("Round result anchored")

	return tx.Hash().Hex(), nil
}

func (a *Anchor) AnchorContribution(ctx context.Context, contribution *models.Contribution) (string, error) {
	opts, err := a.transactOpts(ctx)
	if err != nil {
		return "", err
	}

	tx, err := a.registry.AnchorContribution(opts,
		idWord(contribution.SessionID),
		idWord(contribution.RoundID),
		common.HexToAddress(contribution.ContributorAddress),
		[32]byte(common.HexToHash(contribution.Commitment)),
	)
	if err != nil {
		return "", fmt.Errorf("failed to anchor contribution: %w", err)
	}

	logger.WithComponent("chain").Debug().
		Str("tx_hash", tx.Hash().Hex()).
		Str("contribution_id", contribution.ID.String()).
		Str("contributor", contribution.ContributorAddress).
		Msg("Contribution anchored")

	return tx.Hash().Hex(), nil
}

func (a *Anchor) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(a.privateKey, a.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to build transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// idWord hashes a UUID into the bytes32 form the registry stores.
func idWord(id uuid.UUID) [32]byte {
	return [32]byte(crypto.Keccak256Hash(id[:]))
}
