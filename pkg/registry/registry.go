package registry

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Registry is the federation registry contract interface. Anchored digests
// are audit records only; nothing on the aggregation path reads them back.
type Registry interface {
	// Read-only methods
	RoundAnchor(opts *bind.CallOpts, sessionID [32]byte, roundNumber *big.Int) ([32]byte, error)
	Owner(opts *bind.CallOpts) (common.Address, error)

	// Transaction methods
	AnchorRound(opts *bind.TransactOpts, sessionID [32]byte, roundNumber *big.Int, modelHash [32]byte) (*types.Transaction, error)
	AnchorContribution(opts *bind.TransactOpts, sessionID [32]byte, roundID [32]byte, contributor common.Address, commitment [32]byte) (*types.Transaction, error)
}

// NewRegistry creates a new instance of Registry
func NewRegistry(address common.Address, backend bind.ContractBackend) (Registry, error) {
	return NewRegistryContract(address, backend)
}
