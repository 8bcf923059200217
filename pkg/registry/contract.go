package registry

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// RegistryContract is the Go binding of the FederationRegistry contract
type RegistryContract struct {
	address common.Address
	backend bind.ContractBackend
	abi     abi.ABI
}

const RegistryABI = `[
    {
      "inputs": [
        {
          "internalType": "bytes32",
          "name": "sessionId",
          "type": "bytes32"
        },
        {
          "internalType": "uint256",
          "name": "roundNumber",
          "type": "uint256"
        },
        {
          "internalType": "bytes32",
          "name": "modelHash",
          "type": "bytes32"
        }
      ],
      "name": "anchorRound",
      "outputs": [],
      "stateMutability": "nonpayable",
      "type": "function"
    },
    {
      "inputs": [
        {
          "internalType": "bytes32",
          "name": "sessionId",
          "type": "bytes32"
        },
        {
          "internalType": "bytes32",
          "name": "roundId",
          "type": "bytes32"
        },
        {
          "internalType": "address",
          "name": "contributor",
          "type": "address"
        },
        {
          "internalType": "bytes32",
          "name": "commitment",
          "type": "bytes32"
        }
      ],
      "name": "anchorContribution",
      "outputs": [],
      "stateMutability": "nonpayable",
      "type": "function"
    },
    {
      "inputs": [
        {
          "internalType": "bytes32",
          "name": "sessionId",
          "type": "bytes32"
        },
        {
          "internalType": "uint256",
          "name": "roundNumber",
          "type": "uint256"
        }
      ],
      "name": "roundAnchor",
      "outputs": [
        {
          "internalType": "bytes32",
          "name": "",
          "type": "bytes32"
        }
      ],
      "stateMutability": "view",
      "type": "function"
    },
    {
      "inputs": [],
      "name": "owner",
      "outputs": [
        {
          "internalType": "address",
          "name": "",
          "type": "address"
        }
      ],
      "stateMutability": "view",
      "type": "function"
    },
    {
      "anonymous": false,
      "inputs": [
        {
          "indexed": true,
          "internalType": "bytes32",
          "name": "sessionId",
          "type": "bytes32"
        },
        {
          "indexed": false,
          "internalType": "uint256",
          "name": "roundNumber",
          "type": "uint256"
        },
        {
          "indexed": false,
          "internalType": "bytes32",
          "name": "modelHash",
          "type": "bytes32"
        }
      ],
      "name": "RoundAnchored",
      "type": "event"
    },
    {
      "anonymous": false,
      "inputs": [
        {
          "indexed": true,
          "internalType": "bytes32",
          "name": "sessionId",
          "type": "bytes32"
        },
        {
          "indexed": true,
          "internalType": "address",
          "name": "contributor",
          "type": "address"
        },
        {
          "indexed": false,
          "internalType": "bytes32",
          "name": "commitment",
          "type": "bytes32"
        }
      ],
      "name": "ContributionAnchored",
      "type": "event"
    }
]`

// NewRegistryContract creates a binding against the registry at the given
// address
func NewRegistryContract(address common.Address, backend bind.ContractBackend) (*RegistryContract, error) {
	parsed, err := abi.JSON(strings.NewReader(RegistryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry ABI: %w", err)
	}

	return &RegistryContract{
		address: address,
		backend: backend,
		abi:     parsed,
	}, nil
}

// AnchorRound records the aggregated model digest for a round
func (c *RegistryContract) AnchorRound(opts *bind.TransactOpts, sessionID [32]byte, roundNumber *big.Int, modelHash [32]byte) (*types.Transaction, error) {
	return bind.NewBoundContract(c.address, c.abi, c.backend, c.backend, c.backend).
		Transact(opts, "anchorRound", sessionID, roundNumber, modelHash)
}

// AnchorContribution records a contributor's commitment digest
func (c *RegistryContract) AnchorContribution(opts *bind.TransactOpts, sessionID [32]byte, roundID [32]byte, contributor common.Address, commitment [32]byte) (*types.Transaction, error) {
	return bind.NewBoundContract(c.address, c.abi, c.backend, c.backend, c.backend).
		Transact(opts, "anchorContribution", sessionID, roundID, contributor, commitment)
}

// RoundAnchor returns the digest recorded for a round, or the zero word
func (c *RegistryContract) RoundAnchor(opts *bind.CallOpts, sessionID [32]byte, roundNumber *big.Int) ([32]byte, error) {
	var out []interface{}
	err := bind.NewBoundContract(c.address, c.abi, c.backend, c.backend, c.backend).
		Call(opts, &out, "roundAnchor", sessionID, roundNumber)
	if err != nil {
		return [32]byte{}, err
	}
	return *abi.ConvertType(out[0], new([32]byte)).(*[32]byte), nil
}

// Owner returns the contract owner
func (c *RegistryContract) Owner(opts *bind.CallOpts) (common.Address, error) {
	var out []interface{}
	err := bind.NewBoundContract(c.address, c.abi, c.backend, c.backend, c.backend).
		Call(opts, &out, "owner")
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}
