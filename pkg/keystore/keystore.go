package keystore

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// Keystore is the on-disk credential file. The private key signs chain
// transactions; the auth token is the cached bearer token for the API. Token
// expiry lives inside the JWT itself.
type Keystore struct {
	PrivateKey string `json:"private_key,omitempty"`
	AuthToken  string `json:"auth_token,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

func GetKeystorePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	keystoreDir := filepath.Join(homeDir, ".sentinel")
	if err := os.MkdirAll(keystoreDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create keystore directory: %w", err)
	}

	return filepath.Join(keystoreDir, "keystore.json"), nil
}

func load() (*Keystore, string, error) {
	keystorePath, err := GetKeystorePath()
	if err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(keystorePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Keystore{}, keystorePath, nil
		}
		return nil, "", fmt.Errorf("failed to read keystore: %w", err)
	}

	var ks Keystore
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, "", fmt.Errorf("failed to parse keystore: %w", err)
	}
	return &ks, keystorePath, nil
}

func save(ks *Keystore, keystorePath string) error {
	ks.CreatedAt = time.Now().Unix()

	data, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal keystore: %w", err)
	}

	if err := os.WriteFile(keystorePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write keystore file: %w", err)
	}
	return nil
}

func SavePrivateKey(privateKeyHex string) error {
	if _, err := crypto.HexToECDSA(privateKeyHex); err != nil {
		return fmt.Errorf("invalid private key format: %w", err)
	}

	ks, keystorePath, err := load()
	if err != nil {
		return err
	}

	ks.PrivateKey = privateKeyHex
	return save(ks, keystorePath)
}

func LoadPrivateKey() (*ecdsa.PrivateKey, error) {
	ks, keystorePath, err := load()
	if err != nil {
		return nil, err
	}
	if ks.PrivateKey == "" {
		return nil, fmt.Errorf("no private key found at %s - please authenticate first", keystorePath)
	}

	return crypto.HexToECDSA(ks.PrivateKey)
}

func SaveToken(token string) error {
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	ks, keystorePath, err := load()
	if err != nil {
		return err
	}

	ks.AuthToken = token
	return save(ks, keystorePath)
}

func LoadToken() (string, error) {
	ks, keystorePath, err := load()
	if err != nil {
		return "", err
	}
	if ks.AuthToken == "" {
		return "", fmt.Errorf("no auth token found at %s - please authenticate first", keystorePath)
	}

	return ks.AuthToken, nil
}
