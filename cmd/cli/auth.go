package cli

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/theblitlabs/sentinel/internal/core/config"
	"github.com/theblitlabs/sentinel/pkg/auth"
	"github.com/theblitlabs/sentinel/pkg/keystore"
	"github.com/theblitlabs/sentinel/pkg/logger"
)

// RunAuth saves the contributor key and mints a bearer token for the
// mutation endpoints. The token is signed with the server's JWT secret, so
// auth runs on the operator host where the config lives.
func RunAuth(privateKey string) {
	log := logger.WithComponent("auth")

	if err := executeAuth(privateKey); err != nil {
		log.Fatal().Err(err).Msg("Authentication failed")
	}
}

func executeAuth(privateKey string) error {
	log := logger.WithComponent("auth")

	if privateKey == "" {
		return fmt.Errorf("private key is required")
	}

	cfg, err := config.LoadConfig("config/config.yaml")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	privateKey = strings.TrimPrefix(privateKey, "0x")

	if len(privateKey) != 64 {
		return fmt.Errorf("invalid private key - must be 64 hex characters without 0x prefix")
	}

	key, err := crypto.HexToECDSA(privateKey)
	if err != nil {
		return fmt.Errorf("invalid private key format: %w", err)
	}

	if err := keystore.SavePrivateKey(privateKey); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}

	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	token, err := auth.GenerateToken([]byte(cfg.Auth.JWTSecret), address, cfg.Auth.TokenExpiry)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	if err := keystore.SaveToken(token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	keystorePath, err := keystore.GetKeystorePath()
	if err != nil {
		return fmt.Errorf("failed to resolve keystore path: %w", err)
	}

	log.Info().
		Str("address", address).
		Str("keystore", keystorePath).
		Dur("token_expiry", cfg.Auth.TokenExpiry).
		Msg("Authenticated successfully")

	return nil
}
