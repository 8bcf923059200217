package ipfs

import (
	"bytes"
	"context"
	"fmt"
	"io"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/theblitlabs/sentinel/internal/core/config"
	"github.com/theblitlabs/sentinel/internal/core/ports"
	"github.com/theblitlabs/sentinel/pkg/logger"
)

// CheckpointStore archives aggregated model checkpoints on an IPFS node and
// hands back content addresses for the round records.
type CheckpointStore struct {
	shell *shell.Shell
}

var _ ports.CheckpointStore = (*CheckpointStore)(nil)

func NewCheckpointStore(cfg config.IPFSConfig) (*CheckpointStore, error) {
	sh := shell.NewShell(cfg.APIURL)
	if _, err := sh.ID(); err != nil {
		return nil, fmt.Errorf("failed to connect to IPFS node: %w", err)
	}
	return &CheckpointStore{shell: sh}, nil
}

// Ping probes the IPFS node for health checks.
func (c *CheckpointStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.shell.ID(); err != nil {
		return fmt.Errorf("ipfs node unreachable: %w", err)
	}
	return nil
}

// StoreCheckpoint pins the checkpoint blob and returns its CID.
func (c *CheckpointStore) StoreCheckpoint(ctx context.Context, modelHash string, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	cid, err := c.shell.Add(bytes.NewReader(payload), shell.Pin(true), shell.CidVersion(1))
	if err != nil {
		return "", fmt.Errorf("failed to store checkpoint: %w", err)
	}

	logger.WithComponent("ipfs").Info().
		Str("cid", cid).
		Str("model_hash", modelHash).
		Int("size_bytes", len(payload)).
		Msg("Checkpoint stored")

	return cid, nil
}

// GetCheckpoint fetches a checkpoint blob by CID. Contributors pull the
// previous round's aggregate through this before local training.
func (c *CheckpointStore) GetCheckpoint(ctx context.Context, cid string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader, err := c.shell.Cat(cid)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve checkpoint %s: %w", cid, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint stream: %w", err)
	}
	return data, nil
}
