package privacy

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
)

// CommitmentNonceSize is the length of the random nonce bound into a commitment.
const CommitmentNonceSize = 32

var (
	ErrInvalidNonceSize   = errors.New("commitment nonce must be 32 bytes")
	ErrCommitmentMismatch = errors.New("commitment mismatch")
)

// Commit binds the payload to a nonce: hex(SHA-256(payload || nonce)). A nil
// nonce is replaced with a fresh random one, which is returned alongside the
// hash so the contributor can reveal it later.
func Commit(payload, nonce []byte) (string, []byte, error) {
	if nonce == nil {
		nonce = make([]byte, CommitmentNonceSize)
		if _, err := rand.Read(nonce); err != nil {
			return "", nil, fmt.Errorf("generate commitment nonce: %w", err)
		}
	} else if len(nonce) != CommitmentNonceSize {
		return "", nil, fmt.Errorf("%w: got %d", ErrInvalidNonceSize, len(nonce))
	}

	h := sha256.New()
	h.Write(payload)
	h.Write(nonce)
	return hex.EncodeToString(h.Sum(nil)), nonce, nil
}

// VerifyCommitment recomputes the commitment for the revealed payload and
// nonce and compares it to the published hash in constant time. Any
// malformed input verifies false rather than erroring; the caller only needs
// the boolean to decide exclusion.
func VerifyCommitment(payload []byte, commitment string, nonce []byte) bool {
	if len(nonce) != CommitmentNonceSize {
		return false
	}
	want, err := hex.DecodeString(commitment)
	if err != nil || len(want) != sha256.Size {
		return false
	}

	h := sha256.New()
	h.Write(payload)
	h.Write(nonce)
	return subtle.ConstantTimeCompare(h.Sum(nil), want) == 1
}
