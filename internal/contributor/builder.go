package contributor

import (
	"encoding/base64"
	"fmt"

	"github.com/theblitlabs/sentinel/internal/gradients"
	"github.com/theblitlabs/sentinel/internal/privacy"
)

// Submission is the wire form of one sealed contribution.
type Submission struct {
	ContributorAddress string  `json:"contributor_address,omitempty"`
	RoundNumber        int     `json:"round_number,omitempty"`
	GradientHash       string  `json:"gradient_hash"`
	Commitment         string  `json:"commitment"`
	Nonce              string  `json:"nonce"`
	EncryptedPayload   string  `json:"encrypted_payload"`
	Accuracy           float64 `json:"accuracy"`
	PrivacyScore       float64 `json:"privacy_score"`
}

// Builder runs the contributor-side privacy pipeline: noise injection,
// canonical encoding, commitment, sealing. One builder per session; it holds
// the session data key.
type Builder struct {
	injector *privacy.NoiseInjector
	dataKey  []byte
}

func NewBuilder(dataKeyBase64 string) (*Builder, error) {
	key, err := base64.StdEncoding.DecodeString(dataKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("data key must be base64: %w", err)
	}
	if len(key) != privacy.DataKeySize {
		return nil, fmt.Errorf("data key must be %d bytes, got %d", privacy.DataKeySize, len(key))
	}

	return &Builder{
		injector: privacy.NewNoiseInjector(),
		dataKey:  key,
	}, nil
}

// Build seals one local update. The commitment binds the exact encoded
// payload, so the server can replay the check byte for byte.
func (b *Builder) Build(set gradients.TensorSet, noise privacy.NoiseParams, accuracy, privacyScore float64) (*Submission, error) {
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gradients: %w", err)
	}

	noised, err := b.injector.AddNoise(set, noise)
	if err != nil {
		return nil, fmt.Errorf("noise injection failed: %w", err)
	}

	payload, err := gradients.Encode(noised)
	if err != nil {
		return nil, err
	}

	gradientHash, err := gradients.Hash(noised)
	if err != nil {
		return nil, err
	}

	commitment, nonce, err := privacy.Commit(payload, nil)
	if err != nil {
		return nil, err
	}

	sealed, err := privacy.Seal(b.dataKey, payload)
	if err != nil {
		return nil, err
	}

	return &Submission{
		GradientHash:     gradientHash,
		Commitment:       commitment,
		Nonce:            base64.StdEncoding.EncodeToString(nonce),
		EncryptedPayload: base64.StdEncoding.EncodeToString(sealed),
		Accuracy:         accuracy,
		PrivacyScore:     privacyScore,
	}, nil
}
