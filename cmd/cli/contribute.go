package cli

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/theblitlabs/sentinel/internal/contributor"
	"github.com/theblitlabs/sentinel/internal/gradients"
	"github.com/theblitlabs/sentinel/internal/privacy"
	"github.com/theblitlabs/sentinel/pkg/keystore"
	"github.com/theblitlabs/sentinel/pkg/logger"
)

// ContributeParams carries the contribute subcommand flags.
type ContributeParams struct {
	ServerURL    string
	SessionID    string
	DataKey      string
	GradientFile string
	Mechanism    string
	Epsilon      float64
	Sensitivity  float64
	Delta        float64
	Accuracy     float64
	PrivacyScore float64
}

// RunContribute runs the contributor pipeline against a local gradient file:
// noise, canonical encoding, commitment, sealing, then submission over the
// authenticated API. The gradient file is a JSON array of tensors
// ({name, shape, values}).
func RunContribute(params ContributeParams) {
	log := logger.WithComponent("contribute")

	sessionID, err := uuid.Parse(params.SessionID)
	if err != nil {
		log.Fatal().Err(err).Str("session", params.SessionID).Msg("Invalid session id")
	}

	raw, err := os.ReadFile(params.GradientFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", params.GradientFile).Msg("Failed to read gradient file")
	}
	var set gradients.TensorSet
	if err := json.Unmarshal(raw, &set); err != nil {
		log.Fatal().Err(err).Str("file", params.GradientFile).Msg("Gradient file is not valid tensor JSON")
	}

	builder, err := contributor.NewBuilder(params.DataKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid data key")
	}

	noise := privacy.NoiseParams{
		Mechanism:   privacy.Mechanism(params.Mechanism),
		Epsilon:     params.Epsilon,
		Sensitivity: params.Sensitivity,
		Delta:       params.Delta,
	}
	submission, err := builder.Build(set, noise, params.Accuracy, params.PrivacyScore)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build submission")
	}

	token, err := keystore.LoadToken()
	if err != nil {
		log.Fatal().Err(err).Msg("No bearer token found - please authenticate first")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := contributor.NewClient(params.ServerURL, token)
	contribution, err := client.SubmitContribution(ctx, sessionID, submission)
	if err != nil {
		log.Fatal().Err(err).Msg("Submission rejected")
	}

	log.Info().
		Str("contribution_id", contribution.ID.String()).
		Str("session_id", sessionID.String()).
		Str("status", string(contribution.Status)).
		Str("gradient_hash", submission.GradientHash).
		Msg("Contribution submitted")
}
