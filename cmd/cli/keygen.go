package cli

import (
	"encoding/base64"
	"fmt"

	"github.com/theblitlabs/sentinel/internal/privacy"
	"github.com/theblitlabs/sentinel/pkg/logger"
)

// RunKeygen mints a session data key and prints it once. The server never
// stores creator-held keys, so losing the printed value means minting a new
// session.
func RunKeygen() {
	log := logger.WithComponent("keygen")

	key, err := privacy.NewDataKey()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to generate data key")
	}

	fmt.Println(base64.StdEncoding.EncodeToString(key))
}
