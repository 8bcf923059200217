package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/theblitlabs/sentinel/cmd/cli"
	"github.com/theblitlabs/sentinel/pkg/logger"
)

var logMode string

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Sentinel Aggregator",
	Long:  `A privacy-preserving aggregation server for federated model training`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		switch logMode {
		case "debug", "pretty", "info", "prod", "test":
			logger.InitWithMode(logger.LogMode(logMode))
		default:
			logger.InitWithMode(logger.LogModePretty)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		cli.RunServer()
	},
}

func main() {
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(contributeCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the aggregation server",
	Run: func(cmd *cobra.Command, args []string) {
		cli.RunServer()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Run: func(cmd *cobra.Command, args []string) {
		down, err := cmd.Flags().GetBool("down")
		if err != nil {
			log.Error().Err(err).Msg("Failed to read down flag")
			return
		}
		cli.RunMigrate(down)
	},
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authenticate with the aggregation server",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := cmd.Flags().GetString("private-key")
		if err != nil {
			log.Error().Err(err).Msg("Failed to read private-key flag")
			return
		}
		cli.RunAuth(privateKey)
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a session data key",
	Run: func(cmd *cobra.Command, args []string) {
		cli.RunKeygen()
	},
}

var contributeParams cli.ContributeParams

var contributeCmd = &cobra.Command{
	Use:   "contribute",
	Short: "Submit a sealed gradient update to a session",
	Run: func(cmd *cobra.Command, args []string) {
		cli.RunContribute(contributeParams)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logMode, "log", "pretty", "Log mode: debug, pretty, info, prod, test")

	migrateCmd.Flags().Bool("down", false, "Roll back migrations instead of applying them")

	authCmd.Flags().String("private-key", "", "Private key in hex format")
	if err := authCmd.MarkFlagRequired("private-key"); err != nil {
		log.Error().Err(err).Msg("Failed to mark private-key flag as required")
	}

	flags := contributeCmd.Flags()
	flags.StringVar(&contributeParams.ServerURL, "server", "http://localhost:8080/api/v1", "Aggregation server base URL")
	flags.StringVar(&contributeParams.SessionID, "session", "", "Session ID")
	flags.StringVar(&contributeParams.DataKey, "key", "", "Base64 session data key")
	flags.StringVar(&contributeParams.GradientFile, "file", "", "Path to the tensor JSON file")
	flags.StringVar(&contributeParams.Mechanism, "mechanism", "laplace", "Noise mechanism: laplace or gaussian")
	flags.Float64Var(&contributeParams.Epsilon, "epsilon", 1.0, "Privacy budget epsilon")
	flags.Float64Var(&contributeParams.Sensitivity, "sensitivity", 1.0, "Query sensitivity")
	flags.Float64Var(&contributeParams.Delta, "delta", 1e-5, "Gaussian delta")
	flags.Float64Var(&contributeParams.Accuracy, "accuracy", 0, "Reported local accuracy")
	flags.Float64Var(&contributeParams.PrivacyScore, "privacy-score", 1.0, "Reported privacy score")
	for _, name := range []string{"session", "key", "file"} {
		if err := contributeCmd.MarkFlagRequired(name); err != nil {
			log.Error().Err(err).Str("flag", name).Msg("Failed to mark flag as required")
		}
	}
}
