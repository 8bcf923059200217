package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/theblitlabs/sentinel/internal/api"
	"github.com/theblitlabs/sentinel/internal/api/handlers"
	"github.com/theblitlabs/sentinel/internal/chain"
	"github.com/theblitlabs/sentinel/internal/core/config"
	"github.com/theblitlabs/sentinel/internal/core/services"
	"github.com/theblitlabs/sentinel/internal/database/repositories"
	"github.com/theblitlabs/sentinel/internal/ipfs"
	"github.com/theblitlabs/sentinel/internal/monitoring/health"
	"github.com/theblitlabs/sentinel/internal/monitoring/metrics"
	"github.com/theblitlabs/sentinel/internal/notify"
	"github.com/theblitlabs/sentinel/internal/telemetry"
	"github.com/theblitlabs/sentinel/pkg/database"
	"github.com/theblitlabs/sentinel/pkg/keystore"
	"github.com/theblitlabs/sentinel/pkg/logger"
)

// verifyPortAvailable checks if the given port is available for use
func verifyPortAvailable(host string, port string) error {
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("invalid port number: %w", err)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, portNum))
	if err != nil {
		return fmt.Errorf("port %s is not available: %w", port, err)
	}
	ln.Close()
	return nil
}

func RunServer() {
	log := logger.Get()

	cfg, err := config.LoadConfig("config/config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Create database connection with timeout context
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	log.Info().Msg("Successfully connected to database")

	// Set up graceful shutdown
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	sessionRepo := repositories.NewSessionRepository(db)
	roundRepo := repositories.NewRoundRepository(db)
	contribRepo := repositories.NewContributionRepository(db)

	engine := services.NewAggregationEngine(cfg.Federation.AggregationWorkers)
	federationService := services.NewFederationService(sessionRepo, roundRepo, contribRepo, engine, cfg.Federation)

	checker := health.NewHealthChecker(30 * time.Second)
	checker.Register("database", func(ctx context.Context) error {
		return db.PingContext(ctx)
	})

	// Collaborator adapters are optional; the service degrades to
	// ledger-only operation without them.
	if cfg.Chain.Enabled {
		privateKey, err := keystore.LoadPrivateKey()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load private key - please authenticate first")
		}

		anchor, err := chain.NewAnchor(cfg.Chain, privateKey)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to registry chain")
		}
		defer anchor.Close()

		federationService.SetResultAnchor(anchor, cfg.Chain.AnchorContributions)
		checker.Register("chain", anchor.Ping)
		log.Info().
			Str("registry", cfg.Chain.RegistryAddress).
			Int64("chain_id", cfg.Chain.ChainID).
			Msg("Result anchoring enabled")
	}

	if cfg.IPFS.Enabled {
		store, err := ipfs.NewCheckpointStore(cfg.IPFS)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to IPFS node")
		}

		federationService.SetCheckpointStore(store)
		checker.Register("ipfs", store.Ping)
		log.Info().Str("api_url", cfg.IPFS.APIURL).Msg("Checkpoint archival enabled")
	}

	if cfg.Notify.WebhookURL != "" {
		federationService.SetRoundNotifier(notify.NewWebhookNotifier(cfg.Notify))
		log.Info().Str("webhook_url", cfg.Notify.WebhookURL).Msg("Round completion webhook enabled")
	}

	checker.Start()

	federationHandler := handlers.NewFederationHandler(federationService, cfg.Server.Websocket)

	router := api.NewRouter(
		federationHandler,
		checker.Handler(),
		telemetry.MetricsHandler(),
		cfg.Server.Endpoint,
		cfg.Auth.JWTSecret,
	)
	router.AddMiddleware(telemetry.MetricsMiddleware)

	telemetryCleanup, err := telemetry.InitTelemetry(shutdownCtx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize telemetry")
	}

	// Push host resource usage into the metrics surface on an interval.
	collector := metrics.NewSystemMetricsCollector(5 * time.Second)
	go func() {
		ticker := time.NewTicker(cfg.Telemetry.MetricsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-shutdownCtx.Done():
				return
			case <-ticker.C:
				memory, cpu := collector.GetSystemMetrics()
				telemetry.UpdateSystemMetrics(memory, cpu)
			}
		}
	}()

	// Check if the server port is available before starting
	if err := verifyPortAvailable(cfg.Server.Host, cfg.Server.Port); err != nil {
		log.Fatal().
			Err(err).
			Str("host", cfg.Server.Host).
			Str("port", cfg.Server.Port).
			Msg("Server port is not available")
	}

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	// Wait for shutdown signal in a goroutine
	go func() {
		<-stopChan
		log.Info().
			Msg("Shutdown signal received, gracefully shutting down...")
		shutdownCancel()
	}()

	// Start server in a goroutine
	go func() {
		log.Info().
			Str("address", server.Addr).
			Str("endpoint", cfg.Server.Endpoint).
			Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for shutdown context to be canceled
	<-shutdownCtx.Done()

	serverShutdownCtx, serverShutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer serverShutdownCancel()

	log.Info().
		Int("shutdown_timeout_seconds", 15).
		Msg("Initiating server shutdown sequence")

	shutdownStart := time.Now()
	if err := server.Shutdown(serverShutdownCtx); err != nil {
		log.Error().
			Err(err).
			Msg("Server shutdown error")
		if err == context.DeadlineExceeded {
			log.Warn().
				Msg("Server shutdown deadline exceeded, forcing immediate shutdown")
		}
	} else {
		log.Info().
			Dur("duration_ms", time.Since(shutdownStart)).
			Msg("Server HTTP connections gracefully closed")
	}

	checker.Stop()

	if telemetryCleanup != nil {
		cleanupStart := time.Now()
		if err := telemetryCleanup(context.Background()); err != nil {
			log.Error().
				Err(err).
				Msg("Telemetry shutdown error")
		} else {
			log.Info().
				Dur("duration_ms", time.Since(cleanupStart)).
				Msg("Telemetry flushed")
		}
	}

	log.Info().Msg("Closing database connection...")
	dbCloseStart := time.Now()
	if err := db.Close(); err != nil {
		log.Error().
			Err(err).
			Msg("Error closing database connection")
	} else {
		log.Info().
			Dur("duration_ms", time.Since(dbCloseStart)).
			Msg("Database connection closed successfully")
	}

	log.Info().Msg("Shutdown complete")
}
