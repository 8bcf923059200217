package cli

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/theblitlabs/sentinel/internal/core/config"
	"github.com/theblitlabs/sentinel/pkg/logger"
)

func GetMigrationFiles(migrationType string) ([]string, error) {
	migrationDir := "internal/database/migrations"

	files, err := filepath.Glob(filepath.Join(migrationDir, "*."+migrationType+".sql"))
	if err != nil {
		return nil, fmt.Errorf("failed to read migration files: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		versionI := strings.Split(filepath.Base(files[i]), "_")[0]
		versionJ := strings.Split(filepath.Base(files[j]), "_")[0]
		return versionI < versionJ
	})

	// Down migrations roll back in reverse order
	if migrationType == "down" {
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}

	return files, nil
}

func RunMigrate(down bool) {
	log := logger.Get()

	cfg, err := config.LoadConfig("config/config.yaml")
	if err != nil {
		log.Error().Err(err).Msg("Failed to load config")
		return
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to database")
		return
	}
	defer db.Close()

	migrationType := "up"
	if down {
		migrationType = "down"
	}

	migrationFiles, err := GetMigrationFiles(migrationType)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get migration files")
		return
	}

	if len(migrationFiles) == 0 {
		log.Error().Msgf("No %s migration files found", migrationType)
		return
	}

	for _, sqlFile := range migrationFiles {
		log.Info().Str("file", filepath.Base(sqlFile)).Msgf("Executing %s migration", migrationType)

		migrationSQL, err := os.ReadFile(sqlFile)
		if err != nil {
			log.Error().Err(err).Msg("Failed to read migration file")
			return
		}

		_, err = db.Exec(string(migrationSQL))
		if err != nil {
			log.Error().Err(err).Msg("Failed to execute migration")
			return
		}

		log.Info().Msgf("Migration (%s) completed successfully", migrationType)
	}
}
