package cli

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"studybattle-client/internal/api"
	"studybattle-client/internal/config"
)

var (
	serverURL  string
	playerName string
	configPath string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	_ = godotenv.Load()

	envServer := os.Getenv("STUDYBATTLE_SERVER")
	if envServer == "" {
		envServer = "http://localhost:8000"
	}
	envConfig := os.Getenv("STUDYBATTLE_CONFIG")
	if envConfig == "" {
		envConfig = "studybattle.yaml"
	}
	envName := os.Getenv("STUDYBATTLE_PLAYER")

	cmd := &cobra.Command{
		Use:   "studybattle",
		Short: "Terminal client for real-time study battles",
	}

	cmd.PersistentFlags().StringVar(&serverURL, "server", envServer, "backend base URL")
	cmd.PersistentFlags().StringVar(&playerName, "name", envName, "player name")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(NewPlayCmd())
	cmd.AddCommand(NewCoursesCmd())
	cmd.AddCommand(NewCreateCmd())
	cmd.AddCommand(NewJoinCmd())
	cmd.AddCommand(NewUploadCmd())
	cmd.AddCommand(NewHistoryCmd())
	return cmd
}

// loadConfig reads the YAML config and applies flag/env overrides on top.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if serverURL != "" {
		cfg.Server.BaseURL = serverURL
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost:8000"
	}
	if playerName != "" {
		cfg.Player.Name = playerName
	}
	if cfg.Profile.Path == "" {
		cfg.Profile.Path = "studybattle.db"
	}
	return cfg, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	return zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
}

func newAPIClient(cfg config.Config, logger zerolog.Logger) *api.Client {
	return api.New(cfg.Server.BaseURL, logger,
		api.WithCourseTTL(config.TTLDuration(cfg.API.CourseTTL, time.Minute)),
	)
}
