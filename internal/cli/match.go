package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"studybattle-client/internal/api"
	"studybattle-client/internal/domain"
)

// NewCreateCmd builds the CLI subcommand that creates a match without
// connecting to it.
func NewCreateCmd() *cobra.Command {
	var course string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a match and print its id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if course == "" {
				course = cfg.Match.Course
			}
			if course == "" {
				return fmt.Errorf("--course is required")
			}
			if cfg.Player.Name == "" {
				return fmt.Errorf("player name required (flag --name or config)")
			}
			logger := newLogger(cfg.Log.Level)
			client := newAPIClient(cfg, logger)

			ticket, err := client.CreateMatch(cmd.Context(), api.CreateMatchRequest{
				CourseID:         course,
				PlayerName:       cfg.Player.Name,
				TimeLimitSeconds: cfg.Match.TimeLimitSeconds,
				Difficulty:       domain.Difficulty(cfg.Match.Difficulty),
				QuestionTypes:    questionTypes(cfg),
			})
			if err != nil {
				return err
			}
			fmt.Printf("match id: %s\n", ticket.MatchID)
			fmt.Printf("connect with: studybattle play %s\n", ticket.MatchID)
			return nil
		},
	}
	cmd.Flags().StringVar(&course, "course", "", "course id to draw questions from")
	return cmd
}

// NewJoinCmd builds the CLI subcommand that registers in a match without
// connecting to it.
func NewJoinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <match-id>",
		Short: "Join an existing match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Player.Name == "" {
				return fmt.Errorf("player name required (flag --name or config)")
			}
			logger := newLogger(cfg.Log.Level)
			client := newAPIClient(cfg, logger)

			if err := client.JoinMatch(cmd.Context(), args[0], cfg.Player.Name); err != nil {
				return err
			}
			fmt.Printf("joined %s; connect with: studybattle play %s\n", args[0], args[0])
			return nil
		},
	}
}
