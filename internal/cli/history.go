package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"studybattle-client/internal/infra/profile"
)

// NewHistoryCmd builds the CLI subcommand that lists locally archived
// matches.
func NewHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently finished matches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := profile.Open(cfg.Profile.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			matches, err := store.RecentMatches(limit)
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				fmt.Println("No finished matches yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FINISHED\tMATCH\tPLAYER\tWINNER\tROUNDS")
			for _, m := range matches {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
					m.FinishedAt.Format("2006-01-02 15:04"), m.MatchID, m.Player, m.Winner, m.Rounds)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum matches to list")
	return cmd
}
