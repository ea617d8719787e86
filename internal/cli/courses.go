package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewCoursesCmd builds the CLI subcommand that lists indexed courses.
func NewCoursesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "courses",
		Short: "List courses available on the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log.Level)
			client := newAPIClient(cfg, logger)

			courses, err := client.Courses(cmd.Context())
			if err != nil {
				return err
			}
			if len(courses) == 0 {
				fmt.Println("No courses indexed yet. Use `studybattle upload` first.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "COURSE ID\tCHUNKS\tFILES")
			for _, c := range courses {
				fmt.Fprintf(w, "%s\t%d\t%s\n", c.ID, c.ChunkCount, strings.Join(c.Files, ", "))
			}
			return w.Flush()
		},
	}
}
