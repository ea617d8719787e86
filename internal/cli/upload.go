package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewUploadCmd builds the CLI subcommand that uploads study material and
// prints the assigned course id.
func NewUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload study material and index it as a course",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log.Level)
			client := newAPIClient(cfg, logger)

			receipt, err := client.Upload(cmd.Context(), args)
			if err != nil {
				return err
			}
			fmt.Printf("course id: %s\n", receipt.CourseID)
			fmt.Printf("indexed %d chunks from %s\n", receipt.ChunksIndexed, strings.Join(receipt.Files, ", "))
			return nil
		},
	}
}
