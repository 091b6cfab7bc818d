package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var reprocessCmd = &cobra.Command{
	Use:   "reprocess [collection] [path-or-name]",
	Short: "Force re-ingestion of a file",
	Long: `Removes processed-ledger records matching the given path or filename so
the file is picked up again next time it appears under the watch root.`,
	Args: cobra.ExactArgs(2),
	RunE: runReprocess,
}

func init() {
	rootCmd.AddCommand(reprocessCmd)
}

func runReprocess(cmd *cobra.Command, args []string) error {
	if adminService == nil {
		return errors.New("admin service not configured")
	}

	removed, err := adminService.Reprocess(args[0], args[1])
	if err != nil {
		return fmt.Errorf("reprocess failed: %w", err)
	}

	if removed == 0 {
		cmd.Printf("No processed records match %s.\n", args[1])
		return nil
	}

	cmd.Printf("Removed %d processed record(s); %s will be re-ingested.\n", removed, args[1])
	return nil
}
