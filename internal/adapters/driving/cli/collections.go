package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List collections",
	Args:  cobra.NoArgs,
	RunE:  runCollections,
}

func init() {
	rootCmd.AddCommand(collectionsCmd)
}

func runCollections(cmd *cobra.Command, _ []string) error {
	if adminService == nil {
		return errors.New("admin service not configured")
	}

	names, err := adminService.Collections()
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	if len(names) == 0 {
		cmd.Println("No collections found.")
		return nil
	}

	cmd.Println("Collections:")
	for _, name := range names {
		cmd.Printf("  %s\n", name)
	}
	return nil
}
