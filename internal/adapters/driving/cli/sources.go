package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources [collection]",
	Short: "List a collection's sources",
	Args:  cobra.ExactArgs(1),
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, args []string) error {
	if adminService == nil {
		return errors.New("admin service not configured")
	}

	sources, err := adminService.Sources(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}

	if len(sources) == 0 {
		cmd.Println("No sources found.")
		return nil
	}

	cmd.Println("Sources:")
	for _, s := range sources {
		cmd.Printf("  [%d] %s (%s, %d chunks)\n",
			s.Source.ID, s.Source.Path, s.Source.Type, s.Chunks)
	}
	return nil
}
