package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragdoll/internal/core/domain"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [collection] [source-id]",
	Short: "Delete a source and its chunks",
	Long: `Removes a source and all its chunks from the collection's store,
unmarks its processed-ledger record and moves the stored file into the
collection's deleted area.`,
	Args: cobra.ExactArgs(2),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	if adminService == nil {
		return errors.New("admin service not configured")
	}

	sourceID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid source id %q", args[1])
	}

	removed, err := adminService.DeleteSource(context.Background(), args[0], sourceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("source %d not found in collection %s", sourceID, args[0])
		}
		return fmt.Errorf("delete failed: %w", err)
	}

	cmd.Printf("Deleted source %d (%d chunks removed).\n", sourceID, removed)
	return nil
}
