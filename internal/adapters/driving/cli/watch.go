package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragdoll/internal/logger"
)

var watchAPI bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the ingestion daemon",
	Long: `Watches the configured folder for documents and runs the full pipeline:
extract, chunk, filter, embed, store. Processed files move into their
collection's sources directory. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchAPI, "api", false, "also serve the HTTP query API")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if ingestService == nil || reconciler == nil {
		return errors.New("ingest service not configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := reconciler.Run(ctx); err != nil {
			logger.Warn("reconciler stopped: %v", err)
		}
	}()

	if watchAPI {
		if apiServer == nil {
			return errors.New("api server not configured")
		}
		addr := apiAddr()
		go func() {
			if err := apiServer.ListenAndServe(ctx, addr); err != nil {
				logger.Error("api server failed: %v", err)
			}
		}()
		cmd.Printf("Serving query API on %s\n", addr)
	}

	if appConfig != nil {
		cmd.Printf("Watching %s\n", appConfig.WatchRoot)
	}

	if err := ingestService.Start(ctx); err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}
	return nil
}
