package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	configfile "github.com/custodia-labs/ragdoll/internal/adapters/driven/config/file"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP query API",
	Long: `Starts the local HTTP API: collection listing, similarity queries and
source-document fetching. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if apiServer == nil {
		return errors.New("api server not configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := apiAddr()
	cmd.Printf("Serving query API on %s\n", addr)

	if err := apiServer.ListenAndServe(ctx, addr); err != nil {
		return fmt.Errorf("serve failed: %w", err)
	}
	return nil
}

// apiAddr resolves the listen address: flag, then config, then the
// built-in default.
func apiAddr() string {
	if serveAddr != "" {
		return serveAddr
	}
	if appConfig != nil && appConfig.API.Addr != "" {
		return appConfig.API.Addr
	}
	return configfile.DefaultAPIAddr
}
