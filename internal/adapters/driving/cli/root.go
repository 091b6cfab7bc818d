// Package cli implements the ragdoll command-line interface. Commands
// talk to the core through the driving ports; the concrete services
// are wired once at startup and held in package-level variables so
// tests can install doubles.
package cli

import (
	"github.com/spf13/cobra"

	configfile "github.com/custodia-labs/ragdoll/internal/adapters/driven/config/file"
	"github.com/custodia-labs/ragdoll/internal/adapters/driving/api"
	"github.com/custodia-labs/ragdoll/internal/core/ports/driving"
	"github.com/custodia-labs/ragdoll/internal/core/services"
	"github.com/custodia-labs/ragdoll/internal/logger"
)

// version is overridden at build time via -ldflags.
var version = "0.1.0"

var (
	cfgFile string
	verbose bool
)

// Services behind the commands. Wired by initServices; nil until then.
var (
	appConfig     *configfile.Config
	ingestService driving.Ingestor
	queryService  driving.QueryService
	adminService  driving.Admin
	reconciler    *services.Reconciler
	apiServer     *api.Server
)

var rootCmd = &cobra.Command{
	Use:   "ragdoll",
	Short: "Watched-folder document ingestion and retrieval",
	Long: `Ragdoll watches a folder for documents, extracts and chunks their text,
embeds the chunks with Ollama and stores them in per-collection SQLite
databases for similarity search.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		return initServices()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default ~/.ragdoll/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose output")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
