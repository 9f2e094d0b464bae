package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dukerupert/picky/internal/config"
	"github.com/dukerupert/picky/internal/logging"
)

var (
	cfg    *config.Config
	logger *slog.Logger

	// Global flags
	logLevel string
	apiURL   string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "picky",
		Short: "Picky - shopping, larder and meal lists",
		Long: `Picky keeps three independent lists: shopping items, larder items and meals.

"picky serve" runs the REST API. The item commands talk to a running API.

Examples:
  # Run the API with the legacy JSON files
  PICKY_BACKEND=jsonfile PICKY_DATA_DIR=./data picky serve

  # Add to the shopping list and tick it off
  picky shopping add bananas
  picky shopping set <id> --in-cart

  # Copy the legacy JSON files into SQLite
  picky migrate --from jsonfile:./data --to sqlite:picky.db`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if apiURL != "" {
				cfg.APIURL = apiURL
			}
			logger = logging.Setup(cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug|info|warn|error")
	root.PersistentFlags().StringVar(&apiURL, "api", "", "API base URL used by the item commands")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newHealthCmd(),
		newListAllCmd(),
	)
	root.AddCommand(newItemCmds()...)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
