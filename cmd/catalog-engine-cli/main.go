// Command catalog-engine-cli seeds, searches and chats with the catalog
// from a terminal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
)

// persistent flags
var (
	cfgFile    string
	outputJSON bool
	verbose    bool
	noColor    bool
)

// set by PersistentPreRunE before any command runs
var (
	cfg    *config.Config
	logger *observability.Logger
	ui     *UI
)

var rootCmd = &cobra.Command{
	Use:   "catalog-engine-cli",
	Short: "Catalog Engine CLI for seeding, search and chat",
	Long: `Catalog Engine CLI manages a product catalog and answers questions about it.

Use this tool to:
- Apply schema migrations and seed the catalog from YAML
- Backfill product embeddings
- Run structured, semantic and hybrid searches
- Ask questions or hold a conversation with the shopping assistant

All commands support --json for automation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		// logs go to stderr so --json output stays parseable
		lc := observability.LogConfig{Level: "warn", Format: "console", Output: os.Stderr, ServiceName: "catalog-engine-cli"}
		if verbose {
			lc.Level = "debug"
		}
		if outputJSON {
			lc.Format = "json"
		}
		logger = observability.NewLogger(lc)
		ui = NewUI(outputJSON, noColor)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", os.Getenv("CONFIG_PATH"), "YAML config file; environment variables apply on top")
	flags.BoolVar(&outputJSON, "json", false, "print results as JSON on stdout")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")
	flags.BoolVar(&noColor, "no-color", false, "disable colour")

	rootCmd.AddCommand(
		newMigrateCmd(), newSeedCmd(), newBackfillCmd(),
		newSearchCmd(), newClassifyCmd(), newCountCmd(), newStatsCmd(),
		newAskCmd(), newChatCmd(),
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openApp(ctx context.Context, opts app.Options) (*app.App, error) {
	a, err := app.New(ctx, cfg, logger, opts)
	if err != nil {
		return nil, fmt.Errorf("initialise catalog engine: %w", err)
	}
	return a, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
