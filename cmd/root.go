package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospector-cli/internal/config"
)

var (
	cfg      *config.Config
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "prospector",
	Short: "Harvest leads from search results and enrich them per profile",
	Long: `prospector turns a search query into a lead table.

A crawl runs in two phases. Harvest pages through a search source (Google
SERP, Jina Search or Google Places) and writes every new, complete
candidate to a CSV table. Enrich then visits each candidate URL, extracts
one record with Claude and fills the enrichment columns of its row.

Settings come from config.yaml, .env and PROSPECTOR_* environment
variables. Runs and per-URL outcomes are recorded in a local SQLite
ledger; see "prospector runs".`,
	Example: `  prospector crawl --query 'confeitaria recife site:instagram.com' --xlsx leads.xlsx
  prospector crawl --describe "home bakeries in Recife on Instagram"
  prospector crawl --resume --output leads.csv
  prospector runs list --status failed`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadConfig(logLevel)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// loadConfig reads settings and installs the global logger. A non-empty
// level overrides log.level.
func loadConfig(level string) (*config.Config, error) {
	c, err := config.Load()
	if err != nil {
		return nil, eris.Wrap(err, "load config")
	}
	if level != "" {
		c.Log.Level = level
	}
	if err := config.InitLogger(c.Log); err != nil {
		return nil, eris.Wrap(err, "init logger")
	}
	return c, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
