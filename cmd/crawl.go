package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospector-cli/internal/config"
	"github.com/sells-group/prospector-cli/internal/pipeline"
	"github.com/sells-group/prospector-cli/internal/table"
)

var (
	crawlQuery    string
	crawlDescribe string
	crawlSource   string
	crawlMaxPages int
	crawlOutput   string
	crawlXLSX     string
	crawlResume   bool
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Harvest candidates from a search source and enrich each one",
	Long: "Walks result pages of the configured search source, writes unique candidates to the output table, " +
		"then fetches every candidate page and fills in the enrichment columns.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		applyCrawlFlags(cfg)

		if crawlDescribe != "" && !crawlResume {
			q, err := generateQuery(ctx, crawlDescribe)
			if err != nil {
				return err
			}
			cfg.Search.Query = q
			zap.L().Info("generated search query", zap.String("query", q))
		}

		env, err := initCrawl(ctx, crawlResume)
		if err != nil {
			return err
		}
		defer env.Close()

		res, runErr := env.Pipeline.Run(ctx)
		if res != nil {
			printCrawlSummary(os.Stdout, res, env.Table.Path())
		}
		if runErr != nil {
			return eris.Wrap(runErr, "crawl")
		}

		if cfg.Output.XLSXPath != "" {
			if err := exportTable(env.Table.Path(), cfg.Output.XLSXPath); err != nil {
				return err
			}
			zap.L().Info("exported xlsx", zap.String("path", cfg.Output.XLSXPath))
		}
		return nil
	},
}

// applyCrawlFlags overlays explicitly set flags on the loaded config.
func applyCrawlFlags(c *config.Config) {
	if crawlQuery != "" {
		c.Search.Query = crawlQuery
	}
	if crawlSource != "" {
		c.Search.Source = crawlSource
	}
	if crawlMaxPages > 0 {
		c.Search.MaxPages = crawlMaxPages
	}
	if crawlOutput != "" {
		c.Output.Path = crawlOutput
	}
	if crawlXLSX != "" {
		c.Output.XLSXPath = crawlXLSX
	}
}

func generateQuery(ctx context.Context, description string) (string, error) {
	if err := cfg.Validate("query"); err != nil {
		return "", err
	}
	gen, err := buildGenerator(cfg)
	if err != nil {
		return "", err
	}
	q, err := gen.Generate(ctx, description)
	if err != nil {
		return "", eris.Wrap(err, "generate query")
	}
	return q, nil
}

func printCrawlSummary(w io.Writer, res *pipeline.Result, path string) {
	_, _ = fmt.Fprintf(w, "run %s: %d candidates, %d enriched, %d skipped, %d without record -> %s\n",
		truncateID(res.RunID), res.Candidates, res.Enriched, res.Skipped, res.NoRecord, path)
}

// exportTable converts the CSV table at in to an XLSX workbook at out.
func exportTable(in, out string) error {
	header, rows, err := table.Load(in)
	if err != nil {
		return eris.Wrap(err, "export: load table")
	}
	if err := table.ExportXLSX(out, header, rows); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}

func init() {
	crawlCmd.Flags().StringVar(&crawlQuery, "query", "", "search query (overrides search.query)")
	crawlCmd.Flags().StringVar(&crawlDescribe, "describe", "", "describe the target leads and generate the search query")
	crawlCmd.Flags().StringVar(&crawlSource, "source", "", "harvest source: serp, jina or places")
	crawlCmd.Flags().IntVar(&crawlMaxPages, "max-pages", 0, "maximum result pages to harvest")
	crawlCmd.Flags().StringVar(&crawlOutput, "output", "", "output CSV path")
	crawlCmd.Flags().StringVar(&crawlXLSX, "xlsx", "", "also export the table to this XLSX path")
	crawlCmd.Flags().BoolVar(&crawlResume, "resume", false, "skip harvesting and enrich rows of the existing table that have no enrichment data")
	crawlCmd.MarkFlagsMutuallyExclusive("query", "describe")
	rootCmd.AddCommand(crawlCmd)
}
