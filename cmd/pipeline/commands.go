package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/portfolio-evaluator/internal/app"
	apperrors "github.com/portfolio-evaluator/internal/errors"
	"github.com/portfolio-evaluator/internal/service"
	"github.com/portfolio-evaluator/internal/types"
	"github.com/spf13/cobra"
)

var (
	debugMode     bool
	backfillWeeks int
	processLimit  int
)

var rootCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Crypto portfolio extraction and evaluation",
	Long: `Extracts crypto portfolios from social media screenshots and evaluates
them against a buy-and-hold benchmark.

Examples:
  # Run one post end to end
  pipeline evaluate https://www.reddit.com/r/CryptoCurrency/comments/abc123/my_portfolio/

  # Interpret only, nothing is recorded past the post flags
  pipeline evaluate --debug <url>

  # Refresh this week's prices and backfill a year of history
  pipeline sweep
  pipeline backfill --weeks 52`,
	SilenceUsage: true,
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <url>...",
	Short: "Run the pipeline for one or more post URLs",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEvaluate,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Store this week's spot price for every tracked asset",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			report, err := a.Sweeper.RefreshCurrentWeek(ctx)
			if err != nil {
				return err
			}
			return printJSON(report)
		})
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Store historical weekly prices for every tracked asset",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			weeks := backfillWeeks
			if weeks <= 0 {
				weeks = a.Config.Worker.BackfillWeeks
			}
			report, err := a.Sweeper.Backfill(ctx, weeks)
			if err != nil {
				return err
			}
			return printJSON(report)
		})
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Store new image posts from the configured communities",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return printJSON(a.Ingestor.IngestNew(ctx))
		})
	},
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run the pipeline for stored posts that were never interpreted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			limit := processLimit
			if limit <= 0 {
				limit = a.Config.Worker.ProcessBatchSize
			}
			report, err := a.Ingestor.ProcessPending(ctx, limit)
			if err != nil {
				return err
			}
			return printJSON(report)
		})
	},
}

func init() {
	evaluateCmd.Flags().BoolVar(&debugMode, "debug", false, "stop after interpretation")
	backfillCmd.Flags().IntVar(&backfillWeeks, "weeks", 0, "weeks to backfill (default WORKER_BACKFILL_WEEKS)")
	processCmd.Flags().IntVar(&processLimit, "limit", 0, "posts to process (default WORKER_PROCESS_BATCH_SIZE)")

	rootCmd.AddCommand(evaluateCmd, sweepCmd, backfillCmd, ingestCmd, processCmd)
}

// withApp loads the configuration, connects and runs fn until it returns or
// the process is interrupted
func withApp(cmd *cobra.Command, fn func(context.Context, *app.App) error) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	if debugMode {
		cfg.Pipeline.DebugMode = true
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

// runReport is what the CLI prints for each post
type runReport struct {
	URL string `json:"url"`
	*service.RunResult
	Error string `json:"error,omitempty"`
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		failed := 0
		for _, url := range args {
			report := runReport{URL: url}
			result, err := a.Pipeline.Run(ctx, url)
			switch {
			case err != nil:
				report.Error = err.Error()
				failed++
			default:
				report.RunResult = result
				if result.Err != nil {
					report.Error = result.Err.Error()
				}
				if isFailure(result) {
					failed++
				}
			}
			if err := printJSON(report); err != nil {
				return err
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d posts did not finish", failed, len(args))
		}
		return nil
	})
}

// isFailure reports whether a run ended short of a terminal outcome.
// Posts that are not portfolios are a normal result.
func isFailure(result *service.RunResult) bool {
	switch result.Outcome {
	case types.OutcomeEvaluated, types.OutcomeNotPortfolio, types.OutcomeInterpreted:
		return false
	}
	return !apperrors.HasCode(result.Err, apperrors.CodeNotPortfolio)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
