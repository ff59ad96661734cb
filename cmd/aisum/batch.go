package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"aisum/internal/bot"
	"aisum/internal/scheduler"
)

var (
	batchLimit  int
	batchDepth  int
	batchSince  string
	batchDryRun bool

	botSchedule string
	botOnce     bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Summarize labelled issues updated since the last batch",
	Long: `Select labelled issues updated since the stored watermark, add their labelled
ancestors, and summarize them children first with write-back. The watermark
only advances when the whole batch succeeded.

Examples:
  aisum batch
  aisum batch --since 2024-06-01 --dry-run
  aisum batch --limit 50 --depth 1`,
	Run: runBatch,
}

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run batches on a schedule",
	Long: `Run "aisum batch" repeatedly. A failed batch is logged and retried on the
next tick from the same watermark.

Schedules:
  every 30m          fixed interval (minimum 1m)
  daily at 02:00     once a day, local time
  */15 8-18 * * 1-5  five-field cron

Examples:
  aisum bot
  aisum bot --schedule "every 10m"`,
	Run: runBot,
}

func init() {
	for _, c := range []*cobra.Command{batchCmd, botCmd} {
		c.Flags().IntVar(&batchLimit, "limit", 0, "Maximum issues selected per batch (default: bot.batchLimit)")
		c.Flags().IntVarP(&batchDepth, "depth", "d", -1, "Levels of unlabelled children to summarize inline (default: bot.maxDepth)")
		c.Flags().StringVar(&batchSince, "since", "", "Start of the first window when no watermark is stored (RFC 3339, YYYY-MM-DD or e.g. 48h)")
	}
	batchCmd.Flags().BoolVar(&batchDryRun, "dry-run", false, "Only show which issues would be summarized")
	botCmd.Flags().StringVar(&botSchedule, "schedule", "", "Schedule expression (default: bot.schedule)")
	botCmd.Flags().BoolVar(&botOnce, "once", false, "Run one batch immediately and exit")

	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(botCmd)
}

func mustGetBot(a *app) *bot.Bot {
	cfg := bot.Config{BatchLimit: a.cfg.Bot.BatchLimit, MaxDepth: a.cfg.Bot.MaxDepth}
	if batchLimit > 0 {
		cfg.BatchLimit = batchLimit
	}
	if batchDepth >= 0 {
		cfg.MaxDepth = batchDepth
	}
	since := a.cfg.Bot.Since
	if batchSince != "" {
		since = batchSince
	}
	t, err := bot.ParseSince(since, time.Now())
	if err != nil {
		fatal("%v", err)
	}
	cfg.Since = t
	return bot.New(a.sum, a.store(), cfg, a.logger.With("component", "bot"))
}

func runBatch(cmd *cobra.Command, args []string) {
	a := mustGetApp(!batchDryRun)
	defer a.close()
	ctx := context.Background()
	b := mustGetBot(a)

	if batchDryRun {
		since, err := b.Since(ctx)
		if err != nil {
			fatal("%v", err)
		}
		limit := a.cfg.Bot.BatchLimit
		if batchLimit > 0 {
			limit = batchLimit
		}
		keys, mark, err := a.sum.SelectBatch(ctx, since, limit)
		if err != nil {
			fatal("%v", err)
		}
		out := bot.Report{Since: since, Watermark: mark, Keys: keys}
		emit(out, func() {
			fmt.Printf("Since %s: %d issues\n", since.Format(time.RFC3339), len(keys))
			for _, k := range keys {
				fmt.Printf("  %s\n", keyColor.Sprint(k))
			}
		})
		return
	}

	report, err := b.RunBatch(ctx)
	if report != nil {
		emit(report, func() { printReport(report) })
	}
	if err != nil {
		fatal("%v", err)
	}
}

func printReport(r *bot.Report) {
	status := okColor.Sprint("ok")
	if r.Failed != "" {
		status = warnColor.Sprintf("stopped at %s", r.Failed)
	}
	fmt.Printf("Batch %s: %s\n", dimColor.Sprint(r.BatchID), status)
	fmt.Printf("  Window:    %s .. %s\n", r.Since.Format(time.RFC3339), r.Watermark.Format(time.RFC3339))
	fmt.Printf("  Issues:    %d (%s)\n", len(r.Keys), strings.Join(r.Keys, ", "))
	fmt.Printf("  Generated: %d, posted: %d in %.1fs\n", r.Generated, r.Posted, r.Duration)
}

func runBot(cmd *cobra.Command, args []string) {
	a := mustGetApp(true)
	defer a.close()
	b := mustGetBot(a)

	expr := a.cfg.Bot.Schedule
	if botSchedule != "" {
		expr = botSchedule
	}
	schedule, err := scheduler.Parse(expr)
	if err != nil {
		fatal("%v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := scheduler.Config{RunImmediately: true}
	if botOnce {
		cfg.MaxRuns = 1
	}
	runner := scheduler.New(schedule, func(ctx context.Context) error {
		report, err := b.RunBatch(ctx)
		if report != nil && currentFormat() == FormatHuman {
			printReport(report)
		}
		return err
	}, cfg, a.logger.With("component", "scheduler"))

	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		fatal("%v", err)
	}
	if last := runner.Last(); botOnce && last != nil && !last.Succeeded() {
		os.Exit(1)
	}
}
