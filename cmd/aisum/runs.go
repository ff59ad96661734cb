package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"aisum/internal/storage"
)

var (
	runsKey     string
	runsBatch   string
	runsLimit   int
	runsPrompts bool
	pruneOlder  string
)

var runsCmd = &cobra.Command{
	Use:     "runs",
	Aliases: []string{"history"},
	Short:   "Show generated summaries recorded by batches",
	Long: `List the summaries generated by "aisum batch" and "aisum bot", newest first.

Examples:
  aisum runs --key PROJ-123
  aisum runs --batch 2f0c... --prompts --format yaml
  aisum runs prune --older-than 720h`,
	Run: runRuns,
}

var runsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old run records",
	Run:   runRunsPrune,
}

func init() {
	runsCmd.Flags().StringVar(&runsKey, "key", "", "Only runs for this issue")
	runsCmd.Flags().StringVar(&runsBatch, "batch", "", "Only runs from this batch")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum runs to show")
	runsCmd.Flags().BoolVar(&runsPrompts, "prompts", false, "Include the prompts sent")
	runsPruneCmd.Flags().StringVar(&pruneOlder, "older-than", "720h", "Delete runs older than this")
	runsCmd.AddCommand(runsPruneCmd)
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) {
	db, _, done := mustGetState()
	defer done()

	runs, err := db.Runs(context.Background(), storage.RunFilter{
		Key:         strings.ToUpper(runsKey),
		BatchID:     runsBatch,
		Limit:       runsLimit,
		WithPrompts: runsPrompts,
	})
	if err != nil {
		fatal("%v", err)
	}
	emit(runs, func() {
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return
		}
		for i, r := range runs {
			if i > 0 {
				fmt.Println()
			}
			posted := dimColor.Sprint("not posted")
			if r.Posted {
				posted = okColor.Sprint("posted")
			}
			fmt.Printf("%s level %d, %s, %s %s\n", keyColor.Sprint(r.Key), r.Level, posted,
				formatTimeAgo(r.CreatedAt), dimColor.Sprint(r.BatchID))
			fmt.Println(r.Summary)
			if runsPrompts {
				fmt.Println(dimColor.Sprint(r.Prompt))
			}
		}
	})
}

func runRunsPrune(cmd *cobra.Command, args []string) {
	age, err := time.ParseDuration(pruneOlder)
	if err != nil {
		fatal("invalid --older-than: %v", err)
	}
	db, _, done := mustGetState()
	defer done()

	n, err := db.PruneRuns(context.Background(), time.Now().Add(-age))
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Deleted %d runs.\n", n)
}
