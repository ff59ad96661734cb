package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "Manage the summary label",
	Long: `Add or remove the label that marks issues for summarization.

Examples:
  aisum label add PROJ-123 PROJ-124
  aisum label remove PROJ-123
  aisum label tree PROJ-100`,
}

var labelAddCmd = &cobra.Command{
	Use:   "add <issue-key>...",
	Short: "Label issues for summarization",
	Args:  cobra.MinimumNArgs(1),
	Run:   func(cmd *cobra.Command, args []string) { runLabel(args, true) },
}

var labelRemoveCmd = &cobra.Command{
	Use:   "remove <issue-key>...",
	Short: "Stop summarizing issues",
	Args:  cobra.MinimumNArgs(1),
	Run:   func(cmd *cobra.Command, args []string) { runLabel(args, false) },
}

var labelTreeCmd = &cobra.Command{
	Use:   "tree <issue-key>",
	Short: "Label an issue and everything below it",
	Args:  cobra.ExactArgs(1),
	Run:   runLabelTree,
}

func init() {
	labelCmd.AddCommand(labelAddCmd)
	labelCmd.AddCommand(labelRemoveCmd)
	labelCmd.AddCommand(labelTreeCmd)
	rootCmd.AddCommand(labelCmd)
}

func runLabel(keys []string, add bool) {
	a := mustGetApp(false)
	defer a.close()
	ctx := context.Background()

	var done []string
	for _, key := range keys {
		issue, err := a.cache.Get(ctx, strings.ToUpper(key))
		if err != nil {
			fatal("%v", err)
		}
		if add {
			err = a.sum.AddSummaryLabel(ctx, issue)
		} else {
			err = a.sum.RemoveSummaryLabel(ctx, issue)
		}
		if err != nil {
			fatal("updating labels of %s: %v", issue.Key, err)
		}
		done = append(done, issue.Key)
	}
	emit(map[string]interface{}{"keys": done, "added": add}, func() {
		verb := "Labelled"
		if !add {
			verb = "Unlabelled"
		}
		fmt.Printf("%s %s\n", verb, strings.Join(done, ", "))
	})
}

func runLabelTree(cmd *cobra.Command, args []string) {
	a := mustGetApp(false)
	defer a.close()

	keys, err := a.sum.AddSummaryLabelToDescendants(context.Background(), strings.ToUpper(args[0]))
	if err != nil {
		fatal("%v", err)
	}
	emit(map[string]interface{}{"keys": keys}, func() {
		fmt.Printf("Labelled %d issues: %s\n", len(keys), strings.Join(keys, ", "))
	})
}
