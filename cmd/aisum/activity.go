package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	activeDays      int
	activeRecursive bool

	contribAssignees  bool
	contribActiveDays int
)

var activeCmd = &cobra.Command{
	Use:   "active <issue-key>",
	Short: "Show whether an issue and its children are active",
	Long: `An issue is active when it carries the active label or someone changed a
field other than links, labels or the summary within the window.

Examples:
  aisum active PROJ-100
  aisum active PROJ-100 --days 14 --recursive`,
	Args: cobra.ExactArgs(1),
	Run:  runActive,
}

var contributorsCmd = &cobra.Command{
	Use:   "contributors <issue-key>",
	Short: "List everyone who worked on an issue tree",
	Long: `List the people who changed or commented on an issue or anything below it.

Examples:
  aisum contributors PROJ-100
  aisum contributors PROJ-100 --assignees --active-days 7`,
	Args: cobra.ExactArgs(1),
	Run:  runContributors,
}

func init() {
	activeCmd.Flags().IntVar(&activeDays, "days", 7, "Activity window in days")
	activeCmd.Flags().BoolVarP(&activeRecursive, "recursive", "r", false, "Consider the whole subtree")
	contributorsCmd.Flags().BoolVar(&contribAssignees, "assignees", false, "Include assignees")
	contributorsCmd.Flags().IntVar(&contribActiveDays, "active-days", 0, "Only count issues active within this many days (0 = all)")
	rootCmd.AddCommand(activeCmd)
	rootCmd.AddCommand(contributorsCmd)
}

type activeOutput struct {
	Key            string   `json:"key" yaml:"key"`
	Active         bool     `json:"active" yaml:"active"`
	ActiveChildren []string `json:"activeChildren" yaml:"activeChildren"`
}

func runActive(cmd *cobra.Command, args []string) {
	a := mustGetApp(false)
	defer a.close()
	ctx := context.Background()

	issue, err := a.cache.Get(ctx, strings.ToUpper(args[0]))
	if err != nil {
		fatal("%v", err)
	}
	active, err := a.sum.IsActive(ctx, issue, activeDays, activeRecursive)
	if err != nil {
		fatal("%v", err)
	}
	children, err := a.sum.ActiveChildren(ctx, issue, activeDays, activeRecursive)
	if err != nil {
		fatal("%v", err)
	}
	out := activeOutput{Key: issue.Key, Active: active, ActiveChildren: []string{}}
	for _, c := range children {
		out.ActiveChildren = append(out.ActiveChildren, c.Key)
	}

	emit(out, func() {
		state := dimColor.Sprint("inactive")
		if active {
			state = okColor.Sprint("active")
		}
		header(issue.Key, fmt.Sprintf("%s (%s, last %d days)", issue.Summary, state, activeDays))
		for _, c := range children {
			fmt.Printf("  %s %s [%s]\n", keyColor.Sprint(c.Key), c.Summary, c.Status)
		}
	})
}

func runContributors(cmd *cobra.Command, args []string) {
	a := mustGetApp(false)
	defer a.close()
	ctx := context.Background()

	issue, err := a.cache.Get(ctx, strings.ToUpper(args[0]))
	if err != nil {
		fatal("%v", err)
	}
	people, err := a.sum.RollupContributors(ctx, issue, contribAssignees, contribActiveDays)
	if err != nil {
		fatal("%v", err)
	}
	emit(map[string]interface{}{"key": issue.Key, "contributors": people}, func() {
		header(issue.Key, issue.Summary)
		for _, p := range people {
			fmt.Printf("  %s\n", p)
		}
	})
}
