package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"aisum/internal/genai"
	"aisum/internal/summarizer"
	"aisum/internal/textblock"
)

var (
	sumDepth       int
	sumSendUpdates bool
	sumRegenerate  bool
	sumDiff        bool

	promptDepth  int
	promptTokens bool
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize <issue-key>...",
	Short: "Summarize one or more issues",
	Long: `Summarize issues, reusing summaries that are still current.

Examples:
  aisum summarize PROJ-123
  aisum summarize PROJ-100 --depth 2 --send-updates
  aisum summarize PROJ-100 --regenerate --diff`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSummarize,
}

var promptCmd = &cobra.Command{
	Use:   "prompt <issue-key>",
	Short: "Print the prompt that would be sent for an issue",
	Long: `Print the prompt for an issue without generating or posting anything. Child
summaries within --depth that are stale are generated, never posted.

Examples:
  aisum prompt PROJ-123
  aisum prompt PROJ-100 --depth 1 --tokens`,
	Args: cobra.ExactArgs(1),
	Run:  runPrompt,
}

func init() {
	summarizeCmd.Flags().IntVarP(&sumDepth, "depth", "d", 0, "Levels of unlabelled children to summarize inline")
	summarizeCmd.Flags().BoolVar(&sumSendUpdates, "send-updates", false, "Write summaries back to eligible issues")
	summarizeCmd.Flags().BoolVar(&sumRegenerate, "regenerate", false, "Regenerate even if the stored summary is current")
	summarizeCmd.Flags().BoolVar(&sumDiff, "diff", false, "Show changes against the stored summary")

	promptCmd.Flags().IntVarP(&promptDepth, "depth", "d", 0, "Levels of unlabelled children to summarize inline")
	promptCmd.Flags().BoolVar(&promptTokens, "tokens", false, "Also report the prompt's token count")

	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(promptCmd)
}

type summaryOutput struct {
	Key      string `json:"key" yaml:"key"`
	Title    string `json:"title" yaml:"title"`
	Summary  string `json:"summary" yaml:"summary"`
	Previous string `json:"previous,omitempty" yaml:"previous,omitempty"`
}

func runSummarize(cmd *cobra.Command, args []string) {
	a := mustGetApp(true)
	defer a.close()
	ctx := context.Background()

	var out []summaryOutput
	for _, key := range args {
		issue, err := a.cache.Get(ctx, strings.ToUpper(key))
		if err != nil {
			fatal("%v", err)
		}
		previous := textblock.Get(issue.StatusSummary)
		summary, err := a.sum.Summarize(ctx, issue, summarizer.Options{
			MaxDepth:    sumDepth,
			SendUpdates: sumSendUpdates,
			Regenerate:  sumRegenerate,
		})
		if err != nil {
			fatal("summarizing %s: %v", issue.Key, err)
		}
		out = append(out, summaryOutput{Key: issue.Key, Title: issue.Summary, Summary: summary, Previous: previous})
	}

	emit(out, func() {
		for i, o := range out {
			if i > 0 {
				fmt.Println()
			}
			header(o.Key, o.Title)
			if sumDiff && o.Previous != "" && o.Previous != o.Summary {
				printDiff(o.Previous, o.Summary)
				continue
			}
			fmt.Println(o.Summary)
		}
		a.logger.Info("Cache", "stats", a.cache.Stats().String())
	})
}

type promptOutput struct {
	Key    string `json:"key" yaml:"key"`
	Prompt string `json:"prompt" yaml:"prompt"`
	Tokens int    `json:"tokens,omitempty" yaml:"tokens,omitempty"`
}

func runPrompt(cmd *cobra.Command, args []string) {
	a := mustGetApp(promptDepth > 0 || promptTokens)
	defer a.close()
	ctx := context.Background()

	issue, err := a.cache.Get(ctx, strings.ToUpper(args[0]))
	if err != nil {
		fatal("%v", err)
	}
	prompt, err := a.sum.Prompt(ctx, issue, promptDepth)
	if err != nil {
		fatal("building prompt for %s: %v", issue.Key, err)
	}
	out := promptOutput{Key: issue.Key, Prompt: prompt}
	if promptTokens {
		if out.Tokens, err = genai.CountTokens(ctx, a.genClient, prompt); err != nil {
			fatal("counting tokens: %v", err)
		}
	}

	emit(out, func() {
		fmt.Print(prompt)
		if !strings.HasSuffix(prompt, "\n") {
			fmt.Println()
		}
		if promptTokens {
			fmt.Println(dimColor.Sprintf("-- %d tokens", out.Tokens))
		}
	})
}
