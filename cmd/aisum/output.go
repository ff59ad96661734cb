package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
	"gopkg.in/yaml.v3"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatHuman OutputFormat = "human"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

var (
	keyColor  = color.New(color.FgCyan, color.Bold)
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	dimColor  = color.New(color.Faint)
)

func currentFormat() OutputFormat {
	switch f := OutputFormat(strings.ToLower(outputFormat)); f {
	case FormatHuman, FormatJSON, FormatYAML:
		return f
	default:
		fatal("unsupported format: %s (valid: human, json, yaml)", outputFormat)
		return FormatHuman
	}
}

// emit writes v as JSON or YAML, or calls human for the default format.
func emit(v interface{}, human func()) {
	switch currentFormat() {
	case FormatJSON:
		printJSON(v)
	case FormatYAML:
		printYAML(v)
	default:
		human()
	}
}

// printJSON outputs data as formatted JSON
func printJSON(data interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func printYAML(data interface{}) {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	_ = enc.Encode(data)
	_ = enc.Close()
}

// header prints an issue key and title line.
func header(key, title string) {
	fmt.Printf("%s %s\n", keyColor.Sprint(key), title)
}

// printDiff shows a word-level diff between two summaries.
func printDiff(before, after string) {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(before, after, false))
	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			b.WriteString(color.New(color.FgGreen).Sprintf("{+%s+}", d.Text))
		case diffmatchpatch.DiffDelete:
			b.WriteString(color.New(color.FgRed).Sprintf("[-%s-]", d.Text))
		default:
			b.WriteString(d.Text)
		}
	}
	fmt.Println(b.String())
}

// formatTimeAgo formats a time as "Xm ago", "Xh ago", etc.
func formatTimeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}
