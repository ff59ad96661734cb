package summarizer

import (
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/x/ansi"

	"aisum/internal/errors"
	"aisum/internal/issues"
)

// DefaultWrapColumn is the width comment bodies and child summaries are
// filled to inside a prompt.
const DefaultWrapColumn = 78

const (
	dateLayout    = "Monday, January 02, 2006"
	commentLayout = "2006-01-02 15:04:05-07:00"
	indent        = "  "
)

// Templates hold the audience-specific instructions placed at the top of a
// prompt. Each is a text/template rendered with .IssueType and .Today.
type Templates struct {
	// Default addresses software engineers and is used below level 3.
	Default string `toml:"default"`
	// Product addresses product managers and is used at level 3.
	Product string `toml:"product"`
	// Executive addresses corporate leaders and is used from level 4 up.
	Executive string `toml:"executive"`
}

// DefaultTemplates returns the built-in instructions.
func DefaultTemplates() Templates {
	return Templates{
		Default: `You are an AI assistant summarizing a Jira {{.IssueType}} for software engineers.
Provide a concise summary focusing on:

1. Technical details and implementation challenges
2. Decisions on technical approaches or tools
3. Blockers or dependencies affecting progress
4. Overall purpose and current status
5. Relevant information from child issues
6. Recent, impactful updates or changes

Use only the provided information. Limit your summary to 100 words or
fewer, with no additional formatting. Today's date is {{.Today}}.`,
		Product: `You are an AI assistant summarizing a Jira {{.IssueType}} for product
managers. Provide a concise summary focusing on (in order of importance):

1. High-level purpose and current status
2. Overall progress and timeline adherence
3. Major risks or obstacles to completion
4. Key decisions impacting the product roadmap
5. Recent, impactful updates or changes and their statuses
6. Summarizing and tying together relevant and new information that makes sense to include in the summary.
Do not include a list of names or identifying numbers of child issues in the summary

Use only the provided information. Limit your summary to 100 words or fewer,
with no additional formatting. Today's date is {{.Today}}.`,
		Executive: `You are an AI assistant summarizing a Jira {{.IssueType}} for corporate leaders. Provide a concise summary
focusing on:

1. High-level overview of progress towards the goal
2. Significant milestones achieved or upcoming
3. Major risks or opportunities identified
4. Overall purpose and current status
5. Key information from child issues
6. Recent, impactful updates affecting the outcome

Use only the provided information. Limit your summary to 100 words
or fewer, with no additional formatting. Today's date is
{{.Today}}.`,
	}
}

// LoadTemplates reads a TOML file with a [prompts] table. Keys left out keep
// their built-in text.
//
//	[prompts]
//	default = "..."
//	product = "..."
//	executive = "..."
func LoadTemplates(path string) (Templates, error) {
	var doc struct {
		Prompts Templates `toml:"prompts"`
	}
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return Templates{}, errors.New(errors.InvalidInput, "failed to read prompt templates "+path, err)
	}
	t := DefaultTemplates()
	if doc.Prompts.Default != "" {
		t.Default = doc.Prompts.Default
	}
	if doc.Prompts.Product != "" {
		t.Product = doc.Prompts.Product
	}
	if doc.Prompts.Executive != "" {
		t.Executive = doc.Prompts.Executive
	}
	return t, nil
}

type promptSet struct {
	engineering *template.Template
	product     *template.Template
	executive   *template.Template
}

func compileTemplates(t Templates) (*promptSet, error) {
	var ps promptSet
	for _, p := range []struct {
		name string
		text string
		dst  **template.Template
	}{
		{"default", t.Default, &ps.engineering},
		{"product", t.Product, &ps.product},
		{"executive", t.Executive, &ps.executive},
	} {
		tmpl, err := template.New(p.name).Option("missingkey=error").Parse(p.text)
		if err != nil {
			return nil, errors.New(errors.InvalidInput, "bad "+p.name+" prompt template", err)
		}
		*p.dst = tmpl
	}
	return &ps, nil
}

func (ps *promptSet) render(level int, issueType string, today time.Time) (string, error) {
	tmpl := ps.engineering
	switch {
	case level == 3:
		tmpl = ps.product
	case level >= 4:
		tmpl = ps.executive
	}
	var sb strings.Builder
	err := tmpl.Execute(&sb, struct {
		IssueType string
		Today     string
	}{issueType, today.Format(dateLayout)})
	if err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(sb.String()), nil
}

// fill re-flows text into lines of at most width columns, each prefixed by a
// two space indent. Runs of whitespace, newlines included, collapse to one space.
func fill(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	wrapped := ansi.Wrap(strings.Join(words, " "), width-len(indent), "")
	lines := strings.Split(wrapped, "\n")
	for i, line := range lines {
		lines[i] = indent + strings.TrimRight(line, " ")
	}
	return strings.Join(lines, "\n")
}

type childSummary struct {
	related issues.RelatedIssue
	summary string
}

func relationPhrase(how string) string {
	switch how {
	case issues.HowParentLink:
		return "is a child of the parent issue"
	case issues.HowEpicLink:
		return "is a child of the Epic issue"
	}
	return how
}

// buildPrompt assembles the full generation prompt for issue.
func (s *Summarizer) buildPrompt(ctx context.Context, issue *issues.Issue, children []childSummary) (string, error) {
	var blocker string
	if issue.Blocked {
		if issue.BlockedReason != "" {
			blocker = "\nThis issue is blocked because:\n" + issue.BlockedReason + "\n"
		} else {
			blocker = "\nThis issue is blocked.\n"
		}
	}

	comments, err := issue.Comments(ctx)
	if err != nil {
		return "", err
	}
	var commentBlock strings.Builder
	for _, c := range comments {
		fmt.Fprintf(&commentBlock, "On %s, %s said:\n", c.Created.Format(commentLayout), c.Author)
		commentBlock.WriteString(fill(c.Body, s.cfg.WrapColumn) + "\n")
	}

	related, err := issue.Related(ctx)
	if err != nil {
		return "", err
	}
	var relatedBlock strings.Builder
	for _, rel := range related {
		if rel.IsChild() {
			continue
		}
		other, err := s.cache.Get(ctx, rel.Key)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&relatedBlock, "* %s %s %s\n", issue.Key, relationPhrase(rel.How), other)
	}
	for _, child := range children {
		if child.summary == "" {
			other, err := s.cache.Get(ctx, child.related.Key)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&relatedBlock, "* %s %s %s\n", issue.Key, child.related.How, other)
			continue
		}
		fmt.Fprintf(&relatedBlock, "* %s %s %s, and %s can be summarized as:\n",
			issue.Key, child.related.How, child.related.Key, child.related.Key)
		relatedBlock.WriteString(fill(child.summary, s.cfg.WrapColumn) + "\n")
	}

	today := s.now()
	instructions, err := s.prompts.render(issue.Level(), issue.IssueType, today)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s - %s\n", issue.Key, issue.Summary)
	fmt.Fprintf(&sb, "Status/Resolution: %s/%s\n", issue.Status, issue.Resolution)
	sb.WriteString(blocker + "\n")
	sb.WriteString("\n=== Description ===\n" + issue.Description + "\n")
	sb.WriteString("\n=== Comments ===\n" + commentBlock.String() + "\n")
	sb.WriteString("\n=== Related Issues ===\n" + relatedBlock.String() + "\n")
	description := sb.String()

	var prompt strings.Builder
	prompt.WriteString("You are a helpful assistant who is an expert in software development.\n")
	prompt.WriteString(instructions + "\n")
	prompt.WriteString("* Use only the information below to create your summary.\n")
	prompt.WriteString("* Include only the text of your summary in the response with no formatting.\n")
	prompt.WriteString("* Limit your summary to 100 words or less.\n")
	fmt.Fprintf(&prompt, "* Today is %s.\n\n", today.Format(dateLayout))
	prompt.WriteString("```\n" + description + "\n```\n")
	return prompt.String(), nil
}
