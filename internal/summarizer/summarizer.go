// Package summarizer keeps AI summaries of tracker issues current. Summaries
// are composed bottom-up: children are summarized first and their summaries
// feed the parent's prompt.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"aisum/internal/genai"
	"aisum/internal/issues"
	"aisum/internal/textblock"
)

// DefaultLabel marks issues the summarizer may write to.
const DefaultLabel = "AISummary"

// DefaultActiveLabel forces an issue to count as active.
const DefaultActiveLabel = "active"

// Config selects which issues are summarized and how prompts are rendered.
type Config struct {
	Label           string
	ActiveLabel     string
	AllowedProjects []string
	// LegacyIdentities are display names of accounts that posted summaries
	// before the current one.
	LegacyIdentities []string
	WrapColumn       int
	Templates        Templates
}

// Options control one Summarize call.
type Options struct {
	// MaxDepth bounds how many levels of ineligible descendants are
	// summarized inline. 0 summarizes no children.
	MaxDepth    int
	SendUpdates bool
	Regenerate  bool
	// PromptOnly returns the prompt instead of generating; nothing is written back.
	PromptOnly bool
}

// Result describes one generated summary.
type Result struct {
	Key     string
	Level   int
	Prompt  string
	Summary string
	Posted  bool
}

// Recorder is notified of every generated summary.
type Recorder interface {
	Record(ctx context.Context, r Result) error
}

// Summarizer generates and posts summaries.
type Summarizer struct {
	cache     *issues.Cache
	generator genai.Generator
	identity  *Identity
	cfg       Config
	prompts   *promptSet
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a summarizer. Zero config fields take their defaults.
func New(cache *issues.Cache, gen genai.Generator, cfg Config, logger *slog.Logger) (*Summarizer, error) {
	if cfg.Label == "" {
		cfg.Label = DefaultLabel
	}
	if cfg.ActiveLabel == "" {
		cfg.ActiveLabel = DefaultActiveLabel
	}
	if cfg.WrapColumn <= 0 {
		cfg.WrapColumn = DefaultWrapColumn
	}
	if cfg.Templates == (Templates{}) {
		cfg.Templates = DefaultTemplates()
	}
	prompts, err := compileTemplates(cfg.Templates)
	if err != nil {
		return nil, err
	}
	return &Summarizer{
		cache:     cache,
		generator: gen,
		identity:  NewIdentity(cache.Source()),
		cfg:       cfg,
		prompts:   prompts,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// SetRecorder installs r to receive every generated summary.
func (s *Summarizer) SetRecorder(r Recorder) {
	s.recorder = r
}

// Identity returns the provider for the tracker account summaries are posted as.
func (s *Summarizer) Identity() *Identity {
	return s.identity
}

// Cache returns the issue cache the summarizer reads through.
func (s *Summarizer) Cache() *issues.Cache {
	return s.cache
}

// IsEligible reports whether a summary may be posted to issue: it carries
// the summary label and belongs to an allowed project.
func (s *Summarizer) IsEligible(issue *issues.Issue) bool {
	if !issue.HasLabel(s.cfg.Label) {
		return false
	}
	for _, p := range s.cfg.AllowedProjects {
		if strings.TrimSpace(p) == issue.ProjectKey {
			return true
		}
	}
	return false
}

// depth tracks how far below the last eligible issue the recursion is.
type depth struct {
	current int
	max     int
}

func (d depth) canDescend() bool {
	return d.current < d.max
}

// descend moves one level down. An eligible child restarts the count so it
// gets the full depth for its own summary.
func (d depth) descend(eligible bool) depth {
	if eligible {
		return depth{current: 0, max: d.max}
	}
	return depth{current: d.current + 1, max: d.max}
}

// Summarize returns a summary of issue, regenerating it and any stale
// descendants within range as needed. With SendUpdates, every regenerated
// summary of an eligible issue is written back to the tracker.
func (s *Summarizer) Summarize(ctx context.Context, issue *issues.Issue, opts Options) (string, error) {
	return s.summarize(ctx, issue, opts, depth{max: opts.MaxDepth}, map[string]struct{}{})
}

// path holds the keys being summarized above the current call; a child
// already on it is listed by reference only.
func (s *Summarizer) summarize(ctx context.Context, issue *issues.Issue, opts Options, d depth, path map[string]struct{}) (string, error) {
	path[issue.Key] = struct{}{}
	defer delete(path, issue.Key)

	if !opts.Regenerate && !opts.PromptOnly {
		current, err := s.IsCurrent(ctx, issue)
		if err != nil {
			return "", err
		}
		if current {
			s.logger.Info("Summarizing (using current)", "issue", issue.String())
			return textblock.Get(issue.StatusSummary), nil
		}
	}
	if opts.PromptOnly {
		opts.SendUpdates = false
	}

	s.logger.Info("Summarizing", "issue", issue.String(), "depth", d.current)
	related, err := issue.Children(ctx)
	if err != nil {
		return "", err
	}
	children := make([]childSummary, 0, len(related))
	for _, rel := range related {
		if _, onPath := path[rel.Key]; onPath || !d.canDescend() {
			children = append(children, childSummary{related: rel})
			continue
		}
		child, err := s.cache.Get(ctx, rel.Key)
		if err != nil {
			return "", err
		}
		sub := opts
		sub.Regenerate = false
		sub.PromptOnly = false
		summary, err := s.summarize(ctx, child, sub, d.descend(s.IsEligible(child)), path)
		if err != nil {
			return "", err
		}
		children = append(children, childSummary{related: rel, summary: summary})
	}

	prompt, err := s.buildPrompt(ctx, issue, children)
	if err != nil {
		return "", err
	}
	if opts.PromptOnly {
		return prompt, nil
	}

	s.logger.Info("Summarizing via LLM", "key", issue.Key)
	s.logger.Debug("Prompt", "key", issue.Key, "prompt", prompt)
	out, err := s.generator.Generate(ctx, prompt, []string{genai.EndOfText})
	if err != nil {
		return "", fmt.Errorf("summarize %s: %w", issue.Key, err)
	}
	summary := strings.TrimSpace(out)

	posted := false
	if opts.SendUpdates && s.IsEligible(issue) {
		if err := s.cache.UpdateStatusSummary(ctx, issue, textblock.Upsert(issue.StatusSummary, summary)); err != nil {
			return "", err
		}
		posted = true
	}
	s.record(ctx, Result{Key: issue.Key, Level: issue.Level(), Prompt: prompt, Summary: summary, Posted: posted})
	return summary, nil
}

func (s *Summarizer) record(ctx context.Context, r Result) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, r); err != nil {
		s.logger.Warn("Failed to record summary", "key", r.Key, "error", err.Error())
	}
}

// Prompt returns the prompt Summarize would send for issue, summarizing
// children within maxDepth as needed but posting nothing.
func (s *Summarizer) Prompt(ctx context.Context, issue *issues.Issue, maxDepth int) (string, error) {
	return s.Summarize(ctx, issue, Options{MaxDepth: maxDepth, PromptOnly: true})
}
