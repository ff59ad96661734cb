package summarizer

import (
	"context"

	"aisum/internal/issues"
)

// AddSummaryLabel marks issue for summarization. It is a no-op when the label
// is already present.
func (s *Summarizer) AddSummaryLabel(ctx context.Context, issue *issues.Issue) error {
	if issue.HasLabel(s.cfg.Label) {
		return nil
	}
	s.logger.Debug("Adding label", "label", s.cfg.Label, "key", issue.Key)
	return s.cache.UpdateLabels(ctx, issue, append(issue.Labels(), s.cfg.Label))
}

// RemoveSummaryLabel stops summarization of issue.
func (s *Summarizer) RemoveSummaryLabel(ctx context.Context, issue *issues.Issue) error {
	if !issue.HasLabel(s.cfg.Label) {
		return nil
	}
	labels := make([]string, 0, len(issue.Labels()))
	for _, l := range issue.Labels() {
		if l != s.cfg.Label {
			labels = append(labels, l)
		}
	}
	s.logger.Debug("Removing label", "label", s.cfg.Label, "key", issue.Key)
	return s.cache.UpdateLabels(ctx, issue, labels)
}

// AddSummaryLabelToDescendants labels key and everything below it. It returns
// the keys visited, the root last.
func (s *Summarizer) AddSummaryLabelToDescendants(ctx context.Context, key string) ([]string, error) {
	descendants, err := s.cache.Descendants(ctx, key)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(descendants)+1)
	for _, d := range descendants {
		keys = append(keys, d.Key)
	}
	keys = append(keys, key)
	for _, k := range keys {
		issue, err := s.cache.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if err := s.AddSummaryLabel(ctx, issue); err != nil {
			return nil, err
		}
	}
	return keys, nil
}
