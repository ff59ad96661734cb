package summarizer

import (
	"context"
	"time"

	"aisum/internal/issues"
	"aisum/internal/textblock"
)

// Never is returned when an issue has no recorded summary.
var Never = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// LastSummaryUpdate returns when a summarizer identity last wrote the status
// summary of issue, or Never.
func (s *Summarizer) LastSummaryUpdate(ctx context.Context, issue *issues.Issue) (time.Time, error) {
	last, err := issue.LastChange(ctx)
	if err != nil {
		return Never, err
	}
	// A summary is never part of issue creation, so a real one always has a changelog entry.
	if last == nil || !textblock.Has(issue.StatusSummary) {
		return Never, nil
	}

	authors, err := s.summaryAuthors(ctx)
	if err != nil {
		return Never, err
	}
	changelog, err := issue.Changelog(ctx)
	if err != nil {
		return Never, err
	}
	updated := Never
	for _, entry := range changelog {
		if _, ok := authors[entry.Author]; !ok {
			continue
		}
		if entry.HasField(issues.ChangelogFieldStatusSummary) && entry.Created.After(updated) {
			updated = entry.Created
		}
	}
	return updated, nil
}

func (s *Summarizer) summaryAuthors(ctx context.Context) (map[string]struct{}, error) {
	me, err := s.identity.Self(ctx)
	if err != nil {
		return nil, err
	}
	authors := map[string]struct{}{me.DisplayName: {}}
	for _, name := range s.cfg.LegacyIdentities {
		authors[name] = struct{}{}
	}
	return authors, nil
}

// IsCurrent reports whether the embedded summary of issue is newer than the
// issue itself and each of its direct children. Issues without the summary
// label are never current.
func (s *Summarizer) IsCurrent(ctx context.Context, issue *issues.Issue) (bool, error) {
	if !issue.HasLabel(s.cfg.Label) {
		s.logger.Debug("Summary not current: issue may not be summarized", "key", issue.Key)
		return false, nil
	}
	last, err := s.LastSummaryUpdate(ctx, issue)
	if err != nil {
		return false, err
	}
	if issue.Updated.After(last) {
		s.logger.Debug("Summary not current: issue updated since",
			"key", issue.Key, "updated", issue.Updated, "summary", last)
		return false, nil
	}
	children, err := issue.Children(ctx)
	if err != nil {
		return false, err
	}
	for _, rel := range children {
		child, err := s.cache.Get(ctx, rel.Key)
		if err != nil {
			return false, err
		}
		if child.Updated.After(last) {
			s.logger.Debug("Summary not current: child updated since", "key", issue.Key, "child", child.Key)
			return false, nil
		}
	}
	s.logger.Debug("Summary is current", "key", issue.Key)
	return true, nil
}
