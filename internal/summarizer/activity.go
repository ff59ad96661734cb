package summarizer

import (
	"context"
	"sort"
	"strings"
	"time"

	"aisum/internal/issues"
)

// Changes to these fields do not make an issue active.
var passiveFields = map[string]struct{}{
	"Jira Link":                        {},
	issues.ChangelogFieldStatusSummary: {},
	"Test Link":                        {},
	"labels":                           {},
}

// IsActive reports whether issue carries the active label or has a
// changelog entry within the last withinDays days touching a field other
// than the bookkeeping ones. With recursive, an active descendant also counts.
func (s *Summarizer) IsActive(ctx context.Context, issue *issues.Issue, withinDays int, recursive bool) (bool, error) {
	return s.isActive(ctx, issue, withinDays, recursive, map[string]struct{}{})
}

func (s *Summarizer) isActive(ctx context.Context, issue *issues.Issue, withinDays int, recursive bool, visited map[string]struct{}) (bool, error) {
	visited[issue.Key] = struct{}{}
	if issue.HasLabel(s.cfg.ActiveLabel) {
		s.logger.Debug("Issue is active: has the active label", "key", issue.Key)
		return true, nil
	}

	changelog, err := issue.Changelog(ctx)
	if err != nil {
		return false, err
	}
	cutoff := s.now().Add(-time.Duration(withinDays) * 24 * time.Hour)
	for _, entry := range changelog {
		if !entry.Created.After(cutoff) {
			continue
		}
		for _, c := range entry.Changes {
			if _, passive := passiveFields[c.Field]; !passive {
				s.logger.Debug("Issue is active",
					"key", issue.Key, "fields", changedFields(entry), "on", entry.Created)
				return true, nil
			}
		}
	}

	if recursive {
		children, err := issue.Children(ctx)
		if err != nil {
			return false, err
		}
		for _, rel := range children {
			if _, seen := visited[rel.Key]; seen {
				continue
			}
			child, err := s.cache.Get(ctx, rel.Key)
			if err != nil {
				return false, err
			}
			active, err := s.isActive(ctx, child, withinDays, recursive, visited)
			if err != nil {
				return false, err
			}
			if active {
				s.logger.Debug("Issue is active because a child is", "key", issue.Key, "child", child.Key)
				return true, nil
			}
		}
	}
	s.logger.Debug("Issue is inactive", "key", issue.Key)
	return false, nil
}

func changedFields(entry issues.ChangelogEntry) string {
	names := make([]string, len(entry.Changes))
	for i, c := range entry.Changes {
		names[i] = c.Field
	}
	return strings.Join(names, ",")
}

// ActiveChildren returns the children of issue that are active on their own,
// or with recursive, every active issue in the subtree below it. The result
// is sorted by key.
func (s *Summarizer) ActiveChildren(ctx context.Context, issue *issues.Issue, withinDays int, recursive bool) ([]*issues.Issue, error) {
	found := map[string]*issues.Issue{}
	visited := map[string]struct{}{issue.Key: {}}
	if err := s.activeChildren(ctx, issue, withinDays, recursive, found, visited); err != nil {
		return nil, err
	}
	out := make([]*issues.Issue, 0, len(found))
	for _, i := range found {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Key < out[b].Key })
	return out, nil
}

func (s *Summarizer) activeChildren(ctx context.Context, issue *issues.Issue, withinDays int, recursive bool, found map[string]*issues.Issue, visited map[string]struct{}) error {
	children, err := issue.Children(ctx)
	if err != nil {
		return err
	}
	for _, rel := range children {
		if _, seen := visited[rel.Key]; seen {
			continue
		}
		visited[rel.Key] = struct{}{}
		child, err := s.cache.Get(ctx, rel.Key)
		if err != nil {
			return err
		}
		active, err := s.IsActive(ctx, child, withinDays, false)
		if err != nil {
			return err
		}
		if active {
			found[child.Key] = child
		}
		if recursive {
			if err := s.activeChildren(ctx, child, withinDays, recursive, found, visited); err != nil {
				return err
			}
		}
	}
	return nil
}

// RollupContributors returns the sorted display names of everyone who
// changed or commented on issue or any issue below it. With activeDays > 0,
// only issues active within that window contribute their people.
func (s *Summarizer) RollupContributors(ctx context.Context, issue *issues.Issue, includeAssignee bool, activeDays int) ([]string, error) {
	people := map[string]struct{}{}
	visited := map[string]struct{}{}
	if err := s.rollup(ctx, issue, includeAssignee, activeDays, people, visited); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(people))
	for p := range people {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Summarizer) rollup(ctx context.Context, issue *issues.Issue, includeAssignee bool, activeDays int, people, visited map[string]struct{}) error {
	visited[issue.Key] = struct{}{}
	children, err := issue.Children(ctx)
	if err != nil {
		return err
	}
	for _, rel := range children {
		if _, seen := visited[rel.Key]; seen {
			continue
		}
		child, err := s.cache.Get(ctx, rel.Key)
		if err != nil {
			return err
		}
		if err := s.rollup(ctx, child, includeAssignee, activeDays, people, visited); err != nil {
			return err
		}
	}

	if activeDays > 0 {
		active, err := s.IsActive(ctx, issue, activeDays, false)
		if err != nil || !active {
			return err
		}
	}
	contributors, err := issue.Contributors(ctx)
	if err != nil {
		return err
	}
	for _, c := range contributors {
		people[c] = struct{}{}
	}
	if includeAssignee && issue.Assignee != "" {
		people[issue.Assignee] = struct{}{}
	}
	return nil
}
