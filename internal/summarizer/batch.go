package summarizer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// SelectBatch finds labelled issues updated at or after since, adds their
// eligible ancestors, and orders the result lowest level first so children
// are summarized before their parents. The returned watermark is the latest
// update time among the selected issues, never earlier than since.
func (s *Summarizer) SelectBatch(ctx context.Context, since time.Time, limit int) ([]string, time.Time, error) {
	me, err := s.identity.Self(ctx)
	if err != nil {
		return nil, since, err
	}
	// The tracker interprets query times in the user's own zone.
	jql := fmt.Sprintf("labels = '%s' and updated >= '%s' ORDER BY updated ASC",
		s.cfg.Label, since.In(me.Location()).Format("2006-01-02 15:04"))
	hits, err := s.cache.Source().Search(ctx, jql, []string{"key", "updated"}, limit)
	if err != nil {
		return nil, since, fmt.Errorf("select batch: %w", err)
	}

	s.cache.Clear()
	watermark := since
	var keys []string
	for _, hit := range hits {
		issue, err := s.cache.Get(ctx, hit.Key)
		if err != nil {
			return nil, since, err
		}
		if !s.IsEligible(issue) {
			continue
		}
		keys = append(keys, issue.Key)
		if issue.Updated.After(watermark) {
			watermark = issue.Updated
		}
	}
	s.logger.Info("Issues updated since",
		"since", since.Format(time.RFC3339), "count", len(keys), "keys", strings.Join(keys, ", "))

	all := append([]string(nil), keys...)
	present := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		present[k] = struct{}{}
	}
	for _, key := range keys {
		ancestors, err := s.cache.Ancestors(ctx, key)
		if err != nil {
			return nil, since, err
		}
		for _, parent := range ancestors {
			if _, ok := present[parent.Key]; ok {
				continue
			}
			if !s.IsEligible(parent) {
				break
			}
			present[parent.Key] = struct{}{}
			all = append(all, parent.Key)
		}
	}

	levels := make(map[string]int, len(all))
	for _, key := range all {
		issue, err := s.cache.Get(ctx, key)
		if err != nil {
			return nil, since, err
		}
		levels[key] = issue.Level()
	}
	sort.SliceStable(all, func(a, b int) bool { return levels[all[a]] < levels[all[b]] })

	s.logger.Info("Batch selected", "total", len(all), "mostRecent", watermark.Format(time.RFC3339))
	return all, watermark, nil
}
