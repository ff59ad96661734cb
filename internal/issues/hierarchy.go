package issues

import (
	"context"
	"fmt"
)

// Relation kinds produced by the resolver. Issue link kinds are taken
// verbatim from the tracker's link type labels.
const (
	HowSubtask     = "has a sub-task"
	HowEpicOf      = "is the Epic issue for"
	HowParentOf    = "is the parent issue of"
	HowEpicLink    = "Epic Link"
	HowParentLink  = "Parent Link"
	HowFeatureLink = "Feature Link"
)

// ChildSearchLimit caps the parent-link query used to find non-epic children.
const ChildSearchLimit = 50

// RelatedIssue is one edge from an issue to another.
type RelatedIssue struct {
	Key string
	How string
}

// IsChild reports whether the edge points down the hierarchy.
func (r RelatedIssue) IsChild() bool {
	switch r.How {
	case HowSubtask, HowEpicOf, HowParentOf:
		return true
	}
	return false
}

// IsParent reports whether the edge points up the hierarchy.
func (r RelatedIssue) IsParent() bool {
	return r.How == HowEpicLink || r.How == HowParentLink
}

func (r RelatedIssue) String() string {
	return r.Key + " " + r.How
}

// Related returns every issue connected to i, each target key at most once.
// The first source to mention a key determines its relation kind.
func (i *Issue) Related(ctx context.Context) ([]RelatedIssue, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.relatedLoaded {
		return i.related, nil
	}

	i.logger.Debug("Retrieving related issues", "key", i.Key)
	links, err := i.source.GetLinks(ctx, i.Key)
	if err != nil {
		return nil, fmt.Errorf("links for %s: %w", i.Key, err)
	}

	var out []RelatedIssue
	// Seeded with the issue itself so self-links are dropped.
	seen := map[string]struct{}{i.Key: {}}
	add := func(key, how string) {
		if key == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, RelatedIssue{Key: key, How: how})
	}

	for _, link := range links.IssueLinks {
		if link.InwardKey != "" {
			add(link.InwardKey, link.Inward)
		} else {
			add(link.OutwardKey, link.Outward)
		}
	}
	for _, key := range links.Subtasks {
		add(key, HowSubtask)
	}
	add(links.EpicLink, HowEpicLink)
	add(links.ParentLink, HowParentLink)
	add(links.FeatureLink, HowFeatureLink)

	if i.IssueType == EpicType {
		keys, err := i.source.EpicIssues(ctx, i.Key)
		if err != nil {
			return nil, fmt.Errorf("epic issues for %s: %w", i.Key, err)
		}
		for _, key := range keys {
			add(key, HowEpicOf)
		}
	} else {
		jql := fmt.Sprintf("'Parent Link' = '%s'", i.Key)
		hits, err := i.source.Search(ctx, jql, []string{"key"}, ChildSearchLimit)
		if err != nil {
			return nil, fmt.Errorf("children of %s: %w", i.Key, err)
		}
		for _, hit := range hits {
			add(hit.Key, HowParentOf)
		}
	}

	i.related = out
	i.relatedLoaded = true
	return i.related, nil
}

// Children returns the related issues that sit below i.
func (i *Issue) Children(ctx context.Context) ([]RelatedIssue, error) {
	related, err := i.Related(ctx)
	if err != nil {
		return nil, err
	}
	var out []RelatedIssue
	for _, r := range related {
		if r.IsChild() {
			out = append(out, r)
		}
	}
	return out, nil
}

// Parent returns the key of i's parent, or "" when it has none. An explicit
// parent wins over Epic Link and Parent Link relations.
func (i *Issue) Parent(ctx context.Context) (string, error) {
	if i.parentKey != "" {
		return i.parentKey, nil
	}
	related, err := i.Related(ctx)
	if err != nil {
		return "", err
	}
	for _, r := range related {
		if r.IsParent() {
			return r.Key, nil
		}
	}
	return "", nil
}
