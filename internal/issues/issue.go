// Package issues models tracker issues and their hierarchy, and memoizes them
// in a bounded cache that is the single authority for "do we already have it".
package issues

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ChangelogPageSize is the window requested when loading an issue's changelog.
const ChangelogPageSize = 1000

// Change is a single field edit within a changelog entry.
type Change struct {
	Field string
	From  string
	To    string
}

// ChangelogEntry is a set of changes made together, by one author.
type ChangelogEntry struct {
	Author  string
	Created time.Time
	Changes []Change
}

// HasField reports whether any change in the entry touched field.
func (e ChangelogEntry) HasField(field string) bool {
	for _, c := range e.Changes {
		if c.Field == field {
			return true
		}
	}
	return false
}

// Comment is a comment on an issue.
type Comment struct {
	Author  string
	Created time.Time
	Body    string
}

// levels ranks issue types from leaf work items up to strategic goals.
var levels = map[string]int{
	"Sub-task": 1,

	"Bug":               2,
	"Change Request":    2,
	"Closed Loop":       2,
	"Component Upgrade": 2,
	"Enhancement":       2,
	"Incident":          2,
	"Risk":              2,
	"Spike":             2,
	"Story":             2,
	"Support Patch":     2,
	"Task":              2,
	"Ticket":            2,

	"Epic":              3,
	"Release Milestone": 3,

	"Feature":         4,
	"Feature Request": 4,
	"Initiative":      4,
	"Release Tracker": 4,
	"Requirement":     4,

	"Outcome": 5,

	"Strategic Goal": 6,
}

// EpicType is the aggregate type whose children are found by querying the
// epic rather than by following parent links.
const EpicType = "Epic"

// LevelOf returns the hierarchy level of an issue type. Unknown types report
// level 0 and ok=false.
func LevelOf(issueType string) (level int, ok bool) {
	level, ok = levels[issueType]
	return level, ok
}

// Issue is one tracker issue. Scalar fields are loaded on construction; the
// changelog, comments and relations are loaded on first use and kept for the
// lifetime of the value.
type Issue struct {
	Key           string
	Summary       string
	Description   string
	IssueType     string
	ProjectKey    string
	Status        string
	Resolution    string
	StatusSummary string
	Updated       time.Time
	Assignee      string
	Blocked       bool
	BlockedReason string

	labels    map[string]struct{}
	parentKey string

	source Source
	logger *slog.Logger

	mu              sync.Mutex
	changelog       []ChangelogEntry
	changelogLoaded bool
	comments        []Comment
	commentsLoaded  bool
	related         []RelatedIssue
	relatedLoaded   bool
}

// NewIssue builds an Issue from fetched fields. src is used for the lazy
// loads and is not owned by the issue.
func NewIssue(f *Fields, src Source, logger *slog.Logger) *Issue {
	resolution := f.Resolution
	if resolution == "" {
		resolution = "Unresolved"
	}
	i := &Issue{
		Key:           f.Key,
		Summary:       f.Summary,
		Description:   f.Description,
		IssueType:     f.IssueType,
		ProjectKey:    f.ProjectKey,
		Status:        f.Status,
		Resolution:    resolution,
		StatusSummary: f.StatusSummary,
		Updated:       f.Updated,
		Assignee:      f.Assignee,
		Blocked:       f.Blocked,
		BlockedReason: f.BlockedReason,
		labels:        make(map[string]struct{}, len(f.Labels)),
		parentKey:     f.ParentKey,
		source:        src,
		logger:        logger,
	}
	for _, l := range f.Labels {
		i.labels[l] = struct{}{}
	}
	if f.Comments != nil {
		i.comments = f.Comments
		i.commentsLoaded = true
	}
	return i
}

// String renders the one-line description used in logs and prompts.
func (i *Issue) String() string {
	return fmt.Sprintf("%s (%s) %s - %s (%s/%s)",
		i.Key, i.IssueType, i.Updated.Format("2006-01-02 15:04:05"),
		i.Summary, i.Status, i.Resolution)
}

// Level returns the issue's hierarchy level, 0 for unknown types.
func (i *Issue) Level() int {
	level, _ := LevelOf(i.IssueType)
	return level
}

// HasLabel reports whether the issue carries label.
func (i *Issue) HasLabel(label string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.labels[label]
	return ok
}

// Labels returns the issue's labels, sorted.
func (i *Issue) Labels() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]string, 0, len(i.labels))
	for l := range i.labels {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (i *Issue) setLabels(labels []string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.labels = make(map[string]struct{}, len(labels))
	for _, l := range labels {
		i.labels[l] = struct{}{}
	}
}

// Changelog returns the issue's changelog, oldest first.
func (i *Issue) Changelog(ctx context.Context) ([]ChangelogEntry, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.changelogLoaded {
		return i.changelog, nil
	}
	i.logger.Debug("Retrieving changelog", "key", i.Key)
	log, err := i.source.GetChangelog(ctx, i.Key, 0, ChangelogPageSize)
	if err != nil {
		return nil, fmt.Errorf("changelog for %s: %w", i.Key, err)
	}
	i.changelog = log
	i.changelogLoaded = true
	return i.changelog, nil
}

// LastChange returns the most recent changelog entry, or nil.
func (i *Issue) LastChange(ctx context.Context) (*ChangelogEntry, error) {
	log, err := i.Changelog(ctx)
	if err != nil || len(log) == 0 {
		return nil, err
	}
	last := log[len(log)-1]
	return &last, nil
}

// Comments returns the issue's comments, oldest first.
func (i *Issue) Comments(ctx context.Context) ([]Comment, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.commentsLoaded {
		return i.comments, nil
	}
	i.logger.Debug("Retrieving comments", "key", i.Key)
	comments, err := i.source.GetComments(ctx, i.Key)
	if err != nil {
		return nil, fmt.Errorf("comments for %s: %w", i.Key, err)
	}
	i.comments = comments
	i.commentsLoaded = true
	return i.comments, nil
}

// LastComment returns the most recent comment, or nil.
func (i *Issue) LastComment(ctx context.Context) (*Comment, error) {
	comments, err := i.Comments(ctx)
	if err != nil || len(comments) == 0 {
		return nil, err
	}
	last := comments[len(comments)-1]
	return &last, nil
}

// Contributors returns everyone who changed or commented on the issue, sorted.
func (i *Issue) Contributors(ctx context.Context) ([]string, error) {
	log, err := i.Changelog(ctx)
	if err != nil {
		return nil, err
	}
	comments, err := i.Comments(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, e := range log {
		if e.Author != "" {
			seen[e.Author] = struct{}{}
		}
	}
	for _, c := range comments {
		if c.Author != "" {
			seen[c.Author] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}
