// Package testutil provides in-memory fakes for the tracker and the
// generation service.
package testutil

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"aisum/internal/errors"
	"aisum/internal/issues"
)

// FakeIssue is one issue held by a FakeTracker.
type FakeIssue struct {
	Fields    issues.Fields
	Links     issues.Links
	Changelog []issues.ChangelogEntry
	Comments  []issues.Comment
}

// Update records one UpdateFields call.
type Update struct {
	Key    string
	Fields map[string]interface{}
}

// FakeTracker is an in-memory issues.Source. It understands the handful of
// JQL shapes the engine issues: parent-link, epic-or-parent-link and the
// labelled batch query.
type FakeTracker struct {
	Me  issues.User
	Now func() time.Time

	// SearchFunc, when set, answers every search instead of the built-in JQL handling.
	SearchFunc func(jql string, limit int) ([]issues.SearchHit, error)
	// Fail makes the named method ("GetIssue", "UpdateFields", ...) return the error.
	Fail map[string]error

	mu      sync.Mutex
	issues  map[string]*FakeIssue
	calls   map[string]int
	updates []Update
}

// NewFakeTracker creates an empty tracker authenticated as a summarizer bot.
func NewFakeTracker() *FakeTracker {
	return &FakeTracker{
		Me:     issues.User{Key: "aisum-bot", DisplayName: "AI Summarizer", TimeZone: "UTC"},
		Now:    time.Now,
		Fail:   make(map[string]error),
		issues: make(map[string]*FakeIssue),
		calls:  make(map[string]int),
	}
}

// Add stores an issue, replacing any issue with the same key.
func (f *FakeTracker) Add(issue *FakeIssue) *FakeIssue {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues[issue.Fields.Key] = issue
	return issue
}

// Issue returns the stored issue for key, or nil.
func (f *FakeTracker) Issue(key string) *FakeIssue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issues[key]
}

// Calls returns how many times method was invoked.
func (f *FakeTracker) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// TotalCalls returns the number of calls across all methods.
func (f *FakeTracker) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// Updates returns every UpdateFields call so far.
func (f *FakeTracker) Updates() []Update {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Update(nil), f.updates...)
}

// ResetCalls zeroes the call counters.
func (f *FakeTracker) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
}

func (f *FakeTracker) enter(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	return f.Fail[method]
}

func (f *FakeTracker) lookup(key string) (*FakeIssue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[key]
	if !ok {
		return nil, errors.Newf(errors.NotFound, "issue %s not found", key)
	}
	return issue, nil
}

func (f *FakeTracker) GetIssue(ctx context.Context, key string) (*issues.Fields, error) {
	if err := f.enter("GetIssue"); err != nil {
		return nil, err
	}
	issue, err := f.lookup(key)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fields := issue.Fields
	fields.Labels = append([]string(nil), issue.Fields.Labels...)
	return &fields, nil
}

func (f *FakeTracker) GetLinks(ctx context.Context, key string) (*issues.Links, error) {
	if err := f.enter("GetLinks"); err != nil {
		return nil, err
	}
	issue, err := f.lookup(key)
	if err != nil {
		return nil, err
	}
	links := issue.Links
	return &links, nil
}

func (f *FakeTracker) GetChangelog(ctx context.Context, key string, start, limit int) ([]issues.ChangelogEntry, error) {
	if err := f.enter("GetChangelog"); err != nil {
		return nil, err
	}
	issue, err := f.lookup(key)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	log := issue.Changelog
	if start >= len(log) {
		return nil, nil
	}
	end := len(log)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return append([]issues.ChangelogEntry(nil), log[start:end]...), nil
}

func (f *FakeTracker) GetComments(ctx context.Context, key string) ([]issues.Comment, error) {
	if err := f.enter("GetComments"); err != nil {
		return nil, err
	}
	issue, err := f.lookup(key)
	if err != nil {
		return nil, err
	}
	return append([]issues.Comment(nil), issue.Comments...), nil
}

var (
	parentLinkJQL   = regexp.MustCompile(`^'Parent Link' = '([^']+)'$`)
	descendantJQL   = regexp.MustCompile(`^'Epic Link' = '([^']+)' or 'Parent Link' = '([^']+)'$`)
	labelUpdatedJQL = regexp.MustCompile(`^labels = '([^']+)' and updated >= '([^']+)' ORDER BY updated ASC$`)
)

func (f *FakeTracker) Search(ctx context.Context, jql string, fields []string, limit int) ([]issues.SearchHit, error) {
	if err := f.enter("Search"); err != nil {
		return nil, err
	}
	if f.SearchFunc != nil {
		return f.SearchFunc(jql, limit)
	}

	var match func(*FakeIssue) bool
	byUpdated := false
	switch {
	case parentLinkJQL.MatchString(jql):
		key := parentLinkJQL.FindStringSubmatch(jql)[1]
		match = func(i *FakeIssue) bool { return i.Links.ParentLink == key }
	case descendantJQL.MatchString(jql):
		key := descendantJQL.FindStringSubmatch(jql)[1]
		match = func(i *FakeIssue) bool { return i.Links.EpicLink == key || i.Links.ParentLink == key }
	case labelUpdatedJQL.MatchString(jql):
		m := labelUpdatedJQL.FindStringSubmatch(jql)
		since, err := time.ParseInLocation("2006-01-02 15:04", m[2], f.Me.Location())
		if err != nil {
			return nil, errors.New(errors.InvalidInput, "bad updated clause", err)
		}
		match = func(i *FakeIssue) bool {
			return hasString(i.Fields.Labels, m[1]) && !i.Fields.Updated.Before(since)
		}
		byUpdated = true
	default:
		return nil, errors.Newf(errors.InvalidInput, "unsupported query %q", jql)
	}

	f.mu.Lock()
	var hits []issues.SearchHit
	for _, issue := range f.issues {
		if match(issue) {
			hits = append(hits, issues.SearchHit{Key: issue.Fields.Key, Updated: issue.Fields.Updated})
		}
	}
	f.mu.Unlock()

	sort.Slice(hits, func(a, b int) bool {
		if byUpdated && !hits[a].Updated.Equal(hits[b].Updated) {
			return hits[a].Updated.Before(hits[b].Updated)
		}
		return hits[a].Key < hits[b].Key
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *FakeTracker) EpicIssues(ctx context.Context, epicKey string) ([]string, error) {
	if err := f.enter("EpicIssues"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for key, issue := range f.issues {
		if issue.Links.EpicLink == epicKey {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// UpdateFields applies the update and records a changelog entry authored by Me.
func (f *FakeTracker) UpdateFields(ctx context.Context, key string, fields map[string]interface{}) error {
	if err := f.enter("UpdateFields"); err != nil {
		return err
	}
	issue, err := f.lookup(key)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.Now()
	entry := issues.ChangelogEntry{Author: f.Me.DisplayName, Created: now}
	for name, value := range fields {
		switch name {
		case issues.FieldStatusSummary:
			text, ok := value.(string)
			if !ok {
				return errors.Newf(errors.InvalidInput, "status summary must be a string, got %T", value)
			}
			entry.Changes = append(entry.Changes, issues.Change{
				Field: issues.ChangelogFieldStatusSummary, From: issue.Fields.StatusSummary, To: text,
			})
			issue.Fields.StatusSummary = text
		case issues.FieldLabels:
			labels, ok := value.([]string)
			if !ok {
				return errors.Newf(errors.InvalidInput, "labels must be []string, got %T", value)
			}
			entry.Changes = append(entry.Changes, issues.Change{
				Field: "labels",
				From:  strings.Join(issue.Fields.Labels, " "),
				To:    strings.Join(labels, " "),
			})
			issue.Fields.Labels = append([]string(nil), labels...)
		default:
			return errors.Newf(errors.InvalidInput, "unknown field %s", name)
		}
	}
	issue.Fields.Updated = now
	issue.Changelog = append(issue.Changelog, entry)
	f.updates = append(f.updates, Update{Key: key, Fields: fields})
	return nil
}

func (f *FakeTracker) Myself(ctx context.Context) (*issues.User, error) {
	if err := f.enter("Myself"); err != nil {
		return nil, err
	}
	me := f.Me
	return &me, nil
}

func hasString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
