package issues_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"aisum/internal/issues"
	"aisum/internal/testutil"
)

func TestLevelOf(t *testing.T) {
	tests := []struct {
		issueType string
		level     int
		known     bool
	}{
		{"Sub-task", 1, true},
		{"Story", 2, true},
		{"Bug", 2, true},
		{"Epic", 3, true},
		{"Release Milestone", 3, true},
		{"Feature", 4, true},
		{"Initiative", 4, true},
		{"Outcome", 5, true},
		{"Strategic Goal", 6, true},
		{"Widget", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.issueType, func(t *testing.T) {
			level, ok := issues.LevelOf(tt.issueType)
			if level != tt.level || ok != tt.known {
				t.Errorf("LevelOf(%q) = %d, %v; want %d, %v", tt.issueType, level, ok, tt.level, tt.known)
			}
		})
	}
}

func TestRelated_DeduplicatesByKey(t *testing.T) {
	tracker := testutil.NewFakeTracker()
	root := story("PROJ-1")
	root.Links = issues.Links{
		IssueLinks: []issues.IssueLink{
			{Type: "Blocks", Inward: "is blocked by", Outward: "blocks", InwardKey: "PROJ-2"},
			{Type: "Relates", Inward: "relates to", Outward: "relates to", OutwardKey: "PROJ-3"},
			{Type: "Blocks", Inward: "is blocked by", Outward: "blocks", OutwardKey: "PROJ-2"},
		},
		Subtasks:   []string{"PROJ-3", "PROJ-4"},
		ParentLink: "PROJ-2",
		EpicLink:   "PROJ-9",
	}
	tracker.Add(root)
	child := story("PROJ-4")
	child.Links.ParentLink = "PROJ-1"
	tracker.Add(child)
	cache := newCache(tracker, 10)

	issue := mustGet(t, cache, "PROJ-1")
	related, err := issue.Related(context.Background())
	if err != nil {
		t.Fatalf("Related() error = %v", err)
	}

	want := []issues.RelatedIssue{
		{Key: "PROJ-2", How: "is blocked by"},
		{Key: "PROJ-3", How: "relates to"},
		{Key: "PROJ-4", How: issues.HowSubtask},
		{Key: "PROJ-9", How: issues.HowEpicLink},
	}
	if !reflect.DeepEqual(related, want) {
		t.Errorf("Related() = %v, want %v", related, want)
	}

	seen := map[string]bool{}
	for _, r := range related {
		if seen[r.Key] {
			t.Errorf("duplicate key %s", r.Key)
		}
		seen[r.Key] = true
	}
}

func TestRelated_DropsSelfLinks(t *testing.T) {
	tracker := testutil.NewFakeTracker()
	root := story("PROJ-1")
	root.Links = issues.Links{
		IssueLinks: []issues.IssueLink{
			{Type: "Relates", Inward: "relates to", Outward: "relates to", OutwardKey: "PROJ-1"},
		},
		Subtasks:   []string{"PROJ-1", "PROJ-5"},
		ParentLink: "PROJ-1",
	}
	tracker.Add(root)
	issue := mustGet(t, newCache(tracker, 10), "PROJ-1")

	related, err := issue.Related(context.Background())
	if err != nil {
		t.Fatalf("Related() error = %v", err)
	}
	want := []issues.RelatedIssue{{Key: "PROJ-5", How: issues.HowSubtask}}
	if !reflect.DeepEqual(related, want) {
		t.Errorf("Related() = %v, want %v", related, want)
	}
}

func TestRelated_LoadedOnce(t *testing.T) {
	tracker := testutil.NewFakeTracker()
	tracker.Add(story("PROJ-1"))
	issue := mustGet(t, newCache(tracker, 10), "PROJ-1")

	for i := 0; i < 3; i++ {
		if _, err := issue.Related(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if tracker.Calls("GetLinks") != 1 || tracker.Calls("Search") != 1 {
		t.Errorf("GetLinks=%d Search=%d, want 1 each", tracker.Calls("GetLinks"), tracker.Calls("Search"))
	}
}

func TestChildren_EpicUsesEpicQuery(t *testing.T) {
	tracker := testutil.NewFakeTracker()
	epic := story("PROJ-10")
	epic.Fields.IssueType = "Epic"
	tracker.Add(epic)
	for _, key := range []string{"PROJ-11", "PROJ-12"} {
		s := story(key)
		s.Links.EpicLink = "PROJ-10"
		tracker.Add(s)
	}
	cache := newCache(tracker, 10)

	children, err := mustGet(t, cache, "PROJ-10").Children(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []issues.RelatedIssue{
		{Key: "PROJ-11", How: issues.HowEpicOf},
		{Key: "PROJ-12", How: issues.HowEpicOf},
	}
	if !reflect.DeepEqual(children, want) {
		t.Errorf("Children() = %v, want %v", children, want)
	}
	if tracker.Calls("Search") != 0 {
		t.Error("epics should not run the parent-link search")
	}
}

func TestChildren_NonEpicUsesParentLinkSearch(t *testing.T) {
	tracker := testutil.NewFakeTracker()
	feature := story("PROJ-20")
	feature.Fields.IssueType = "Feature"
	tracker.Add(feature)
	epic := story("PROJ-21")
	epic.Fields.IssueType = "Epic"
	epic.Links.ParentLink = "PROJ-20"
	tracker.Add(epic)
	cache := newCache(tracker, 10)

	children, err := mustGet(t, cache, "PROJ-20").Children(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 1 || children[0].Key != "PROJ-21" || children[0].How != issues.HowParentOf {
		t.Errorf("Children() = %v", children)
	}
	if tracker.Calls("EpicIssues") != 0 {
		t.Error("non-epics should not query epic issues")
	}
}

func TestRelatedIssue_IsChild(t *testing.T) {
	tests := []struct {
		how   string
		child bool
	}{
		{issues.HowSubtask, true},
		{issues.HowEpicOf, true},
		{issues.HowParentOf, true},
		{issues.HowEpicLink, false},
		{issues.HowParentLink, false},
		{issues.HowFeatureLink, false},
		{"blocks", false},
	}
	for _, tt := range tests {
		if got := (issues.RelatedIssue{Key: "X-1", How: tt.how}).IsChild(); got != tt.child {
			t.Errorf("IsChild(%q) = %v, want %v", tt.how, got, tt.child)
		}
	}
}

func TestParent(t *testing.T) {
	tracker := testutil.NewFakeTracker()
	sub := story("PROJ-2")
	sub.Fields.IssueType = "Sub-task"
	sub.Fields.ParentKey = "PROJ-1"
	sub.Links.EpicLink = "PROJ-9"
	tracker.Add(sub)

	linked := story("PROJ-3")
	linked.Links.EpicLink = "PROJ-9"
	tracker.Add(linked)

	orphan := story("PROJ-4")
	orphan.Links.FeatureLink = "PROJ-8"
	tracker.Add(orphan)
	cache := newCache(tracker, 10)
	ctx := context.Background()

	tests := []struct {
		key  string
		want string
	}{
		{"PROJ-2", "PROJ-1"},
		{"PROJ-3", "PROJ-9"},
		{"PROJ-4", ""},
	}
	for _, tt := range tests {
		got, err := mustGet(t, cache, tt.key).Parent(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("Parent(%s) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestAncestors(t *testing.T) {
	tracker := testutil.NewFakeTracker()
	s := story("PROJ-1")
	s.Links.EpicLink = "PROJ-2"
	tracker.Add(s)
	e := story("PROJ-2")
	e.Fields.IssueType = "Epic"
	e.Links.ParentLink = "PROJ-3"
	tracker.Add(e)
	f := story("PROJ-3")
	f.Fields.IssueType = "Feature"
	tracker.Add(f)
	cache := newCache(tracker, 10)

	ancestors, err := cache.Ancestors(context.Background(), "PROJ-1")
	if err != nil {
		t.Fatal(err)
	}
	if got := keys(ancestors); !reflect.DeepEqual(got, []string{"PROJ-2", "PROJ-3"}) {
		t.Errorf("Ancestors() = %v", got)
	}
}

func TestAncestors_CycleTerminates(t *testing.T) {
	tracker := testutil.NewFakeTracker()
	a := story("PROJ-1")
	a.Links.ParentLink = "PROJ-2"
	tracker.Add(a)
	b := story("PROJ-2")
	b.Links.ParentLink = "PROJ-3"
	tracker.Add(b)
	c := story("PROJ-3")
	c.Links.ParentLink = "PROJ-1"
	tracker.Add(c)
	cache := newCache(tracker, 10)

	done := make(chan []*issues.Issue, 1)
	go func() {
		ancestors, err := cache.Ancestors(context.Background(), "PROJ-1")
		if err != nil {
			t.Error(err)
		}
		done <- ancestors
	}()

	select {
	case ancestors := <-done:
		if got := keys(ancestors); !reflect.DeepEqual(got, []string{"PROJ-2", "PROJ-3"}) {
			t.Errorf("Ancestors() = %v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Ancestors() did not terminate on a parent cycle")
	}
}

func TestDescendants(t *testing.T) {
	tracker := testutil.NewFakeTracker()
	f := story("PROJ-1")
	f.Fields.IssueType = "Feature"
	tracker.Add(f)
	e := story("PROJ-2")
	e.Fields.IssueType = "Epic"
	e.Links.ParentLink = "PROJ-1"
	tracker.Add(e)
	s1 := story("PROJ-3")
	s1.Links.EpicLink = "PROJ-2"
	tracker.Add(s1)
	s2 := story("PROJ-4")
	s2.Links.EpicLink = "PROJ-2"
	tracker.Add(s2)
	cache := newCache(tracker, 10)

	desc, err := cache.Descendants(context.Background(), "PROJ-1")
	if err != nil {
		t.Fatal(err)
	}
	if got := keys(desc); !reflect.DeepEqual(got, []string{"PROJ-2", "PROJ-3", "PROJ-4"}) {
		t.Errorf("Descendants() = %v", got)
	}
}

func TestIssue_LazyChangelogAndComments(t *testing.T) {
	tracker := testutil.NewFakeTracker()
	s := story("PROJ-1")
	s.Fields.Comments = []issues.Comment{{Author: "Ann", Created: day, Body: "first"}}
	s.Fields.Assignee = "Bob"
	s.Changelog = []issues.ChangelogEntry{
		{Author: "Cat", Created: day, Changes: []issues.Change{{Field: "status", From: "New", To: "In Progress"}}},
		{Author: "Ann", Created: day.Add(time.Hour), Changes: []issues.Change{{Field: "priority"}}},
	}
	tracker.Add(s)
	issue := mustGet(t, newCache(tracker, 10), "PROJ-1")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := issue.Changelog(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if tracker.Calls("GetChangelog") != 1 {
		t.Errorf("GetChangelog calls = %d, want 1", tracker.Calls("GetChangelog"))
	}

	comment, err := issue.LastComment(ctx)
	if err != nil || comment == nil || comment.Body != "first" {
		t.Errorf("LastComment() = %v, %v", comment, err)
	}
	if tracker.Calls("GetComments") != 0 {
		t.Error("inline comments should not be refetched")
	}

	last, err := issue.LastChange(ctx)
	if err != nil || last == nil || last.Author != "Ann" {
		t.Errorf("LastChange() = %v, %v", last, err)
	}

	contributors, err := issue.Contributors(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(contributors, []string{"Ann", "Cat"}) {
		t.Errorf("Contributors() = %v", contributors)
	}
}

func TestIssue_String(t *testing.T) {
	tracker := testutil.NewFakeTracker()
	tracker.Add(story("PROJ-1"))
	issue := mustGet(t, newCache(tracker, 10), "PROJ-1")

	want := "PROJ-1 (Story) 2024-06-03 09:00:00 - Story PROJ-1 (In Progress/Unresolved)"
	if got := issue.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func keys(list []*issues.Issue) []string {
	out := make([]string, len(list))
	for i, issue := range list {
		out[i] = issue.Key
	}
	return out
}
