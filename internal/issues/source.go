package issues

import (
	"context"
	"time"
)

// Logical field names accepted by Source.UpdateFields. Adapters translate
// them into tracker-specific field identifiers.
const (
	FieldStatusSummary = "statusSummary"
	FieldLabels        = "labels"
)

// ChangelogFieldStatusSummary is the display name the tracker records in the
// changelog when the status summary field is edited.
const ChangelogFieldStatusSummary = "Status Summary"

// Source is the capability the engine needs from an issue tracker. Every
// implementation is expected to throttle its own outbound calls and to return
// a MalformedResponse error (never a retry) when a body has the wrong shape.
type Source interface {
	// GetIssue fetches the scalar fields of one issue, including comments
	// when the tracker returns them inline.
	GetIssue(ctx context.Context, key string) (*Fields, error)
	// GetLinks fetches the relation-bearing fields of one issue.
	GetLinks(ctx context.Context, key string) (*Links, error)
	// GetChangelog returns up to limit changelog entries starting at start, oldest first.
	GetChangelog(ctx context.Context, key string, start, limit int) ([]ChangelogEntry, error)
	// GetComments returns all comments, oldest first.
	GetComments(ctx context.Context, key string) ([]Comment, error)
	// Search runs a JQL query and returns matching issues in query order.
	Search(ctx context.Context, jql string, fields []string, limit int) ([]SearchHit, error)
	// EpicIssues returns the keys of the issues belonging to an epic.
	EpicIssues(ctx context.Context, epicKey string) ([]string, error)
	// UpdateFields writes the given logical fields of an issue.
	UpdateFields(ctx context.Context, key string, fields map[string]interface{}) error
	// Myself returns the identity the source is authenticated as.
	Myself(ctx context.Context) (*User, error)
}

// Fields are the scalar fields of an issue as returned by a Source.
type Fields struct {
	Key           string
	Summary       string
	Description   string
	IssueType     string
	ProjectKey    string
	ParentKey     string
	Status        string
	Resolution    string
	Labels        []string
	Updated       time.Time
	StatusSummary string
	Assignee      string
	Blocked       bool
	BlockedReason string
	// Comments is nil when the source did not include them.
	Comments []Comment
}

// IssueLink is one bidirectional link. Exactly one of InwardKey and
// OutwardKey is set.
type IssueLink struct {
	Type       string
	Inward     string
	Outward    string
	InwardKey  string
	OutwardKey string
}

// Links are the relation-bearing fields of an issue.
type Links struct {
	IssueLinks  []IssueLink
	Subtasks    []string
	EpicLink    string
	ParentLink  string
	FeatureLink string
}

// SearchHit is one row of a search result.
type SearchHit struct {
	Key     string
	Updated time.Time
}

// User identifies a tracker account.
type User struct {
	Key         string
	DisplayName string
	TimeZone    string
}

// Location returns the user's time zone, falling back to UTC when the zone
// is empty or unknown.
func (u *User) Location() *time.Location {
	if u == nil || u.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
