// Package jira implements issues.Source over the Jira REST API (v2 plus the
// agile epic endpoint).
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"aisum/internal/errors"
	"aisum/internal/issues"
	"aisum/internal/slogutil"
	"aisum/internal/stats"
	"aisum/internal/throttle"
	"aisum/internal/version"
)

const (
	// DefaultMaxRetries bounds retries of network errors, 5xx and 429 answers.
	DefaultMaxRetries = 3
	// DefaultRetryBaseDelay is the first retry delay; it doubles per attempt.
	DefaultRetryBaseDelay = 500 * time.Millisecond
	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 30 * time.Second

	maxRetryDelay = 5 * time.Second
	maxBodySize   = 32 << 20
	epicPageSize  = 1000
)

// FieldIDs maps logical fields onto an instance's custom field identifiers.
// Blocked and BlockedReason are optional.
type FieldIDs struct {
	EpicLink      string
	FeatureLink   string
	ParentLink    string
	StatusSummary string
	Blocked       string
	BlockedReason string
}

// Options configures a Client.
type Options struct {
	BaseURL        string
	Token          string
	Fields         FieldIDs
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	// Limiter spaces every HTTP attempt; nil disables throttling.
	Limiter    *throttle.Limiter
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to a Jira server.
type Client struct {
	base       *url.URL
	token      string
	fields     FieldIDs
	maxRetries int
	baseDelay  time.Duration
	limiter    *throttle.Limiter
	http       *http.Client
	logger     *slog.Logger
}

var _ issues.Source = (*Client)(nil)

// New creates a client. The base URL must be absolute.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Newf(errors.InvalidInput, "invalid Jira URL %q", opts.BaseURL)
	}
	c := &Client{
		base:       base,
		token:      opts.Token,
		fields:     opts.Fields,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.RetryBaseDelay,
		limiter:    opts.Limiter,
		http:       opts.HTTPClient,
		logger:     opts.Logger,
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if c.baseDelay <= 0 {
		c.baseDelay = DefaultRetryBaseDelay
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.logger == nil {
		c.logger = slogutil.NewDiscardLogger()
	}
	return c, nil
}

// RemoteError is a non-success answer from Jira.
type RemoteError struct {
	StatusCode int
	Messages   []string
}

func (e *RemoteError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("jira returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("jira returned HTTP %d: %s", e.StatusCode, strings.Join(e.Messages, "; "))
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// do performs one logical request, retrying transport failures, 5xx and 429.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}) ([]byte, error) {
	defer stats.Track(ctx, stats.Fetch)()

	u := *c.base
	u.Path = c.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay << uint(attempt-1)
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}
			c.logger.Debug("Retrying Jira request", "url", u.String(), "attempt", attempt+1, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Acquire(ctx); err != nil {
				return nil, err
			}
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", version.UserAgent())
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode < 300 {
			return data, nil
		}
		remote := parseRemoteError(resp.StatusCode, data)
		if retryable(resp.StatusCode) {
			lastErr = remote
			continue
		}
		return nil, classify(remote)
	}
	return nil, errors.New(errors.RemoteError,
		fmt.Sprintf("%s %s failed after %d attempts", method, path, c.maxRetries+1), lastErr)
}

func parseRemoteError(status int, body []byte) *RemoteError {
	e := &RemoteError{StatusCode: status}
	var doc struct {
		ErrorMessages []string          `json:"errorMessages"`
		Errors        map[string]string `json:"errors"`
	}
	if json.Unmarshal(body, &doc) == nil {
		e.Messages = append(e.Messages, doc.ErrorMessages...)
		for k, v := range doc.Errors {
			e.Messages = append(e.Messages, k+": "+v)
		}
	}
	return e
}

func classify(e *RemoteError) error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return errors.New(errors.NotFound, "issue not found", e)
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.New(errors.Unauthorized, "Jira rejected the credentials", e)
	default:
		return errors.New(errors.RemoteError, "Jira request failed", e)
	}
}

func (c *Client) getIssueDoc(ctx context.Context, key string, fields []string) (*issueDoc, error) {
	q := url.Values{}
	q.Set("fields", strings.Join(fields, ","))
	data, err := c.do(ctx, http.MethodGet, "/rest/api/2/issue/"+key, q, nil)
	if err != nil {
		return nil, err
	}
	var doc issueDoc
	if err := decodeObject("issue "+key, data, &doc); err != nil {
		return nil, err
	}
	if doc.Fields == nil {
		return nil, errors.Newf(errors.MalformedResponse, "issue %s: response has no fields", key)
	}
	return &doc, nil
}

func (c *Client) issueFields() []string {
	fields := []string{
		"summary", "description", "issuetype", "parent", "project", "status",
		"labels", "resolution", "updated", "assignee", "comment",
	}
	for _, id := range []string{c.fields.StatusSummary, c.fields.Blocked, c.fields.BlockedReason} {
		if id != "" {
			fields = append(fields, id)
		}
	}
	return fields
}

// GetIssue fetches the scalar fields of key, comments included.
func (c *Client) GetIssue(ctx context.Context, key string) (*issues.Fields, error) {
	doc, err := c.getIssueDoc(ctx, key, c.issueFields())
	if err != nil {
		return nil, err
	}

	var (
		summary, description string
		updated              string
		labels               []string
		issueType, status    named
		resolution           *named
		project, parent      keyed
		assignee             *person
		comments             commentPage
		statusSummary        string
		blocked, reason      flexString
	)
	f := doc.Fields
	for _, step := range []struct {
		name string
		v    interface{}
	}{
		{"summary", &summary},
		{"description", &description},
		{"updated", &updated},
		{"labels", &labels},
		{"issuetype", &issueType},
		{"status", &status},
		{"resolution", &resolution},
		{"project", &project},
		{"parent", &parent},
		{"assignee", &assignee},
		{"comment", &comments},
	} {
		if err := field(f, step.name, step.v); err != nil {
			return nil, err
		}
	}
	if c.fields.StatusSummary != "" {
		if err := field(f, c.fields.StatusSummary, &statusSummary); err != nil {
			return nil, err
		}
	}
	if c.fields.Blocked != "" {
		if err := field(f, c.fields.Blocked, &blocked); err != nil {
			return nil, err
		}
	}
	if c.fields.BlockedReason != "" {
		if err := field(f, c.fields.BlockedReason, &reason); err != nil {
			return nil, err
		}
	}

	out := &issues.Fields{
		Key:           doc.Key,
		Summary:       summary,
		Description:   description,
		IssueType:     issueType.Name,
		ProjectKey:    project.Key,
		ParentKey:     parent.Key,
		Status:        status.Name,
		Labels:        labels,
		StatusSummary: statusSummary,
		Blocked:       isTrue(string(blocked)),
		BlockedReason: string(reason),
		Comments:      []issues.Comment{},
	}
	if out.Key == "" {
		out.Key = key
	}
	if resolution != nil {
		out.Resolution = resolution.Name
	}
	if assignee != nil {
		out.Assignee = assignee.DisplayName
	}
	if out.Updated, err = parseTime(updated); err != nil {
		return nil, errors.New(errors.MalformedResponse, "issue "+key+": bad updated time", err)
	}
	if out.Comments, err = convertComments(comments.Comments); err != nil {
		return nil, err
	}
	return out, nil
}

func isTrue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes":
		return true
	}
	return false
}

func convertComments(docs []commentDoc) ([]issues.Comment, error) {
	out := make([]issues.Comment, 0, len(docs))
	for _, d := range docs {
		created, err := parseTime(d.Created)
		if err != nil {
			return nil, errors.New(errors.MalformedResponse, "bad comment time", err)
		}
		out = append(out, issues.Comment{Author: d.Author.DisplayName, Created: created, Body: d.Body})
	}
	return out, nil
}

// GetLinks fetches the relation-bearing fields of key.
func (c *Client) GetLinks(ctx context.Context, key string) (*issues.Links, error) {
	fields := []string{"issuelinks", "subtasks"}
	for _, id := range []string{c.fields.EpicLink, c.fields.ParentLink, c.fields.FeatureLink} {
		if id != "" {
			fields = append(fields, id)
		}
	}
	doc, err := c.getIssueDoc(ctx, key, fields)
	if err != nil {
		return nil, err
	}

	var links []issueLinkDoc
	var subtasks []keyed
	if err := field(doc.Fields, "issuelinks", &links); err != nil {
		return nil, err
	}
	if err := field(doc.Fields, "subtasks", &subtasks); err != nil {
		return nil, err
	}

	out := &issues.Links{}
	for _, l := range links {
		link := issues.IssueLink{Type: l.Type.Name, Inward: l.Type.Inward, Outward: l.Type.Outward}
		switch {
		case l.InwardIssue != nil:
			link.InwardKey = l.InwardIssue.Key
		case l.OutwardIssue != nil:
			link.OutwardKey = l.OutwardIssue.Key
		default:
			continue
		}
		out.IssueLinks = append(out.IssueLinks, link)
	}
	for _, s := range subtasks {
		out.Subtasks = append(out.Subtasks, s.Key)
	}
	for _, target := range []struct {
		id  string
		dst *string
	}{
		{c.fields.EpicLink, &out.EpicLink},
		{c.fields.ParentLink, &out.ParentLink},
		{c.fields.FeatureLink, &out.FeatureLink},
	} {
		if target.id == "" {
			continue
		}
		if *target.dst, err = linkKey(doc.Fields, target.id); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// linkKey reads a link custom field holding either a bare key or an issue object.
func linkKey(fields map[string]json.RawMessage, id string) (string, error) {
	raw, ok := fields[id]
	if !ok || string(raw) == "null" {
		return "", nil
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s, nil
	}
	var k keyed
	if err := json.Unmarshal(raw, &k); err != nil {
		return "", errors.New(errors.MalformedResponse, "field "+id, err)
	}
	return k.Key, nil
}

// GetChangelog returns up to limit entries from start, oldest first.
func (c *Client) GetChangelog(ctx context.Context, key string, start, limit int) ([]issues.ChangelogEntry, error) {
	q := url.Values{}
	q.Set("expand", "changelog")
	q.Set("fields", "updated")
	data, err := c.do(ctx, http.MethodGet, "/rest/api/2/issue/"+key, q, nil)
	if err != nil {
		return nil, err
	}
	var doc changelogDoc
	if err := decodeObject("changelog "+key, data, &doc); err != nil {
		return nil, err
	}
	if doc.Changelog == nil {
		return nil, errors.Newf(errors.MalformedResponse, "changelog %s: response has no changelog", key)
	}

	histories := doc.Changelog.Histories
	if start >= len(histories) {
		return []issues.ChangelogEntry{}, nil
	}
	histories = histories[start:]
	if limit > 0 && len(histories) > limit {
		histories = histories[:limit]
	}

	out := make([]issues.ChangelogEntry, 0, len(histories))
	for _, h := range histories {
		created, err := parseTime(h.Created)
		if err != nil {
			return nil, errors.New(errors.MalformedResponse, "changelog "+key+": bad time", err)
		}
		entry := issues.ChangelogEntry{Author: h.Author.DisplayName, Created: created}
		for _, item := range h.Items {
			entry.Changes = append(entry.Changes, issues.Change{Field: item.Field, From: item.FromString, To: item.ToString})
		}
		out = append(out, entry)
	}
	return out, nil
}

// GetComments returns all comments on key, oldest first.
func (c *Client) GetComments(ctx context.Context, key string) ([]issues.Comment, error) {
	doc, err := c.getIssueDoc(ctx, key, []string{"comment"})
	if err != nil {
		return nil, err
	}
	var page commentPage
	if err := field(doc.Fields, "comment", &page); err != nil {
		return nil, err
	}
	return convertComments(page.Comments)
}

// Search runs jql and returns matches in query order.
func (c *Client) Search(ctx context.Context, jql string, fields []string, limit int) ([]issues.SearchHit, error) {
	q := url.Values{}
	q.Set("jql", jql)
	if len(fields) > 0 {
		q.Set("fields", strings.Join(fields, ","))
	}
	if limit > 0 {
		q.Set("maxResults", strconv.Itoa(limit))
	}
	data, err := c.do(ctx, http.MethodGet, "/rest/api/2/search", q, nil)
	if err != nil {
		return nil, err
	}
	return decodeHits("search", data)
}

func decodeHits(what string, data []byte) ([]issues.SearchHit, error) {
	var doc searchDoc
	if err := decodeObject(what, data, &doc); err != nil {
		return nil, err
	}
	hits := make([]issues.SearchHit, 0, len(doc.Issues))
	for _, d := range doc.Issues {
		hit := issues.SearchHit{Key: d.Key}
		var updated string
		if err := field(d.Fields, "updated", &updated); err != nil {
			return nil, err
		}
		if updated != "" {
			t, err := parseTime(updated)
			if err != nil {
				return nil, errors.New(errors.MalformedResponse, what+": bad updated time", err)
			}
			hit.Updated = t
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// EpicIssues returns the keys of the issues in epicKey.
func (c *Client) EpicIssues(ctx context.Context, epicKey string) ([]string, error) {
	q := url.Values{}
	q.Set("fields", "key")
	q.Set("maxResults", strconv.Itoa(epicPageSize))
	data, err := c.do(ctx, http.MethodGet, "/rest/agile/1.0/epic/"+epicKey+"/issue", q, nil)
	if err != nil {
		return nil, err
	}
	hits, err := decodeHits("epic issues "+epicKey, data)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(hits))
	for i, h := range hits {
		keys[i] = h.Key
	}
	return keys, nil
}

// UpdateFields writes logical fields, translating them to Jira field IDs.
func (c *Client) UpdateFields(ctx context.Context, key string, fields map[string]interface{}) error {
	translated := make(map[string]interface{}, len(fields))
	for name, value := range fields {
		switch name {
		case issues.FieldStatusSummary:
			if c.fields.StatusSummary == "" {
				return errors.Newf(errors.InvalidInput, "no status summary field configured")
			}
			translated[c.fields.StatusSummary] = value
		default:
			translated[name] = value
		}
	}
	c.logger.Info("Sending field update", "key", key, "fields", len(translated))
	_, err := c.do(ctx, http.MethodPut, "/rest/api/2/issue/"+key, nil,
		map[string]interface{}{"fields": translated})
	return err
}

// Myself returns the authenticated user.
func (c *Client) Myself(ctx context.Context) (*issues.User, error) {
	data, err := c.do(ctx, http.MethodGet, "/rest/api/2/myself", nil, nil)
	if err != nil {
		return nil, err
	}
	var p person
	if err := decodeObject("myself", data, &p); err != nil {
		return nil, err
	}
	if p.DisplayName == "" {
		return nil, errors.Newf(errors.MalformedResponse, "myself: missing displayName")
	}
	key := p.Key
	if key == "" {
		key = p.Name
	}
	return &issues.User{Key: key, DisplayName: p.DisplayName, TimeZone: p.TimeZone}, nil
}
