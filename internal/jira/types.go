package jira

import (
	"encoding/json"
	"strings"
	"time"

	"aisum/internal/errors"
)

// Jira renders timestamps like 2024-06-03T09:00:00.000+0000.
const timeLayout = "2006-01-02T15:04:05.000-0700"

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

type named struct {
	Name string `json:"name"`
}

type keyed struct {
	Key string `json:"key"`
}

type person struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	TimeZone    string `json:"timeZone"`
}

type issueDoc struct {
	Key    string                     `json:"key"`
	Fields map[string]json.RawMessage `json:"fields"`
}

type commentDoc struct {
	Author  person `json:"author"`
	Created string `json:"created"`
	Body    string `json:"body"`
}

type commentPage struct {
	Comments []commentDoc `json:"comments"`
}

type issueLinkDoc struct {
	Type struct {
		Name    string `json:"name"`
		Inward  string `json:"inward"`
		Outward string `json:"outward"`
	} `json:"type"`
	InwardIssue  *keyed `json:"inwardIssue"`
	OutwardIssue *keyed `json:"outwardIssue"`
}

type historyItem struct {
	Field      string `json:"field"`
	FromString string `json:"fromString"`
	ToString   string `json:"toString"`
}

type history struct {
	Author  person        `json:"author"`
	Created string        `json:"created"`
	Items   []historyItem `json:"items"`
}

type changelogDoc struct {
	Changelog *struct {
		StartAt    int       `json:"startAt"`
		MaxResults int       `json:"maxResults"`
		Total      int       `json:"total"`
		Histories  []history `json:"histories"`
	} `json:"changelog"`
}

type searchDoc struct {
	Issues []issueDoc `json:"issues"`
}

// decodeObject unmarshals body into v, insisting that body is a JSON object.
func decodeObject(what string, body []byte, v interface{}) error {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return errors.Newf(errors.MalformedResponse, "%s: expected a JSON object, got %s", what, preview(trimmed))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.New(errors.MalformedResponse, what+": undecodable body", err)
	}
	return nil
}

// field decodes fields[name] into v. A missing or null field leaves v untouched.
func field(fields map[string]json.RawMessage, name string, v interface{}) error {
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.New(errors.MalformedResponse, "field "+name, err)
	}
	return nil
}

// flexString decodes a custom field that may be a plain string, an option
// object ({"value": ...}) or a list of options.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var opt struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &opt); err == nil {
		*f = flexString(opt.Value)
		return nil
	}
	var opts []struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &opts); err != nil {
		return err
	}
	values := make([]string, 0, len(opts))
	for _, o := range opts {
		values = append(values, o.Value)
	}
	*f = flexString(strings.Join(values, ", "))
	return nil
}

func preview(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	if s == "" {
		return "empty body"
	}
	return s
}
