package jira

import (
	"regexp"
	"time"
)

// TimeFormat is the standard Jira timestamp format.
const TimeFormat = "2006-01-02T15:04:05.000-0700"

// User represents a Jira user.
type User struct {
	AccountID   string `json:"accountId,omitempty"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"displayName"`
	Active      bool   `json:"active"`
}

// Status represents an issue status.
type Status struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IssueType represents an issue type.
type IssueType struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subtask bool   `json:"subtask"`
}

// Issue represents a Jira issue.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Self   string      `json:"self"`
	Fields IssueFields `json:"fields"`
}

// IssueFields contains the fields of a Jira issue the pipeline reads.
type IssueFields struct {
	Summary     string     `json:"summary"`
	Description any        `json:"description,omitempty"` // ADF (v3) or string (v2)
	Status      *Status    `json:"status,omitempty"`
	IssueType   *IssueType `json:"issuetype,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
	Created     string     `json:"created,omitempty"`
	Updated     string     `json:"updated,omitempty"`
}

// CreatedTime parses and returns the Created timestamp.
func (f *IssueFields) CreatedTime() (time.Time, error) {
	return ParseTime(f.Created)
}

// Comment represents a Jira comment.
type Comment struct {
	ID      string `json:"id"`
	Author  *User  `json:"author,omitempty"`
	Body    any    `json:"body"` // ADF (v3) or string (v2)
	Created string `json:"created"`
}

// CreatedTime parses and returns the Created timestamp.
func (c *Comment) CreatedTime() (time.Time, error) {
	return ParseTime(c.Created)
}

// CommentsResponse represents the response from the comments endpoint.
type CommentsResponse struct {
	StartAt    int       `json:"startAt"`
	MaxResults int       `json:"maxResults"`
	Total      int       `json:"total"`
	Comments   []Comment `json:"comments"`
}

// CreateIssueRequest represents a request to create an issue.
type CreateIssueRequest struct {
	Fields CreateIssueFields `json:"fields"`
}

// CreateIssueFields represents the fields for creating an issue.
type CreateIssueFields struct {
	Project     ProjectRef   `json:"project"`
	IssueType   IssueTypeRef `json:"issuetype"`
	Summary     string       `json:"summary"`
	Description any          `json:"description,omitempty"` // ADF or string
	Labels      []string     `json:"labels,omitempty"`
}

// ProjectRef references a project by key or ID.
type ProjectRef struct {
	Key string `json:"key,omitempty"`
	ID  string `json:"id,omitempty"`
}

// IssueTypeRef references an issue type by name or ID.
type IssueTypeRef struct {
	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`
}

// CreateIssueResponse represents the response from creating an issue.
type CreateIssueResponse struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

// Transition represents an available status transition.
type Transition struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	To   *Status `json:"to"`
}

// TransitionsResponse represents the response from the transitions endpoint.
type TransitionsResponse struct {
	Transitions []Transition `json:"transitions"`
}

// TransitionRequest represents a request to transition an issue.
type TransitionRequest struct {
	Transition TransitionRef `json:"transition"`
}

// TransitionRef references a transition by ID.
type TransitionRef struct {
	ID string `json:"id"`
}

// AddCommentRequest represents a request to add a comment.
type AddCommentRequest struct {
	Body any `json:"body"` // ADF or string
}

// issueKeyRegex validates Jira issue keys (e.g. PROJ-123).
var issueKeyRegex = regexp.MustCompile(`^[A-Z][A-Z0-9]*-\d+$`)

// ValidateIssueKey validates a Jira issue key format.
func ValidateIssueKey(key string) bool {
	return issueKeyRegex.MatchString(key)
}

// ParseTime parses a Jira timestamp string. Jira uses ISO 8601 with a
// timezone offset, in a few variants.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	formats := []string{
		"2006-01-02T15:04:05.000-0700",
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05-0700",
		"2006-01-02T15:04:05Z",
		time.RFC3339,
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &time.ParseError{Value: s}
}

// FormatTime formats a time.Time as a Jira timestamp string.
func FormatTime(t time.Time) string {
	return t.Format(TimeFormat)
}
