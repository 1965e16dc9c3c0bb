package jira

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	dochttp "github.com/randalmurphal/docflow/http"
)

// Config holds the configuration for the Jira client.
type Config struct {
	// URL is the base URL of the Jira instance,
	// e.g. https://your-domain.atlassian.net.
	URL string

	// Email and Token authenticate against Jira Cloud (basic auth with
	// an API token).
	Email string
	Token string

	// Timeout bounds each request. Zero means the shared default.
	Timeout time.Duration

	// MaxRetries bounds retries of transient failures. Zero means the
	// shared default.
	MaxRetries int
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrConfigURLRequired
	}
	if c.Token == "" {
		return ErrConfigTokenRequired
	}
	return nil
}

// Client provides the slice of the Jira REST API the pipeline uses:
// issue creation, comment threads, labels, and status transitions.
type Client struct {
	http *dochttp.Client
}

// NewClient creates a new Jira client.
func NewClient(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.Email+":"+cfg.Token))
	httpClient := dochttp.NewClient(dochttp.ClientConfig{
		BaseURL:     strings.TrimSuffix(cfg.URL, "/"),
		ServiceName: "jira",
		MaxRetries:  cfg.MaxRetries,
		Client:      &http.Client{Timeout: cfg.Timeout},
		BeforeRequest: func(req *http.Request) {
			req.Header.Set("Authorization", auth)
		},
	})

	return &Client{http: httpClient}, nil
}

func apiPath(endpoint string) string {
	return "/rest/api/3" + endpoint
}

// GetIssue fetches an issue by key.
func (c *Client) GetIssue(ctx context.Context, key string) (*Issue, error) {
	if key == "" {
		return nil, ErrIssueKeyRequired
	}
	if !ValidateIssueKey(key) {
		return nil, fmt.Errorf("%w: %s", ErrIssueKeyInvalid, key)
	}

	var issue Issue
	if err := c.http.Get(ctx, apiPath("/issue/"+url.PathEscape(key)), &issue); err != nil {
		if dochttp.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrIssueNotFound, key)
		}
		return nil, err
	}
	return &issue, nil
}

// CreateIssue creates an issue and returns its key.
func (c *Client) CreateIssue(ctx context.Context, req *CreateIssueRequest) (*CreateIssueResponse, error) {
	var resp CreateIssueResponse
	if err := c.http.Post(ctx, apiPath("/issue"), req, &resp); err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	return &resp, nil
}

// GetComments returns the full comment thread of an issue, oldest first.
func (c *Client) GetComments(ctx context.Context, key string) ([]Comment, error) {
	if key == "" {
		return nil, ErrIssueKeyRequired
	}

	var resp CommentsResponse
	if err := c.http.Get(ctx, apiPath("/issue/"+url.PathEscape(key)+"/comment"), &resp); err != nil {
		return nil, fmt.Errorf("get comments for %s: %w", key, err)
	}
	return resp.Comments, nil
}

// AddComment adds a comment to an issue. The body may be an
// ADFDocument or a plain string.
func (c *Client) AddComment(ctx context.Context, key string, body any) (*Comment, error) {
	if key == "" {
		return nil, ErrIssueKeyRequired
	}

	var comment Comment
	req := AddCommentRequest{Body: body}
	if err := c.http.Post(ctx, apiPath("/issue/"+url.PathEscape(key)+"/comment"), req, &comment); err != nil {
		return nil, fmt.Errorf("add comment to %s: %w", key, err)
	}
	return &comment, nil
}

// AddLabel appends a label to an issue without touching other labels.
func (c *Client) AddLabel(ctx context.Context, key, label string) error {
	if key == "" {
		return ErrIssueKeyRequired
	}

	body := map[string]any{
		"update": map[string]any{
			"labels": []map[string]string{{"add": label}},
		},
	}
	if err := c.http.Put(ctx, apiPath("/issue/"+url.PathEscape(key)), body, nil); err != nil {
		return fmt.Errorf("add label %q to %s: %w", label, key, err)
	}
	return nil
}

// GetTransitions returns the transitions available on an issue.
func (c *Client) GetTransitions(ctx context.Context, key string) ([]Transition, error) {
	var resp TransitionsResponse
	if err := c.http.Get(ctx, apiPath("/issue/"+url.PathEscape(key)+"/transitions"), &resp); err != nil {
		return nil, fmt.Errorf("get transitions for %s: %w", key, err)
	}
	return resp.Transitions, nil
}

// TransitionIssueByName moves an issue to the named status, resolving
// the transition ID first.
func (c *Client) TransitionIssueByName(ctx context.Context, key, statusName string) error {
	transitions, err := c.GetTransitions(ctx, key)
	if err != nil {
		return err
	}

	for _, t := range transitions {
		if strings.EqualFold(t.Name, statusName) || (t.To != nil && strings.EqualFold(t.To.Name, statusName)) {
			req := TransitionRequest{Transition: TransitionRef{ID: t.ID}}
			if postErr := c.http.Post(ctx, apiPath("/issue/"+url.PathEscape(key)+"/transitions"), req, nil); postErr != nil {
				return fmt.Errorf("transition %s to %q: %w", key, statusName, postErr)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %q on %s", ErrTransitionNotFound, statusName, key)
}
