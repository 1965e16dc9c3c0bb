package confluence

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	dochttp "github.com/randalmurphal/docflow/http"
)

// Configuration errors.
var (
	ErrConfigURLRequired   = errors.New("confluence URL is required")
	ErrConfigTokenRequired = errors.New("confluence API token is required")
	ErrConfigSpaceRequired = errors.New("confluence space key is required")
	ErrPageNotFound        = errors.New("page not found")
)

// Config holds the configuration for the Confluence client.
type Config struct {
	// URL is the base URL of the Confluence instance,
	// e.g. https://your-domain.atlassian.net/wiki.
	URL string

	// Email and Token authenticate against Confluence Cloud.
	Email string
	Token string

	// SpaceKey is the space published pages live in.
	SpaceKey string

	Timeout    time.Duration
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
	if c.SpaceKey == "" {
		return ErrConfigSpaceRequired
	}
	return nil
}

// Client publishes pages through the Confluence content API.
type Client struct {
	http     *dochttp.Client
	spaceKey string
}

// NewClient creates a new Confluence client.
func NewClient(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.Email+":"+cfg.Token))
	httpClient := dochttp.NewClient(dochttp.ClientConfig{
		BaseURL:     strings.TrimSuffix(cfg.URL, "/"),
		ServiceName: "confluence",
		MaxRetries:  cfg.MaxRetries,
		Client:      &http.Client{Timeout: cfg.Timeout},
		BeforeRequest: func(req *http.Request) {
			req.Header.Set("Authorization", auth)
		},
	})

	return &Client{http: httpClient, spaceKey: cfg.SpaceKey}, nil
}

// FindPage looks a page up by title within the configured space.
func (c *Client) FindPage(ctx context.Context, title string) (*Page, error) {
	path := fmt.Sprintf("/rest/api/content?spaceKey=%s&title=%s&expand=version",
		url.QueryEscape(c.spaceKey), url.QueryEscape(title))

	var resp searchResponse
	if err := c.http.Get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("finding page %q: %w", title, err)
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("%w: %q in space %s", ErrPageNotFound, title, c.spaceKey)
	}
	return &resp.Results[0], nil
}

// CreatePage creates a page in the configured space.
func (c *Client) CreatePage(ctx context.Context, title, storageBody, versionMessage string) (*Page, error) {
	req := Page{
		Type:  "page",
		Title: title,
		Space: &Space{Key: c.spaceKey},
		Body: &Body{Storage: &Storage{
			Value:          storageBody,
			Representation: "storage",
		}},
		Version: &Version{Number: 1, Message: versionMessage},
	}

	var page Page
	if err := c.http.Post(ctx, "/rest/api/content", req, &page); err != nil {
		return nil, fmt.Errorf("creating page %q: %w", title, err)
	}
	return &page, nil
}

// UpdatePage replaces a page's body, bumping its version number.
func (c *Client) UpdatePage(ctx context.Context, existing *Page, storageBody, versionMessage string) (*Page, error) {
	next := 1
	if existing.Version != nil {
		next = existing.Version.Number + 1
	}
	req := Page{
		ID:    existing.ID,
		Type:  "page",
		Title: existing.Title,
		Body: &Body{Storage: &Storage{
			Value:          storageBody,
			Representation: "storage",
		}},
		Version: &Version{Number: next, Message: versionMessage},
	}

	var page Page
	if err := c.http.Put(ctx, "/rest/api/content/"+existing.ID, req, &page); err != nil {
		return nil, fmt.Errorf("updating page %q: %w", existing.Title, err)
	}
	return &page, nil
}

// Publish creates or updates the page titled title with the given
// markdown content. On a create that races another writer into a
// conflict, the page is looked up again and updated instead.
func (c *Client) Publish(ctx context.Context, title, markdown, versionMessage string) (*Page, error) {
	body := ToStorage(markdown)

	existing, err := c.FindPage(ctx, title)
	switch {
	case err == nil:
		return c.UpdatePage(ctx, existing, body, versionMessage)
	case errors.Is(err, ErrPageNotFound):
	default:
		return nil, err
	}

	page, err := c.CreatePage(ctx, title, body, versionMessage)
	if err == nil {
		return page, nil
	}
	if !errors.Is(err, dochttp.ErrBadRequest) {
		return nil, err
	}

	// Confluence rejects duplicate titles with a 400. Losing a create
	// race lands here, so look the page up again and update it.
	existing, findErr := c.FindPage(ctx, title)
	if findErr != nil {
		return nil, err
	}
	return c.UpdatePage(ctx, existing, body, versionMessage)
}
