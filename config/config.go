package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/docflow"
	"github.com/randalmurphal/docflow/approval"
)

// Config errors.
var (
	ErrReviewProjectRequired = errors.New("review.project is required")
	ErrJiraURLRequired       = errors.New("jira.url is required")
	ErrLinkSecretTooShort    = errors.New("content.link_secret must be at least 32 bytes")
)

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Redis      RedisConfig      `yaml:"redis"`
	Jira       JiraConfig       `yaml:"jira"`
	Confluence ConfluenceConfig `yaml:"confluence"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Review     ReviewConfig     `yaml:"review"`
	Approval   ApprovalConfig   `yaml:"approval"`
	Content    ContentConfig    `yaml:"content"`
}

// ServerConfig configures the webhook HTTP server.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`

	// WebhookSecret is the HMAC secret inbound webhooks are signed
	// with. Empty disables signature checks (local development only).
	WebhookSecret string `yaml:"webhook_secret"`
}

// StoreConfig configures the metadata store.
type StoreConfig struct {
	// Path is the sqlite database file. ":memory:" gives an ephemeral
	// store.
	Path string `yaml:"path"`
}

// RedisConfig configures the event bus.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Stream is the pipeline event stream name.
	Stream string `yaml:"stream"`

	// Group is the worker consumer group.
	Group string `yaml:"group"`

	// MaxAttempts bounds redeliveries before an event is parked on the
	// dead letter stream.
	MaxAttempts int `yaml:"max_attempts"`
}

// JiraConfig configures the ticket tracker client.
type JiraConfig struct {
	URL        string        `yaml:"url"`
	Email      string        `yaml:"email"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// ConfluenceConfig configures the publish destination.
type ConfluenceConfig struct {
	URL        string        `yaml:"url"`
	Email      string        `yaml:"email"`
	Token      string        `yaml:"token"`
	SpaceKey   string        `yaml:"space_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// GeneratorConfig configures document drafting.
type GeneratorConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// ClassifierConfig mirrors the classifier settings in YAML form.
type ClassifierConfig struct {
	ForceLabel         string   `yaml:"force_label"`
	SuppressLabel      string   `yaml:"suppress_label"`
	CompletionStatuses []string `yaml:"completion_statuses"`
	ActiveStatuses     []string `yaml:"active_statuses"`
	DocumentableTypes  []string `yaml:"documentable_types"`
	MaxAgeDays         int      `yaml:"max_age_days"`
}

// Classifier converts the YAML form to the pipeline's config type.
func (c ClassifierConfig) Classifier() docflow.ClassifierConfig {
	return docflow.ClassifierConfig{
		ForceLabel:         c.ForceLabel,
		SuppressLabel:      c.SuppressLabel,
		CompletionStatuses: c.CompletionStatuses,
		ActiveStatuses:     c.ActiveStatuses,
		DocumentableTypes:  c.DocumentableTypes,
		MaxAgeDays:         c.MaxAgeDays,
	}
}

// ReviewConfig configures review ticket creation.
type ReviewConfig struct {
	// Project is the tracker project review tickets are created in.
	Project string `yaml:"project"`

	// IssueType is the review ticket issue type. Defaults to "Task".
	IssueType string `yaml:"issue_type"`
}

// ApprovalConfig overrides the decision pattern table. Precedence stays
// fixed (approve over reject over revise); only the pattern variants
// are configurable. Empty lists keep the built-in defaults.
type ApprovalConfig struct {
	ApprovePatterns []string `yaml:"approve_patterns"`
	RejectPatterns  []string `yaml:"reject_patterns"`
	RevisePatterns  []string `yaml:"revise_patterns"`
}

// Rules converts the YAML form to a parser rule table. It returns nil
// when nothing is overridden, which makes the parser fall back to its
// defaults.
func (a ApprovalConfig) Rules() []approval.Rule {
	if len(a.ApprovePatterns) == 0 && len(a.RejectPatterns) == 0 && len(a.RevisePatterns) == 0 {
		return nil
	}
	defaults := map[approval.Decision][]string{}
	for _, rule := range approval.DefaultRules {
		defaults[rule.Decision] = rule.Patterns
	}
	pick := func(override []string, decision approval.Decision) []string {
		if len(override) > 0 {
			return override
		}
		return defaults[decision]
	}
	return []approval.Rule{
		{Decision: approval.Approved, Patterns: pick(a.ApprovePatterns, approval.Approved)},
		{Decision: approval.Rejected, Patterns: pick(a.RejectPatterns, approval.Rejected)},
		{Decision: approval.NeedsRevision, Patterns: pick(a.RevisePatterns, approval.NeedsRevision)},
	}
}

// ContentConfig configures document and artifact storage.
type ContentConfig struct {
	BaseDir string `yaml:"base_dir"`

	// LinkSecret signs expiring artifact links. Must be at least 32
	// bytes when set; empty disables links in review tickets.
	LinkSecret string `yaml:"link_secret"`

	// LinkBaseURL is the externally reachable artifact endpoint.
	LinkBaseURL string `yaml:"link_base_url"`

	// LinkTTL is how long artifact links stay valid.
	LinkTTL time.Duration `yaml:"link_ttl"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Store:  StoreConfig{Path: "docflow.db"},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			Stream:      "docflow_events",
			Group:       "docflow_workers",
			MaxAttempts: 5,
		},
		Classifier: ClassifierConfig{
			ForceLabel:         "docs-update",
			SuppressLabel:      "no-docs",
			CompletionStatuses: []string{"Done", "Closed", "Resolved"},
			ActiveStatuses:     []string{"In Progress", "In Review"},
			DocumentableTypes:  []string{"Task", "Story", "Bug"},
			MaxAgeDays:         30,
		},
		Review:  ReviewConfig{IssueType: "Task"},
		Content: ContentConfig{BaseDir: ".docflow"},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides and validates. A missing file is not an
// error: defaults plus environment must still validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays secret-bearing settings from the environment so
// they never have to live in the file.
func (c *Config) applyEnv() {
	overlay(&c.Server.WebhookSecret, "DOCFLOW_WEBHOOK_SECRET")
	overlay(&c.Redis.Addr, "DOCFLOW_REDIS_ADDR")
	overlay(&c.Redis.Password, "DOCFLOW_REDIS_PASSWORD")
	overlay(&c.Jira.URL, "DOCFLOW_JIRA_URL")
	overlay(&c.Jira.Email, "DOCFLOW_JIRA_EMAIL")
	overlay(&c.Jira.Token, "DOCFLOW_JIRA_TOKEN")
	overlay(&c.Confluence.URL, "DOCFLOW_CONFLUENCE_URL")
	overlay(&c.Confluence.Email, "DOCFLOW_CONFLUENCE_EMAIL")
	overlay(&c.Confluence.Token, "DOCFLOW_CONFLUENCE_TOKEN")
	overlay(&c.Confluence.SpaceKey, "DOCFLOW_CONFLUENCE_SPACE")
	overlay(&c.Generator.APIKey, "DOCFLOW_OPENAI_API_KEY")
	overlay(&c.Content.LinkSecret, "DOCFLOW_LINK_SECRET")
}

func overlay(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks the configuration the pipeline cannot run without.
func (c *Config) Validate() error {
	if c.Review.Project == "" {
		return ErrReviewProjectRequired
	}
	if c.Jira.URL == "" {
		return ErrJiraURLRequired
	}
	if c.Content.LinkSecret != "" && len(c.Content.LinkSecret) < 32 {
		return ErrLinkSecretTooShort
	}
	classifier := c.Classifier.Classifier()
	if err := classifier.Validate(); err != nil {
		return err
	}
	return nil
}
