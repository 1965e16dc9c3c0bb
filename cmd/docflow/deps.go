package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/randalmurphal/docflow"
	"github.com/randalmurphal/docflow/approval"
	"github.com/randalmurphal/docflow/bus"
	"github.com/randalmurphal/docflow/config"
	"github.com/randalmurphal/docflow/confluence"
	"github.com/randalmurphal/docflow/content"
	"github.com/randalmurphal/docflow/gen"
	"github.com/randalmurphal/docflow/jira"
	"github.com/randalmurphal/docflow/store"
)

// deps holds the wired dependencies shared by the serve and worker
// commands.
type deps struct {
	cfg      *config.Config
	logger   *slog.Logger
	records  *store.SQLite
	contents *content.Store
	redis    *redis.Client
	pipeline *docflow.Pipeline
}

func (d *deps) close() {
	if d.records != nil {
		d.records.Close()
	}
	if d.redis != nil {
		d.redis.Close()
	}
}

// withDeps loads the configuration, builds the pipeline and its
// dependencies, runs fn, and cleans up afterwards.
func withDeps(fn func(*deps) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	d := &deps{cfg: cfg, logger: logger}
	defer d.close()

	d.records, err = store.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening record store: %w", err)
	}

	d.contents = content.NewStore(content.StoreConfig{BaseDir: cfg.Content.BaseDir})

	d.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	tracker, err := jira.NewClient(&jira.Config{
		URL:        cfg.Jira.URL,
		Email:      cfg.Jira.Email,
		Token:      cfg.Jira.Token,
		Timeout:    cfg.Jira.Timeout,
		MaxRetries: cfg.Jira.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("building jira client: %w", err)
	}

	wiki, err := confluence.NewClient(&confluence.Config{
		URL:        cfg.Confluence.URL,
		Email:      cfg.Confluence.Email,
		Token:      cfg.Confluence.Token,
		SpaceKey:   cfg.Confluence.SpaceKey,
		Timeout:    cfg.Confluence.Timeout,
		MaxRetries: cfg.Confluence.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("building confluence client: %w", err)
	}

	generator, err := gen.NewOpenAIGenerator(gen.OpenAIConfig{
		APIKey: cfg.Generator.APIKey,
		Model:  cfg.Generator.Model,
	})
	if err != nil {
		return fmt.Errorf("building generator: %w", err)
	}

	events := bus.NewRedisPublisher(d.redis, cfg.Redis.Stream, logger)

	coordinator := docflow.NewPublicationCoordinator(
		d.records, d.records, d.contents,
		&confluencePublisher{client: wiki},
		events, logger)

	pipelineCfg := docflow.PipelineConfig{
		ReviewProject:   cfg.Review.Project,
		ReviewIssueType: cfg.Review.IssueType,
	}
	if links, ok := linkConfig(cfg); ok {
		pipelineCfg.SignArtifactLink = func(key string) (string, error) {
			return content.SignArtifactLink(links, key)
		}
	}

	d.pipeline = docflow.NewPipeline(pipelineCfg, docflow.PipelineDeps{
		Classifier:  docflow.NewClassifier(cfg.Classifier.Classifier()),
		Records:     d.records,
		Versions:    d.contents,
		Artifacts:   d.contents,
		Tracker:     tracker,
		Generator:   generator,
		Parser:      approval.NewParser(cfg.Approval.Rules()),
		Coordinator: coordinator,
		Events:      events,
		Logger:      logger,
	})

	return fn(d)
}

// linkConfig returns the signed-link settings, or ok=false when links
// are disabled.
func linkConfig(cfg *config.Config) (content.LinkConfig, bool) {
	if cfg.Content.LinkSecret == "" {
		return content.LinkConfig{}, false
	}
	return content.LinkConfig{
		Secret:  []byte(cfg.Content.LinkSecret),
		BaseURL: cfg.Content.LinkBaseURL,
		TTL:     cfg.Content.LinkTTL,
	}, true
}

// confluencePublisher adapts the Confluence client to the page
// publisher the coordinator expects. The document ID doubles as the
// page title.
type confluencePublisher struct {
	client *confluence.Client
}

func (p *confluencePublisher) PublishPage(ctx context.Context, documentID, markdown, versionMessage string) (string, error) {
	page, err := p.client.Publish(ctx, documentID, markdown, versionMessage)
	if err != nil {
		return "", err
	}
	if ref := page.WebURL(); ref != "" {
		return ref, nil
	}
	return page.ID, nil
}
