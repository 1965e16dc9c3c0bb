package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/randalmurphal/docflow"
	"github.com/randalmurphal/docflow/content"
	"github.com/randalmurphal/docflow/jira"
	"github.com/randalmurphal/docflow/review"
)

// DocumentLabelPrefix maps a tracker ticket to the document it
// affects: a ticket labeled "doc:deploy-guide" targets document
// "deploy-guide". Tickets without the label are ignored.
const DocumentLabelPrefix = "doc:"

// ArtifactLoader reads stored review artifacts. *content.Store
// satisfies it.
type ArtifactLoader interface {
	LoadArtifact(documentID string, baseVersion, proposedVersion int) (*review.Artifact, error)
}

// Config holds the HTTP server settings.
type Config struct {
	// Addr is the listen address.
	Addr string

	// WebhookSecret verifies inbound webhook signatures. Empty
	// disables verification.
	WebhookSecret string

	// Links verifies artifact link tokens. A zero Secret disables the
	// artifact endpoint.
	Links content.LinkConfig
}

// Server is the inbound HTTP surface.
type Server struct {
	cfg       Config
	pipeline  *docflow.Pipeline
	artifacts ArtifactLoader
	logger    *slog.Logger
	engine    *gin.Engine
}

// New creates the server and registers its routes.
func New(cfg Config, pipeline *docflow.Pipeline, artifacts ArtifactLoader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		cfg:       cfg,
		pipeline:  pipeline,
		artifacts: artifacts,
		logger:    logger,
		engine:    engine,
	}

	engine.GET("/healthz", s.health)
	engine.POST("/webhooks/jira", s.webhook)
	engine.GET("/artifacts", s.artifact)

	return s
}

// Run blocks serving HTTP on the configured address.
func (s *Server) Run() error {
	return s.engine.Run(s.cfg.Addr)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// webhook verifies and dispatches a tracker webhook. Malformed
// payloads are rejected with a 400 and never retried; events the
// pipeline has no interest in get a 202 so the tracker does not
// redeliver them.
func (s *Server) webhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reading body"})
		return
	}

	if s.cfg.WebhookSecret != "" && !s.validSignature(c, body) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	payload, err := jira.ParseWebhookPayload(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	switch payload.WebhookEvent {
	case jira.WebhookEventIssueUpdated:
		s.ticketEvent(c, payload)
	case jira.WebhookEventCommentCreated:
		s.commentCreated(c, payload)
	default:
		c.JSON(http.StatusAccepted, gin.H{"ignored": "unhandled event type"})
	}
}

func (s *Server) validSignature(c *gin.Context, body []byte) bool {
	for _, header := range jira.WebhookSignatureHeaders {
		if sig := c.GetHeader(header); sig != "" {
			return jira.ValidateWebhookSignature(body, sig, s.cfg.WebhookSecret)
		}
	}
	return false
}

func (s *Server) ticketEvent(c *gin.Context, payload *jira.WebhookPayload) {
	if payload.Issue == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing issue"})
		return
	}

	change := payload.StatusChange()
	if change == nil {
		c.JSON(http.StatusAccepted, gin.H{"ignored": "no status change"})
		return
	}

	documentID, ok := documentIDFromLabels(payload.Issue.Fields.Labels)
	if !ok {
		c.JSON(http.StatusAccepted, gin.H{"ignored": "no document label"})
		return
	}

	created, _ := payload.Issue.Fields.CreatedTime()
	event := &docflow.TicketEvent{
		TicketID:       payload.Issue.Key,
		DocumentID:     documentID,
		PreviousStatus: change.FromString,
		NewStatus:      change.ToString,
		Labels:         payload.Issue.Fields.Labels,
		CreatedAt:      created,
	}
	if payload.Issue.Fields.IssueType != nil {
		event.IssueType = payload.Issue.Fields.IssueType.Name
	}

	rec, err := s.pipeline.HandleTicketEvent(c.Request.Context(), event)
	if err != nil {
		s.logger.Error("handling ticket event", "ticket_id", event.TicketID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "pipeline error"})
		return
	}
	if rec == nil {
		c.JSON(http.StatusAccepted, gin.H{"accepted": false})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true, "recordId": rec.ID})
}

func (s *Server) commentCreated(c *gin.Context, payload *jira.WebhookPayload) {
	if payload.Issue == nil || payload.Comment == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing issue or comment"})
		return
	}

	// Cheap structural pre-filter: only tickets carrying the review
	// marker (or its summary fallback) reach the store lookup.
	if ok, _ := jira.IsReviewTicket(s.logger, payload.Issue); !ok {
		c.JSON(http.StatusAccepted, gin.H{"ignored": "not a review ticket"})
		return
	}

	pub, err := s.pipeline.HandleReviewComment(c.Request.Context(), payload.Issue.Key)
	if err != nil {
		s.logger.Error("handling review comment", "ticket_id", payload.Issue.Key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "pipeline error"})
		return
	}

	resp := gin.H{"processed": true}
	if pub != nil {
		resp["publishedVersion"] = pub.Version
		resp["pageRef"] = pub.ExternalPageRef
	}
	c.JSON(http.StatusAccepted, resp)
}

// artifact serves a stored review artifact to the holder of a valid
// signed link.
func (s *Server) artifact(c *gin.Context) {
	if len(s.cfg.Links.Secret) == 0 || s.artifacts == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "artifact links disabled"})
		return
	}

	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}

	key, err := content.VerifyArtifactLink(s.cfg.Links, token)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid or expired link"})
		return
	}

	documentID, base, proposed, err := review.ParseVersionPairKey(key)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed artifact key"})
		return
	}

	artifact, err := s.artifacts.LoadArtifact(documentID, base, proposed)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "artifact not found"})
		return
	}
	c.JSON(http.StatusOK, artifact)
}

func documentIDFromLabels(labels []string) (string, bool) {
	for _, label := range labels {
		if strings.HasPrefix(label, DocumentLabelPrefix) {
			id := strings.TrimPrefix(label, DocumentLabelPrefix)
			if id != "" {
				return id, true
			}
		}
	}
	return "", false
}
