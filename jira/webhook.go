package jira

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// WebhookEventType represents a Jira webhook event type.
type WebhookEventType string

// Webhook event types the pipeline consumes.
const (
	WebhookEventIssueUpdated   WebhookEventType = "jira:issue_updated"
	WebhookEventCommentCreated WebhookEventType = "comment_created"
)

// WebhookPayload represents the common Jira webhook payload.
type WebhookPayload struct {
	Timestamp    int64            `json:"timestamp"`
	WebhookEvent WebhookEventType `json:"webhookEvent"`
	User         *User            `json:"user,omitempty"`
	Issue        *Issue           `json:"issue,omitempty"`
	Comment      *Comment         `json:"comment,omitempty"`
	Changelog    *Changelog       `json:"changelog,omitempty"`
}

// Changelog represents the changelog in a webhook payload.
type Changelog struct {
	ID    string          `json:"id"`
	Items []ChangelogItem `json:"items"`
}

// ChangelogItem represents a single change in the changelog.
type ChangelogItem struct {
	Field      string `json:"field"`
	FromString string `json:"fromString,omitempty"`
	ToString   string `json:"toString,omitempty"`
}

// GetFieldChange returns the changelog item for a field, or nil.
func (c *Changelog) GetFieldChange(fieldName string) *ChangelogItem {
	if c == nil {
		return nil
	}
	for i := range c.Items {
		if strings.EqualFold(c.Items[i].Field, fieldName) {
			return &c.Items[i]
		}
	}
	return nil
}

// StatusChange returns the status changelog item, or nil if the
// status did not change in this event.
func (p *WebhookPayload) StatusChange() *ChangelogItem {
	if p.Changelog == nil {
		return nil
	}
	return p.Changelog.GetFieldChange("status")
}

// ValidateWebhookSignature validates a webhook signature. It accepts
// the "sha256=<hex>" form or the bare hex signature.
func ValidateWebhookSignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// WebhookSignatureHeaders are the headers that may carry the signature.
var WebhookSignatureHeaders = []string{
	"X-Hub-Signature-256",
	"X-Atlassian-Webhook-Signature",
}

// ParseWebhookPayload parses a Jira webhook payload from JSON bytes.
func ParseWebhookPayload(body []byte) (*WebhookPayload, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, ErrWebhookInvalidPayload
	}
	return &payload, nil
}
