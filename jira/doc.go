// Package jira is the ticket tracker surface: webhook payload parsing
// and authentication, the ADF (Atlassian Document Format) rich-text
// model with plain-text extraction, and a thin REST client covering
// the handful of operations the pipeline needs (create issue, comment
// thread access, labels, status transitions).
//
// The tracker is consumed, not reimplemented: the client wraps the
// REST API behind the exact call surface the pipeline uses, on top of
// the shared retrying client in docflow/http.
//
// # Webhooks
//
// Inbound payloads are authenticated with HMAC-SHA256 before parsing.
// A payload that fails validation or lacks required fields is dropped
// as malformed, never retried.
//
// # ADF
//
// Comment bodies arrive as ADF trees in API v3. PlainText walks the
// tree and concatenates leaf text in document order, inserting
// newlines at block boundaries. Unknown node kinds are passed through:
// their children are still visited, so new node types never break
// extraction.
package jira
