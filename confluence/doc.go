// Package confluence publishes approved documents to Confluence Cloud.
//
// The client targets the v1 content REST API. Publish is idempotent at
// the page level: it looks the page up by space and title, creates it
// when absent, and otherwise updates it with the next version number.
// Markdown is converted to the Confluence storage format before upload.
package confluence
