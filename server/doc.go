// Package server exposes the inbound HTTP surface: the two tracker
// webhooks that drive the pipeline and the signed artifact endpoint
// reviewers follow from a review ticket. Webhook bodies are verified
// against an HMAC signature before any parsing happens.
package server
