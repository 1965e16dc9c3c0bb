// Package gen drafts proposed document updates. The OpenAI generator
// produces an updated markdown document from the current version plus
// the triggering ticket; the draft always goes through human review
// before it can publish.
package gen
