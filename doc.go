// Package docflow automates AI-drafted, human-approved documentation
// updates. A ticket transition triggers content generation, a visual
// diff review, and conditional publication.
//
// The package is organized into subpackages by domain:
//
//   - diff: line-level diff engine and image change detection
//   - review: review artifact composition and summaries
//   - approval: approval decision parsing from comment threads
//   - jira: ticket tracker surface (webhooks, ADF rich text, REST client)
//   - confluence: wiki publication client
//   - store: durable change record and publication record stores
//   - bus: event bus between pipeline stages
//   - content: document version and artifact content storage
//   - gen: content generation
//   - config: configuration loading and validation
//   - server: inbound webhook HTTP endpoints
//   - http: HTTP client utilities
//
// The root package holds the domain types (ChangeRecord and friends),
// the transition classifier, the publication coordinator, and the
// pipeline handlers that chain the stages together over the event bus.
//
// # Pipeline
//
// ticket event -> Classifier -> record store write + change-detected
// event -> content generation -> review artifact -> review ticket ->
// human comment -> decision parse -> PublicationCoordinator -> publish.
//
// Every stage is a stateless unit of work: all state lives in the
// record store, and every stage advance is a conditional write keyed
// on the record's current pipeline stage. Duplicate event deliveries
// lose the conditional write and are treated as already handled.
package docflow
