// Package content stores document versions and review artifacts on the
// local filesystem and mints signed, expiring links to them.
//
// Versions are keyed by document ID and version number, artifacts by
// document ID and base/proposed version pair. Large payloads are
// gzip-compressed transparently.
package content
