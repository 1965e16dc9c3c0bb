// Package store persists change records and publication records.
//
// Two implementations share the same semantics: a sqlite store for
// durable deployments and an in-memory store for tests and local
// runs. Stage advancement is a conditional write keyed on the current
// pipeline stage, so concurrent handlers racing to advance the same
// record get exactly one winner; publication writes are
// first-writer-wins on the idempotency key.
package store
