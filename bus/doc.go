// Package bus carries pipeline events between the detection, review
// and publication stages. The Redis Streams implementation gives
// at-least-once delivery with a consumer group, bounded retries and a
// dead letter stream; the in-memory implementation dispatches
// synchronously for tests and single-process runs.
package bus
