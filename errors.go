package docflow

import "errors"

// Classification errors.
var (
	// ErrMalformedEvent indicates an inbound payload is missing required
	// fields. Malformed events are dropped with an audit log entry and
	// never retried.
	ErrMalformedEvent = errors.New("malformed ticket event")

	// ErrConfigStatusOverlap indicates the configured active-work and
	// completion status sets share an entry. This is a configuration
	// error and is rejected at load time.
	ErrConfigStatusOverlap = errors.New("active and completion status sets overlap")
)

// Record errors.
var (
	// ErrRecordNotFound indicates no change record exists for the key.
	ErrRecordNotFound = errors.New("change record not found")

	// ErrStageConflict indicates a conditional stage write lost a race:
	// the record was no longer at the expected stage. Callers treat the
	// event as already handled.
	ErrStageConflict = errors.New("change record stage conflict")

	// ErrStageRegression indicates an attempted transition to an earlier
	// pipeline stage. Stages only move forward.
	ErrStageRegression = errors.New("pipeline stage cannot regress")

	// ErrRecordTerminal indicates the record is in an absorbing terminal
	// state and cannot advance; a later edit needs a new record.
	ErrRecordTerminal = errors.New("change record is terminal")
)

// Content errors.
var (
	// ErrVersionNotFound indicates no stored content for the document
	// version.
	ErrVersionNotFound = errors.New("document version not found")

	// ErrArtifactNotFound indicates no stored review artifact for the
	// version pair.
	ErrArtifactNotFound = errors.New("review artifact not found")
)

// Decision errors.
var (
	// ErrUnknownDecision indicates no comment in the review thread
	// matched any recognized decision pattern. The record stays parked
	// at the decided-pending stage.
	ErrUnknownDecision = errors.New("no decision recognized in comment thread")
)

// Publication errors.
var (
	// ErrPublicationExists indicates a publication record already exists
	// for the idempotency key. Treated as success by the coordinator.
	ErrPublicationExists = errors.New("publication record already exists")

	// ErrPublishFailed indicates the publish call exhausted its retries.
	// The record stage is unchanged so a retry can re-enter publishing.
	ErrPublishFailed = errors.New("publish failed")

	// ErrGenerationFailed indicates content generation exhausted its
	// retries.
	ErrGenerationFailed = errors.New("content generation failed")
)
