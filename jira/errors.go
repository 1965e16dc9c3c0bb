package jira

import (
	"errors"

	dochttp "github.com/randalmurphal/docflow/http"
)

// Configuration errors.
var (
	ErrConfigURLRequired   = errors.New("jira url is required")
	ErrConfigTokenRequired = errors.New("jira api token is required")
)

// Issue errors.
var (
	ErrIssueNotFound    = errors.New("jira issue not found")
	ErrIssueKeyRequired = errors.New("issue key is required")
	ErrIssueKeyInvalid  = errors.New("invalid issue key format")
)

// Transition errors.
var (
	ErrTransitionNotFound = errors.New("transition not found for issue")
)

// Webhook errors.
var (
	ErrWebhookInvalidSignature = errors.New("invalid webhook signature")
	ErrWebhookInvalidPayload   = errors.New("invalid webhook payload")
)

// IsNotFound reports whether the error indicates a resource was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, dochttp.ErrNotFound) || errors.Is(err, ErrIssueNotFound)
}

// IsRetryable reports whether the error is transient and should be retried.
func IsRetryable(err error) bool {
	return dochttp.IsRetryable(err)
}
