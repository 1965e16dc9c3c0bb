package bus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Topics published by the pipeline. Each marks a stage boundary: the
// subscriber for a topic performs the next stage of the pipeline.
const (
	TopicChangeDetected    = "change-detected"
	TopicDocumentGenerated = "document-generated"
	TopicPublished         = "documentation-published"
)

var ErrUnknownTopic = errors.New("unknown topic")

var knownTopics = map[string]bool{
	TopicChangeDetected:    true,
	TopicDocumentGenerated: true,
	TopicPublished:         true,
}

// Event is one pipeline message. RecordID names the change record the
// subscriber should act on; everything else the subscriber needs it
// reloads from the record store, so a redelivered event never carries
// stale state.
type Event struct {
	ID         string    `json:"id,omitempty"`
	Topic      string    `json:"topic"`
	RecordID   string    `json:"recordId"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

func (e Event) Validate() error {
	if !knownTopics[e.Topic] {
		return fmt.Errorf("%w: %q", ErrUnknownTopic, e.Topic)
	}
	if e.RecordID == "" {
		return errors.New("event record id is required")
	}
	return nil
}

// Publisher enqueues pipeline events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Handler processes one delivered event. A nil return acknowledges the
// event; an error return asks the transport to retry or dead-letter it.
type Handler func(ctx context.Context, ev Event) error

func eventValues(ev Event, attempt int) map[string]any {
	if attempt <= 0 {
		attempt = 1
	}
	enqueued := ev.EnqueuedAt
	if enqueued.IsZero() {
		enqueued = time.Now().UTC()
	}
	return map[string]any{
		"topic":       ev.Topic,
		"record_id":   ev.RecordID,
		"attempt":     attempt,
		"enqueued_at": enqueued.UTC().Format(time.RFC3339Nano),
	}
}

func eventFromValues(id string, values map[string]any) (Event, error) {
	topic := fmt.Sprint(values["topic"])
	if !knownTopics[topic] {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	recordID, ok := values["record_id"]
	if !ok || fmt.Sprint(recordID) == "" {
		return Event{}, errors.New("missing record_id")
	}

	attempt := 1
	if raw, ok := values["attempt"]; ok {
		n, err := strconv.Atoi(fmt.Sprint(raw))
		if err != nil {
			return Event{}, fmt.Errorf("parsing attempt: %w", err)
		}
		if n > 0 {
			attempt = n
		}
	}

	var enqueued time.Time
	if raw, ok := values["enqueued_at"]; ok {
		enqueued, _ = time.Parse(time.RFC3339Nano, fmt.Sprint(raw))
	}

	return Event{
		ID:         id,
		Topic:      topic,
		RecordID:   fmt.Sprint(recordID),
		Attempt:    attempt,
		EnqueuedAt: enqueued,
	}, nil
}
