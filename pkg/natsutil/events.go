package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/astreg/pkg/models"
)

const eventTypePrefix = "com.carverauto.astreg."

// FirmwareSubject is the subject a firmware event for pdev is published on:
// <prefix>.<pdev>.<kind>, for example "astreg.fw.0.peer.map".
func FirmwareSubject(prefix string, pdev models.PdevID, eventType models.FirmwareEventType) string {
	kind := strings.TrimPrefix(string(eventType), eventTypePrefix)

	return fmt.Sprintf("%s.%d.%s", prefix, pdev, kind)
}

// FirmwareSubjectFilter matches every firmware event under prefix.
func FirmwareSubjectFilter(prefix string) string {
	return prefix + ".>"
}

// EventPublisher publishes firmware event envelopes to a JetStream stream.
type EventPublisher struct {
	js     jetstream.JetStream
	prefix string
	source string
}

// NewEventPublisher creates an EventPublisher that publishes under prefix and
// stamps new envelopes with source.
func NewEventPublisher(js jetstream.JetStream, prefix, source string) *EventPublisher {
	return &EventPublisher{
		js:     js,
		prefix: prefix,
		source: source,
	}
}

// Publish sends an already built envelope and returns its stream sequence.
// The envelope ID doubles as the JetStream message ID so redelivered
// publishes are deduplicated by the server.
func (p *EventPublisher) Publish(ctx context.Context, event *models.FirmwareEvent) (uint64, error) {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal firmware event: %w", err)
	}

	subject := FirmwareSubject(p.prefix, event.PdevID, event.Type)

	ack, err := p.js.Publish(ctx, subject, eventBytes, jetstream.WithMsgID(event.ID))
	if err != nil {
		return 0, fmt.Errorf("failed to publish firmware event to %s: %w", subject, err)
	}

	return ack.Sequence, nil
}

// PublishPayload wraps payload in a fresh envelope and publishes it.
func (p *EventPublisher) PublishPayload(
	ctx context.Context, pdev models.PdevID, eventType models.FirmwareEventType, payload interface{}) (*models.FirmwareEvent, error) {
	event, err := models.NewFirmwareEvent(p.source, pdev, eventType, payload)
	if err != nil {
		return nil, err
	}

	if _, err := p.Publish(ctx, event); err != nil {
		return nil, err
	}

	return event, nil
}

// ensureSubjectList appends subject unless an existing filter already covers it.
func ensureSubjectList(subjects []string, subject string) []string {
	for _, existing := range subjects {
		if matchesSubject(existing, subject) {
			return subjects
		}
	}

	return append(subjects, subject)
}

// matchesSubject reports whether the NATS subject pattern covers subject.
// A subject that is itself a wildcard is only covered by an identical or
// broader pattern token.
func matchesSubject(pattern, subject string) bool {
	if pattern == subject {
		return true
	}

	patternTokens := strings.Split(pattern, ".")
	subjectTokens := strings.Split(subject, ".")

	for i, token := range patternTokens {
		if token == ">" {
			return len(subjectTokens) > i
		}

		if i >= len(subjectTokens) {
			return false
		}

		switch {
		case token == "*":
			if subjectTokens[i] == ">" {
				return false
			}
		case token != subjectTokens[i]:
			return false
		}
	}

	return len(patternTokens) == len(subjectTokens)
}

func isStreamMissingErr(err error) bool {
	return errors.Is(err, jetstream.ErrStreamNotFound) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrStreamNotFound) ||
		errors.Is(err, nats.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrNoResponders)
}
