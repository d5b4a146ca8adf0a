package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/menumaster-admin/internal/obs"
)

// LogPublisher writes events to the structured log. It is the only publisher
// when no Kafka brokers are configured.
type LogPublisher struct {
	Logger zerolog.Logger
}

// Name implements Publisher.
func (LogPublisher) Name() string { return "log" }

// Publish implements Publisher.
func (p LogPublisher) Publish(_ context.Context, event Event) error {
	p.Logger.Info().
		Str("event_id", event.ID).
		Str("topic", event.Topic).
		Str("aggregate_id", event.AggregateID).
		RawJSON("payload", event.Payload).
		Time("occurred_at", event.OccurredAt).
		Msg("domain_event")
	obs.ObserveEventPublish(p.Name(), "ok")
	return nil
}
