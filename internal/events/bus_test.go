package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/menumaster-admin/internal/events"
	"github.com/noah-isme/menumaster-admin/internal/resilience"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

type capturePublisher struct {
	events []events.Event
}

func (c *capturePublisher) Name() string { return "capture" }

func (c *capturePublisher) Publish(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return nil
}

func TestEmitFansOutToKafka(t *testing.T) {
	writer := &fakeWriter{}
	capture := &capturePublisher{}
	fixed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	bus := events.Bus{
		Publishers: []events.Publisher{events.NewKafkaPublisherWithWriter(writer), capture},
		Now:        func() time.Time { return fixed },
	}

	ev, err := bus.Emit(context.Background(), events.TopicRuleApproved, "price1", map[string]any{"status": "approved"})
	require.NoError(t, err)
	require.NotEmpty(t, ev.ID)
	require.Equal(t, fixed, ev.OccurredAt)
	require.JSONEq(t, `{"status":"approved"}`, string(ev.Payload))

	require.Len(t, writer.msgs, 1)
	require.Equal(t, "price1", string(writer.msgs[0].Key))
	var decoded events.Event
	require.NoError(t, json.Unmarshal(writer.msgs[0].Value, &decoded))
	require.Equal(t, events.TopicRuleApproved, decoded.Topic)
	require.Len(t, capture.events, 1)
	require.Equal(t, ev.ID, capture.events[0].ID)
}

func TestEmitJoinsPublisherErrors(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	capture := &capturePublisher{}
	bus := events.Bus{Publishers: []events.Publisher{events.NewKafkaPublisherWithWriter(writer), capture}}

	ev, err := bus.Emit(context.Background(), events.TopicRuleRejected, "price2", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "broker down")
	require.Equal(t, "price2", ev.AggregateID)
	require.Len(t, capture.events, 1, "remaining publishers still receive the event")
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{}
	_, err := bus.Emit(context.Background(), " ", "price1", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicRuleSubmitted, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicRuleSubmitted, "price1", []byte("{not json"))
	require.Error(t, err)
}

func TestLogPublisherWritesPayload(t *testing.T) {
	var buf bytes.Buffer
	bus := events.Bus{Publishers: []events.Publisher{events.LogPublisher{Logger: zerolog.New(&buf)}}}
	_, err := bus.Emit(context.Background(), events.TopicRuleSuperseded, "price1", map[string]string{"supersededBy": "price9"})
	require.NoError(t, err)
	require.Contains(t, buf.String(), `"topic":"pricing_rule.superseded"`)
	require.Contains(t, buf.String(), `"supersededBy":"price9"`)
}

func TestNewKafkaPublisherRequiresBrokers(t *testing.T) {
	_, err := events.NewKafkaPublisher([]string{" "}, "pricing")
	require.Error(t, err)
	p, err := events.NewKafkaPublisher([]string{"localhost:9092"}, "pricing")
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestKafkaPublisherBreakerFailsFast(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	breaker := resilience.NewBreaker(1, 0.5, time.Minute)
	pub := events.NewKafkaPublisherWithWriter(writer).WithBreaker(breaker)
	ev := events.Event{ID: "e1", Topic: events.TopicRuleApproved, AggregateID: "price1"}

	require.EqualError(t, pub.Publish(context.Background(), ev), "broker down")
	require.Equal(t, resilience.Open, breaker.State())

	writer.err = nil
	require.ErrorIs(t, pub.Publish(context.Background(), ev), resilience.ErrOpenCircuit)
	require.Empty(t, writer.msgs)
}
