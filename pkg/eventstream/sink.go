package eventstream

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Sink receives context events. Implementations must tolerate concurrent
// Publish calls; the session treats failures as log-and-drop.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// NopSink drops every event. Default when no transport is configured.
type NopSink struct{}

var _ Sink = NopSink{}

func (NopSink) Publish(context.Context, Event) error { return nil }

// WatermillSink publishes events as JSON messages on one topic.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

var _ Sink = &WatermillSink{}

func NewWatermillSink(publisher message.Publisher, topic string) (*WatermillSink, error) {
	if publisher == nil {
		return nil, errors.New("event sink: publisher is nil")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillSink{publisher: publisher, topic: topic}, nil
}

func (s *WatermillSink) Publish(_ context.Context, ev Event) error {
	if s == nil || s.publisher == nil {
		return errors.New("event sink: not initialized")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "event sink: marshal event")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", string(ev.Type))
	msg.Metadata.Set("session_id", ev.SessionID)
	return errors.Wrapf(s.publisher.Publish(s.topic, msg), "event sink: publish to %s", s.topic)
}

// Close releases the underlying publisher.
func (s *WatermillSink) Close() error {
	if s == nil || s.publisher == nil {
		return nil
	}
	return s.publisher.Close()
}

// NewGoChannelSink builds an in-process sink plus the subscriber side of the
// same pub/sub, for local consumers and tests. Subscribe before publishing;
// the channel transport does not replay history.
func NewGoChannelSink() (*WatermillSink, message.Subscriber) {
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		NewWatermillLogger(log.With().Str("component", "eventstream").Logger()),
	)
	return &WatermillSink{publisher: pubsub, topic: DefaultTopic}, pubsub
}
