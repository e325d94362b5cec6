package eventstream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisSettings holds the Redis Streams transport configuration.
type RedisSettings struct {
	Addr     string `yaml:"addr"`
	Stream   string `yaml:"stream"`
	Group    string `yaml:"group"`
	Consumer string `yaml:"consumer"`
}

func (s RedisSettings) stream() string {
	if strings.TrimSpace(s.Stream) == "" {
		return DefaultTopic
	}
	return strings.TrimSpace(s.Stream)
}

// BuildRedisSink constructs a sink publishing to a Redis Stream.
func BuildRedisSink(s RedisSettings) (*WatermillSink, error) {
	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	logger := NewWatermillLogger(log.With().Str("component", "eventstream").Logger())

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		return nil, err
	}
	return NewWatermillSink(pub, s.stream())
}

// BuildRedisSubscriber returns a Redis Streams subscriber bound to the given
// consumer group/name.
func BuildRedisSubscriber(s RedisSettings) (message.Subscriber, error) {
	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	logger := NewWatermillLogger(log.With().Str("component", "eventstream").Logger())

	return rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
}

// EnsureGroupAtTail creates the consumer group for the stream at the tail ($)
// if it doesn't exist, preventing full historical replay on first subscribe.
func EnsureGroupAtTail(ctx context.Context, s RedisSettings) error {
	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	defer func() { _ = client.Close() }()

	err := client.XGroupCreateMkStream(ctx, s.stream(), s.Group, "$").Err()
	if err != nil {
		// Ignore BUSYGROUP errors (group already exists)
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return err
	}
	log.Info().Str("stream", s.stream()).Str("group", s.Group).Msg("created redis consumer group at $ (tail)")
	return nil
}
