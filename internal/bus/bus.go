// Package bus carries the cross-surface messages of the chat client: service
// selections travel to the chat surface and side-channel payloads travel to
// the display relay. It is in-memory by default and uses Redis Streams when
// enabled, so surfaces can live in separate processes.
package bus

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	TopicSelect  = "chat.select"
	TopicDisplay = "display.payload"
)

// Settings selects the transport.
type Settings struct {
	RedisEnabled bool
	RedisAddr    string
	Group        string
	Consumer     string
}

// Bus bundles a publisher and a subscriber of the same transport.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	redis *redis.Client
}

// New builds an in-memory bus, or a Redis Streams one when enabled.
func New(s Settings) (*Bus, error) {
	logger := NewLogger()
	if !s.RedisEnabled {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
		return &Bus{Publisher: ch, Subscriber: ch}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis publisher")
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "redis subscriber")
	}
	log.Info().Str("component", "bus").Str("addr", s.RedisAddr).Str("group", s.Group).Msg("using redis streams transport")
	return &Bus{Publisher: pub, Subscriber: sub, redis: client}, nil
}

// PublishJSON marshals v and publishes it on topic.
func (b *Bus) PublishJSON(topic string, v any) error {
	return PublishJSON(b.Publisher, topic, v)
}

func (b *Bus) Close() error {
	var first error
	if err := b.Publisher.Close(); err != nil {
		first = err
	}
	if b.Subscriber != nil && any(b.Subscriber) != any(b.Publisher) {
		if err := b.Subscriber.Close(); err != nil && first == nil {
			first = err
		}
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PublishJSON is the function form used by components that only hold a
// message.Publisher.
func PublishJSON(pub message.Publisher, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encoding %s message", topic)
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	return errors.Wrapf(pub.Publish(topic, msg), "publishing on %s", topic)
}

type zerologAdapter struct {
	fields watermill.LogFields
}

// NewLogger adapts the global zerolog logger to watermill.
func NewLogger() watermill.LoggerAdapter {
	return zerologAdapter{}
}

func (z zerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	log.Error().Err(err).Fields(map[string]any(z.fields.Add(fields))).Str("component", "bus").Msg(msg)
}

func (z zerologAdapter) Info(msg string, fields watermill.LogFields) {
	log.Debug().Fields(map[string]any(z.fields.Add(fields))).Str("component", "bus").Msg(msg)
}

func (z zerologAdapter) Debug(msg string, fields watermill.LogFields) {
	log.Debug().Fields(map[string]any(z.fields.Add(fields))).Str("component", "bus").Msg(msg)
}

func (z zerologAdapter) Trace(msg string, fields watermill.LogFields) {
	log.Trace().Fields(map[string]any(z.fields.Add(fields))).Str("component", "bus").Msg(msg)
}

func (z zerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return zerologAdapter{fields: z.fields.Add(fields)}
}
