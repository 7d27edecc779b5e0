// Package kafka adapts segmentio/kafka-go to the eventbus interfaces so the
// outbox publisher and notification worker can run against Kafka instead of Pub/Sub.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/eventbus"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	defaultWriteTimeout = 10 * time.Second
	handlerRetries      = 3
	handlerRetryDelay   = 500 * time.Millisecond
)

// Publisher writes messages to Kafka topics. One writer serves every topic;
// the topic is carried on each message.
type Publisher struct {
	brokers []string
	writer  *kafkago.Writer
}

// NewPublisher builds a writer for the configured brokers.
func NewPublisher(cfg config.KafkaConfig) (*Publisher, error) {
	brokers := cfg.BrokerList()
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	return &Publisher{
		brokers: brokers,
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireOne,
			WriteTimeout: defaultWriteTimeout,
		},
	}, nil
}

// Publish writes one message. Messages with the same key land on the same partition.
func (p *Publisher) Publish(ctx context.Context, topic string, msg eventbus.Message) error {
	if topic == "" {
		return fmt.Errorf("%w: empty kafka topic", eventbus.ErrTopicNotConfigured)
	}
	headers := make([]kafkago.Header, 0, len(msg.Attributes))
	for k, v := range msg.Attributes {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	return p.writer.WriteMessages(ctx, kafkago.Message{
		Topic:   topic,
		Key:     []byte(msg.Key),
		Value:   msg.Data,
		Headers: headers,
		Time:    time.Now().UTC(),
	})
}

// Ping dials the first reachable broker.
func (p *Publisher) Ping(ctx context.Context) error {
	var lastErr error
	for _, broker := range p.brokers {
		conn, err := kafkago.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("kafka unreachable: %w", lastErr)
}

// Close flushes pending writes.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// EnsureTopics creates the given topics on the cluster controller. Existing
// topics are left untouched.
func EnsureTopics(ctx context.Context, cfg config.KafkaConfig, topics ...string) error {
	brokers := cfg.BrokerList()
	if len(brokers) == 0 {
		return errors.New("kafka brokers are required")
	}
	conn, err := kafkago.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("dial kafka: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka controller: %w", err)
	}
	controllerConn, err := kafkago.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial kafka controller: %w", err)
	}
	defer controllerConn.Close()

	configs := make([]kafkago.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		if topic == "" {
			continue
		}
		configs = append(configs, kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     3,
			ReplicationFactor: 1,
		})
	}
	return controllerConn.CreateTopics(configs...)
}

// Subscriber consumes one topic as part of a consumer group.
type Subscriber struct {
	reader *kafkago.Reader
	logg   *logger.Logger
}

// NewSubscriber builds a group reader for topic.
func NewSubscriber(cfg config.KafkaConfig, topic string, logg *logger.Logger) (*Subscriber, error) {
	brokers := cfg.BrokerList()
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Subscriber{
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: cfg.ConsumerGroup,
		}),
		logg: logg,
	}, nil
}

// Receive fetches messages until ctx is done. A failing handler is retried a
// few times in place; the offset is committed either way so one poison message
// cannot stall the partition.
func (s *Subscriber) Receive(ctx context.Context, handler eventbus.Handler) error {
	defer s.reader.Close()
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("fetch kafka message: %w", err)
		}

		delivery := toDelivery(msg)
		if err := s.handleWithRetry(ctx, handler, delivery); err != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"topic":     msg.Topic,
				"partition": msg.Partition,
				"offset":    msg.Offset,
			})
			s.logg.Error(logCtx, "kafka message dropped after retries", err)
		}

		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("commit kafka offset: %w", err)
		}
	}
}

func (s *Subscriber) handleWithRetry(ctx context.Context, handler eventbus.Handler, delivery eventbus.Delivery) error {
	var err error
	for attempt := 0; attempt < handlerRetries; attempt++ {
		if err = handler(ctx, delivery); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(handlerRetryDelay * time.Duration(attempt+1)):
		}
	}
	return err
}

func toDelivery(msg kafkago.Message) eventbus.Delivery {
	attrs := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		attrs[h.Key] = string(h.Value)
	}
	id := attrs[eventbus.AttrEventID]
	if id == "" {
		id = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}
	return eventbus.Delivery{
		ID:         id,
		Data:       msg.Value,
		Attributes: attrs,
	}
}
