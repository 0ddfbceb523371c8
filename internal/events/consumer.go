package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/cooktodor/notifier/pkg/logger"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// KafkaConfig describes the consumer group subscription.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	Group    string
	ClientID string
}

// NewConsumerGroup dials the brokers and joins cfg.Group.
func NewConsumerGroup(cfg KafkaConfig) (sarama.ConsumerGroup, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("events: at least one kafka broker is required")
	}
	if strings.TrimSpace(cfg.Group) == "" {
		return nil, errors.New("events: kafka consumer group is required")
	}

	config := sarama.NewConfig()
	config.Version = sarama.V2_1_0_0
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true
	if cfg.ClientID != "" {
		config.ClientID = cfg.ClientID
	}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.Group, config)
	if err != nil {
		return nil, fmt.Errorf("events: create consumer group: %w", err)
	}
	return group, nil
}

// MessageHandler processes one raw message value.
type MessageHandler interface {
	Handle(ctx context.Context, payload []byte) error
}

// Consumer feeds business events from a Kafka topic into a MessageHandler.
type Consumer struct {
	topic   string
	group   sarama.ConsumerGroup
	handler MessageHandler
	log     *zap.Logger
}

var _ sarama.ConsumerGroupHandler = (*Consumer)(nil)

// NewConsumer constructs a consumer over an existing consumer group.
func NewConsumer(topic string, group sarama.ConsumerGroup, handler MessageHandler) (*Consumer, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("events: topic is required")
	}
	if group == nil {
		return nil, errors.New("events: consumer group is required")
	}
	if handler == nil {
		return nil, errors.New("events: handler is required")
	}
	return &Consumer{
		topic:   topic,
		group:   group,
		handler: handler,
		log:     logger.WithModule("events"),
	}, nil
}

// Start consumes until ctx is cancelled or the group is closed. Transient
// errors are retried with exponential backoff.
func (c *Consumer) Start(ctx context.Context) error {
	defer func() {
		if err := c.group.Close(); err != nil {
			c.log.Warn("failed to close consumer group", zap.Error(err))
		}
	}()

	go c.drainErrors(ctx)

	c.log.Info("kafka consumer started", zap.String("topic", c.topic))

	backoff := initialBackoff
	for {
		err := c.group.Consume(ctx, []string{c.topic}, c)
		if ctx.Err() != nil {
			c.log.Info("kafka consumer stopped")
			return nil
		}
		if err == nil {
			backoff = initialBackoff
			continue
		}
		if errors.Is(err, sarama.ErrClosedConsumerGroup) {
			return err
		}

		c.log.Error("kafka consume failed", zap.Error(err), zap.Duration("retry_in", backoff))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

func (c *Consumer) drainErrors(ctx context.Context) {
	errs := c.group.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				return
			}
			c.log.Warn("kafka consumer group error", zap.Error(err))
		}
	}
}

// Setup logs the partitions assigned to this session.
func (c *Consumer) Setup(session sarama.ConsumerGroupSession) error {
	for topic, partitions := range session.Claims() {
		c.log.Info("partition assignment", zap.String("topic", topic), zap.Int32s("partitions", partitions))
	}
	return nil
}

// Cleanup runs when the session ends.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	c.log.Debug("kafka session cleanup complete")
	return nil
}

// ConsumeClaim handles every message of one partition. Messages are marked even
// when handling fails: notifications are best effort and a poison message must
// not stall the partition.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.handler.Handle(session.Context(), message.Value); err != nil {
				c.log.Warn("business event dropped",
					zap.String("topic", message.Topic),
					zap.Int32("partition", message.Partition),
					zap.Int64("offset", message.Offset),
					zap.Error(err),
				)
			}
			session.MarkMessage(message, "")
		}
	}
}
