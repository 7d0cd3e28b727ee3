package worker

import (
	"context"
	"errors"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Handler processes one task payload; nil acknowledges the message.
type Handler interface {
	Handle(ctx context.Context, payload []byte) error
}

// Consumer feeds task messages to a Handler one at a time and commits each
// offset only after the handler accepted the message.
type Consumer struct {
	group        sarama.ConsumerGroup
	topics       []string
	handler      Handler
	restartDelay time.Duration
	log          *zap.SugaredLogger
}

func NewConsumer(group sarama.ConsumerGroup, topic string, handler Handler, restartDelay time.Duration) *Consumer {
	return &Consumer{
		group:        group,
		topics:       []string{topic},
		handler:      handler,
		restartDelay: restartDelay,
		log:          zap.S().Named("consumer"),
	}
}

func (c *Consumer) Setup(session sarama.ConsumerGroupSession) error {
	c.log.Infof("consumer session started: memberID=%s, claims=%v", session.MemberID(), session.Claims())
	return nil
}

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim returns on the first handler error. That ends the session
// without committing, so the message is delivered again after the rejoin.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			if err := c.handler.Handle(session.Context(), msg.Value); err != nil {
				c.log.Errorf("handle task at %s/%d offset %d: %v", msg.Topic, msg.Partition, msg.Offset, err)
				return err
			}

			session.MarkMessage(msg, "")
			session.Commit()
		case <-session.Context().Done():
			return nil
		}
	}
}

// Run consumes until ctx is done, rejoining the group after restartDelay
// whenever a session ends.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.log.Errorf("consumer group error: %v", err)
		}
	}()

	for {
		err := c.group.Consume(ctx, c.topics, c)
		if err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.log.Errorf("consume %v: %v", c.topics, err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.restartDelay):
		}
	}
}
