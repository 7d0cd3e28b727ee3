package mq

import (
	"context"

	"recsys/internal/config"
	"recsys/internal/infrastructure/retry"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Producer publishes task messages with broker acknowledgement from all
// in-sync replicas.
type Producer struct {
	producer sarama.SyncProducer
}

// NewProducer connects a synchronous producer, retrying per cfg.Retry.
func NewProducer(ctx context.Context, cfg *config.KafkaConfig) (*Producer, error) {
	kafkaConfig := NewSaramaConfig(cfg)

	policy := retry.Policy{MaxAttempts: cfg.Retry.MaxAttempts, Delay: cfg.Retry.Delay}
	producer, err := retry.Connect(ctx, "kafka producer", policy, func(ctx context.Context) (sarama.SyncProducer, error) {
		return sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	})
	if err != nil {
		return nil, err
	}

	zap.S().Named("kafka").Info("kafka producer created")
	return NewProducerFromSync(producer), nil
}

func NewProducerFromSync(producer sarama.SyncProducer) *Producer {
	return &Producer{producer: producer}
}

// SendMessage returns only after the broker acknowledged the message.
func (p *Producer) SendMessage(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("content-type"), Value: []byte("application/json")},
		},
	}

	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

// NewConsumerGroup joins the worker consumer group, retrying per cfg.Retry.
func NewConsumerGroup(ctx context.Context, cfg *config.KafkaConfig) (sarama.ConsumerGroup, error) {
	kafkaConfig := NewSaramaConfig(cfg)

	policy := retry.Policy{MaxAttempts: cfg.Retry.MaxAttempts, Delay: cfg.Retry.Delay}
	group, err := retry.Connect(ctx, "kafka consumer", policy, func(ctx context.Context) (sarama.ConsumerGroup, error) {
		return sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, kafkaConfig)
	})
	if err != nil {
		return nil, err
	}

	zap.S().Named("kafka").Infof("joined consumer group %s", cfg.ConsumerGroup)
	return group, nil
}

// NewSaramaConfig builds the client config shared by producer and consumer.
// Offsets are committed manually, after the task reached a terminal state.
func NewSaramaConfig(cfg *config.KafkaConfig) *sarama.Config {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Version = sarama.V2_1_0_0
	kafkaConfig.ClientID = "recsys"

	if cfg.KeepAlive > 0 {
		kafkaConfig.Net.KeepAlive = cfg.KeepAlive
	}

	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true

	kafkaConfig.ChannelBufferSize = 1
	kafkaConfig.Consumer.Return.Errors = true
	kafkaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	kafkaConfig.Consumer.Offsets.AutoCommit.Enable = false
	if cfg.SessionTimeout > 0 {
		kafkaConfig.Consumer.Group.Session.Timeout = cfg.SessionTimeout
	}
	if cfg.Heartbeat > 0 {
		kafkaConfig.Consumer.Group.Heartbeat.Interval = cfg.Heartbeat
	}

	return kafkaConfig
}
