package kafka

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// Producer — синхронный idempotent producer событий заказов.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
}

type ProducerConfig struct {
	Brokers  []string
	ClientID string
	// AckTimeout — сколько брокер ждёт подтверждения всех реплик.
	AckTimeout time.Duration
}

func newSaramaConfig(cfg ProducerConfig) *sarama.Config {
	config := sarama.NewConfig()
	if cfg.ClientID != "" {
		config.ClientID = cfg.ClientID
	}
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	// Повторы делает outbox worker; внутри sarama хватает короткого окна.
	config.Producer.Retry.Max = 3
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	if cfg.AckTimeout > 0 {
		config.Producer.Timeout = cfg.AckTimeout
	}
	return config
}

// NewProducer подключается к брокерам.
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are not configured")
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, newSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &Producer{
		producer: producer,
		logger:   log.WithField("component", "kafka-producer"),
	}, nil
}

// send отправляет готовое значение и ждёт подтверждения брокера.
func (p *Producer) send(topic, key string, value []byte, headers []sarama.RecordHeader) error {
	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(value),
		Headers:   headers,
		Timestamp: time.Now(),
	})
	fields := log.Fields{"topic": topic, "key": key}
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Warn("kafka send failed")
		return fmt.Errorf("send to %s: %w", topic, err)
	}

	fields["partition"], fields["offset"] = partition, offset
	p.logger.WithFields(fields).Debug("kafka message acknowledged")
	return nil
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
