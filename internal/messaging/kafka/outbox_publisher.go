package kafka

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

// OutboxTopicPublisher отправляет payload события как есть, ключ — номер заказа.
// deadLetter включает заголовки причины отказа для DLQ.
type OutboxTopicPublisher struct {
	producer   *Producer
	topic      string
	deadLetter bool
}

// NewOutboxPublisher публикует события заказов в topic (по умолчанию TopicOrderEvents).
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

// NewDeadLetterPublisher паркует события, исчерпавшие попытки, в TopicDeadLetterQueue.
func NewDeadLetterPublisher(producer *Producer) *OutboxTopicPublisher {
	return &OutboxTopicPublisher{producer: producer, topic: TopicDeadLetterQueue, deadLetter: true}
}

func (p *OutboxTopicPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("%w: kafka outbox publisher is not initialized", domain.ErrOutboxPublish)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrOutboxPublish, err)
	}

	key := msg.OrderID
	if key == "" {
		key = msg.ID
	}

	if err := p.producer.send(p.topic, key, msg.Payload, p.headers(msg)); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrOutboxPublish, err)
	}
	return nil
}

func (p *OutboxTopicPublisher) headers(msg domain.OutboxMessage) []sarama.RecordHeader {
	headers := []sarama.RecordHeader{
		{Key: []byte(HeaderOutboxID), Value: []byte(msg.ID)},
		{Key: []byte(HeaderEventType), Value: []byte(msg.EventType)},
		{Key: []byte(HeaderAttempt), Value: []byte(strconv.Itoa(msg.Attempts + 1))},
	}
	if !p.deadLetter {
		return headers
	}
	return append(headers,
		sarama.RecordHeader{Key: []byte(HeaderOriginalTopic), Value: []byte(TopicOrderEvents)},
		sarama.RecordHeader{Key: []byte(HeaderRetryCount), Value: []byte(strconv.Itoa(msg.Attempts))},
		sarama.RecordHeader{Key: []byte(HeaderErrorMessage), Value: []byte(msg.LastError)},
		sarama.RecordHeader{Key: []byte(HeaderFailedAt), Value: []byte(time.Now().UTC().Format(time.RFC3339))},
	)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
