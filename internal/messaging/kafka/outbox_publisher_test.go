package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

func headerMap(msg *sarama.ProducerMessage) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[string(h.Key)] = string(h.Value)
	}
	return out
}

func testProducer(sync sarama.SyncProducer) *Producer {
	return &Producer{
		producer: sync,
		logger:   log.WithField("component", "kafka-outbox-publisher-test"),
	}
}

func TestOutboxPublisher_SendsPayloadKeyedByOrder(t *testing.T) {
	t.Parallel()

	payload := `{"event_type":"order.finalized","order_id":"PBS-123"}`
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		value, _ := msg.Value.Encode()
		headers := headerMap(msg)
		switch {
		case msg.Topic != TopicOrderEvents:
			return fmt.Errorf("topic %s", msg.Topic)
		case string(key) != "PBS-123":
			return fmt.Errorf("key %s", key)
		case string(value) != payload:
			return fmt.Errorf("value %s", value)
		case headers[HeaderOutboxID] != "outbox-1" || headers[HeaderAttempt] != "3":
			return fmt.Errorf("headers %v", headers)
		case headers[HeaderErrorMessage] != "":
			return errors.New("regular topic must not carry failure headers")
		}
		return nil
	})

	err := NewOutboxPublisher(testProducer(mockProducer), "").Publish(context.Background(), domain.OutboxMessage{
		ID:        "outbox-1",
		OrderID:   "PBS-123",
		EventType: domain.JournalOrderFinalized,
		Payload:   []byte(payload),
		Attempts:  2,
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDeadLetterPublisher_CarriesFailure(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		headers := headerMap(msg)
		if msg.Topic != TopicDeadLetterQueue {
			return fmt.Errorf("topic %s", msg.Topic)
		}
		if headers[HeaderErrorMessage] != "broker down" || headers[HeaderRetryCount] != "5" ||
			headers[HeaderOriginalTopic] != TopicOrderEvents || headers[HeaderFailedAt] == "" {
			return fmt.Errorf("headers %v", headers)
		}
		return nil
	})

	err := NewDeadLetterPublisher(testProducer(mockProducer)).Publish(context.Background(), domain.OutboxMessage{
		ID:        "outbox-2",
		OrderID:   "PBS-234",
		EventType: domain.JournalOrderReleased,
		Payload:   []byte(`{}`),
		Attempts:  5,
		LastError: "broker down",
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_Errors(t *testing.T) {
	t.Parallel()

	t.Run("producer error", func(t *testing.T) {
		mockProducer := mocks.NewSyncProducer(t, nil)
		mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

		err := NewOutboxPublisher(testProducer(mockProducer), TopicOrderEvents).
			Publish(context.Background(), domain.OutboxMessage{ID: "outbox-3", OrderID: "PBS-3"})
		if !errors.Is(err, domain.ErrOutboxPublish) {
			t.Fatalf("expected ErrOutboxPublish, got %v", err)
		}
		if err := mockProducer.Close(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("nil producer", func(t *testing.T) {
		err := NewOutboxPublisher(nil, "").Publish(context.Background(), domain.OutboxMessage{ID: "outbox-4"})
		if !errors.Is(err, domain.ErrOutboxPublish) {
			t.Fatalf("expected ErrOutboxPublish, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := NewOutboxPublisher(testProducer(mocks.NewSyncProducer(t, nil)), "").
			Publish(ctx, domain.OutboxMessage{ID: "outbox-5"})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}
