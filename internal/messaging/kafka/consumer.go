package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// MessageHandler получает сообщения по порядку внутри партиции.
// Ошибка обработчика останавливает Run.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// ConsumerConfig — параметры чтения событий заказов.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topics   []string
	ClientID string
	// FromOldest читает с начала retention, если у группы нет offset.
	FromOldest bool
}

// Consumer читает topic событий через consumer group. Используется shopctl
// для просмотра событий и DLQ; сервис сам события не потребляет.
type Consumer struct {
	group   sarama.ConsumerGroup
	topics  []string
	handler MessageHandler
	logger  *log.Entry
}

func newConsumerConfig(cfg ConsumerConfig) *sarama.Config {
	config := sarama.NewConfig()
	if cfg.ClientID != "" {
		config.ClientID = cfg.ClientID
	}
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	if cfg.FromOldest {
		config.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	config.Consumer.Return.Errors = true
	return config
}

func NewConsumer(cfg ConsumerConfig, handler MessageHandler) (*Consumer, error) {
	if len(cfg.Brokers) == 0 || len(cfg.Topics) == 0 {
		return nil, errors.New("kafka consumer needs brokers and topics")
	}
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, newConsumerConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}
	return &Consumer{
		group:   group,
		topics:  cfg.Topics,
		handler: handler,
		logger:  log.WithFields(log.Fields{"component": "kafka-consumer", "group": cfg.GroupID}),
	}, nil
}

// Run читает до отмены ctx или ошибки обработчика, затем закрывает группу.
// Отмена ctx не считается ошибкой.
func (c *Consumer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	errsDone := make(chan struct{})
	go func() {
		defer close(errsDone)
		for err := range c.group.Errors() {
			c.logger.WithError(err).Warn("consumer group error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	var runErr error
	for ctx.Err() == nil {
		// Consume возвращается на каждом rebalance.
		err := c.group.Consume(ctx, c.topics, &claimHandler{handler: c.handler, abort: cancel})
		if err != nil && !errors.Is(err, sarama.ErrClosedConsumerGroup) {
			runErr = err
			break
		}
	}
	if cause := context.Cause(ctx); runErr == nil && cause != nil && !errors.Is(cause, context.Canceled) {
		runErr = cause
	}

	closeErr := c.group.Close()
	<-errsDone
	c.logger.Info("kafka consumer stopped")
	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return fmt.Errorf("close kafka consumer group: %w", closeErr)
	}
	return nil
}

// claimHandler отмечает сообщение только после успешной обработки.
type claimHandler struct {
	handler MessageHandler
	abort   context.CancelCauseFunc
}

func (h *claimHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *claimHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.handler(session.Context(), message); err != nil {
				err = fmt.Errorf("%s[%d]@%d: %w", message.Topic, message.Partition, message.Offset, err)
				h.abort(err)
				return err
			}
			session.MarkMessage(message, "")
		}
	}
}

// ParseOrderEvent разбирает событие заказа из значения сообщения.
func ParseOrderEvent(message *sarama.ConsumerMessage) (*OrderEvent, error) {
	var event OrderEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order event: %w", err)
	}
	if event.OrderID == "" {
		return nil, fmt.Errorf("order event without order_id")
	}
	return &event, nil
}

// MessageHeaders собирает заголовки в map; повторный ключ перекрывает предыдущий.
func MessageHeaders(message *sarama.ConsumerMessage) map[string]string {
	out := make(map[string]string, len(message.Headers))
	for _, h := range message.Headers {
		if h != nil {
			out[string(h.Key)] = string(h.Value)
		}
	}
	return out
}
