package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopbot/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shopbot/internal/version"
)

// initKafkaProducer подключает producer событий. Без брокеров возвращает nil, nil:
// публикация событий выключена, заказы работают как обычно.
func initKafkaProducer(cfg KafkaConfig, logger *log.Entry) (*kafka.Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "shopbot-" + version.GetVersion()
	}
	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:    cfg.Brokers,
		ClientID:   clientID,
		AckTimeout: cfg.AckTimeout,
	})
	if err != nil {
		logger.WithError(err).Warn("kafka unavailable, order events will not be published")
		return nil, err
	}

	logger.WithFields(log.Fields{"brokers": cfg.Brokers, "topic": cfg.Topic}).Info("kafka producer ready")
	return producer, nil
}

func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("kafka producer close failed")
	}
}
