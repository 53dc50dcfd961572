package app

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestInitKafkaProducer(t *testing.T) {
	logger := log.WithField("test", "kafka")

	t.Run("no brokers disables publishing", func(t *testing.T) {
		producer, err := initKafkaProducer(KafkaConfig{}, logger)
		require.NoError(t, err)
		require.Nil(t, producer)
	})

	t.Run("unreachable broker", func(t *testing.T) {
		if testing.Short() {
			t.Skip("dials a broker")
		}
		producer, err := initKafkaProducer(KafkaConfig{Brokers: []string{"127.0.0.1:1"}}, logger)
		if err == nil {
			closeKafka(producer, logger)
		}
		require.Error(t, err)
		require.Nil(t, producer)
	})

	t.Run("close tolerates nil", func(t *testing.T) {
		closeKafka(nil, logger)
	})
}
