package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopbot/internal/app"
	"github.com/vladislavdragonenkov/shopbot/internal/version"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(cfg app.LogConfig) error {
	switch cfg.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}

	level := log.InfoLevel
	if cfg.Level != "" {
		parsed, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return err
		}
		level = parsed
	}
	log.SetLevel(level)
	return nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := app.LoadConfig(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if err := setupLogger(cfg.Log); err != nil {
		log.WithError(err).Fatal("invalid log configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":      cfg.HTTP.Addr,
		"metrics_addr":   cfg.Metrics.Addr,
		"grpc_addr":      cfg.GRPC.Addr,
		"journal":        cfg.Journal.Driver,
		"payment":        cfg.Payment.Provider,
		"kafka_brokers":  len(cfg.Kafka.Brokers),
		"payment_window": cfg.Ledger.PaymentTTL,
		"build":          version.String(),
	}).Info("starting shopbot")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("shopbot exited with error")
	}

	log.Info("shopbot stopped")
}
