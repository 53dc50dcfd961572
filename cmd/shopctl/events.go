package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/shopbot/internal/messaging/kafka"
)

type eventsOptions struct {
	brokers    []string
	topic      string
	group      string
	fromOldest bool
	asJSON     bool
}

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect order lifecycle events in Kafka",
	}
	cmd.AddCommand(eventsTailCmd())
	return cmd
}

func eventsTailCmd() *cobra.Command {
	opts := &eventsOptions{}

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print order events as they arrive (Ctrl+C to stop)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(opts.brokers) == 0 {
				return fmt.Errorf("--brokers (or SHOPBOT_KAFKA_BROKERS) is required")
			}
			group := opts.group
			if group == "" {
				group = "shopctl-tail-" + uuid.NewString()
			}

			out := cmd.OutOrStdout()
			consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
				Brokers:    opts.brokers,
				GroupID:    group,
				Topics:     []string{opts.topic},
				ClientID:   "shopctl",
				FromOldest: opts.fromOldest,
			}, func(_ context.Context, message *sarama.ConsumerMessage) error {
				return printEvent(out, message, opts.asJSON)
			})
			if err != nil {
				return err
			}
			return consumer.Run(cmd.Context())
		},
	}

	cmd.Flags().StringSliceVar(&opts.brokers, "brokers", splitList(os.Getenv("SHOPBOT_KAFKA_BROKERS")), "Kafka brokers")
	cmd.Flags().StringVar(&opts.topic, "topic", kafka.TopicOrderEvents, "topic to tail, e.g. "+kafka.TopicDeadLetterQueue)
	cmd.Flags().StringVar(&opts.group, "group", "", "consumer group (default: random, no committed offsets reused)")
	cmd.Flags().BoolVar(&opts.fromOldest, "from-oldest", false, "start from the oldest retained event")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print events as JSON lines")
	return cmd
}

// printEvent печатает событие; сообщения, которые не разбираются как событие
// заказа, печатаются как есть и не считаются ошибкой.
func printEvent(w io.Writer, message *sarama.ConsumerMessage, asJSON bool) error {
	event, err := kafka.ParseOrderEvent(message)
	if err != nil {
		_, werr := fmt.Fprintf(w, "%s[%d]@%d raw %s\n", message.Topic, message.Partition, message.Offset, string(message.Value))
		return werr
	}
	if asJSON {
		return json.NewEncoder(w).Encode(event)
	}

	keys := make([]string, 0, len(event.Metadata))
	for k := range event.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	extra := make([]string, 0, len(keys))
	for _, k := range keys {
		extra = append(extra, fmt.Sprintf("%s=%v", k, event.Metadata[k]))
	}
	headers := kafka.MessageHeaders(message)
	if reason := headers[kafka.HeaderErrorMessage]; reason != "" {
		extra = append(extra, fmt.Sprintf("attempts=%s error=%q", headers[kafka.HeaderRetryCount], reason))
	}
	_, err = fmt.Fprintf(w, "%s %-16s %-20s %-9s buyer=%s %s\n",
		event.Timestamp.Local().Format("15:04:05"),
		event.EventType, event.OrderID, event.Status, event.BuyerRef, strings.Join(extra, " "))
	return err
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
