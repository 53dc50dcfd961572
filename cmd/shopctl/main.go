// Команда shopctl — операторский CLI магазина: перезагрузка каталога,
// уведомление о низких остатках, здоровье сервиса, журнал продаж и хвост событий.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/shopbot/internal/version"
)

type globalOptions struct {
	server  string
	secret  string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "shopctl",
		Short:         "Operator CLI for the shopbot storefront",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.server, "server", envOr("SHOPCTL_SERVER", "http://localhost:3000"), "shopbot HTTP base URL")
	rootCmd.PersistentFlags().StringVar(&opts.secret, "secret", os.Getenv("SHOPBOT_ADMIN_SECRET"), "admin shared secret")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "request timeout")

	rootCmd.AddCommand(reloadCmd(opts))
	rootCmd.AddCommand(lowStockCmd(opts))
	rootCmd.AddCommand(statusCmd(opts))
	rootCmd.AddCommand(journalCmd())
	rootCmd.AddCommand(eventsCmd())

	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
