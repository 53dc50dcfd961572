package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
	"github.com/vladislavdragonenkov/shopbot/internal/format"
	"github.com/vladislavdragonenkov/shopbot/internal/storage/postgres"
)

func journalCmd() *cobra.Command {
	var (
		dsn   string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "journal [order_id]",
		Short: "Print the sales journal (postgres driver only)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(dsn) == "" {
				return fmt.Errorf("--dsn (or SHOPBOT_JOURNAL_DSN) is required")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			store, err := postgres.Open(ctx, dsn)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			repo := postgres.NewJournalRepository(store)
			var entries []domain.JournalEntry
			if len(args) == 1 {
				entries, err = repo.List(ctx, args[0])
			} else {
				entries, err = repo.Recent(ctx, limit)
			}
			if err != nil {
				return err
			}
			printJournal(cmd, entries)
			return nil
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", os.Getenv("SHOPBOT_JOURNAL_DSN"), "sales journal PostgreSQL DSN")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of recent entries")
	return cmd
}

func printJournal(cmd *cobra.Command, entries []domain.JournalEntry) {
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "journal is empty")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OCCURRED\tORDER\tTYPE\tREASON\tPRODUCT\tQTY\tTOTAL\tBUYER")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			e.Occurred.Local().Format("2006-01-02 15:04:05"),
			e.OrderID, e.Type, e.Reason, e.ProductCode, e.Quantity,
			format.IDR(e.Total), e.BuyerRef)
	}
	_ = tw.Flush()
}
