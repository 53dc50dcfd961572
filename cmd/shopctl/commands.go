package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/shopbot/internal/format"
)

func reloadCmd(opts *globalOptions) *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:       "reload [all|produk|promo]",
		Short:     "Force a catalog reload from the sheets",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"all", "produk", "promo"},
		RunE: func(cmd *cobra.Command, args []string) error {
			what := "all"
			if len(args) == 1 {
				what = args[0]
			}
			res, err := newAdminClient(opts).Reload(cmd.Context(), what, note)
			if err != nil {
				return err
			}
			if !res.OK {
				return fmt.Errorf("reload failed: %s", res.Error)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "reload ok")
			if res.Products != nil {
				fmt.Fprintf(out, "  products: %d\n", *res.Products)
			}
			if res.Promos != nil {
				fmt.Fprintf(out, "  promos:   %d\n", *res.Promos)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&note, "note", "n", "", "note forwarded to admins")
	return cmd
}

func lowStockCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lowstock CODE=READY...",
		Short: "Send a low stock alert to the admins",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := parseLowStock(args)
			if err != nil {
				return err
			}
			if err := newAdminClient(opts).LowStock(cmd.Context(), items); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "alert sent for %d item(s)\n", len(items))
			return nil
		},
	}
}

// parseLowStock разбирает аргументы вида NFX1=2.
func parseLowStock(args []string) ([]format.LowStockItem, error) {
	items := make([]format.LowStockItem, 0, len(args))
	for _, arg := range args {
		code, ready, ok := strings.Cut(arg, "=")
		code = strings.ToUpper(strings.TrimSpace(code))
		if !ok || code == "" {
			return nil, fmt.Errorf("invalid item %q, expected CODE=READY", arg)
		}
		n, err := strconv.Atoi(strings.TrimSpace(ready))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid ready count in %q", arg)
		}
		items = append(items, format.LowStockItem{Code: code, Ready: n})
	}
	return items, nil
}

type healthReport struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Checks        map[string]struct {
		Status     string `json:"status"`
		Message    string `json:"message"`
		DurationMs int64  `json:"duration_ms"`
	} `json:"checks"`
}

func statusCmd(opts *globalOptions) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show service health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			code, body, err := newAdminClient(opts).Health(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if raw {
				var buf bytes.Buffer
				if json.Indent(&buf, body, "", "  ") != nil {
					buf.Reset()
					buf.Write(body)
				}
				fmt.Fprintln(out, buf.String())
				return nil
			}

			var report healthReport
			if err := json.Unmarshal(body, &report); err != nil {
				return fmt.Errorf("unexpected /healthz response (http %d): %w", code, err)
			}
			fmt.Fprintf(out, "status:  %s\nversion: %s\nuptime:  %ds\n", report.Status, report.Version, report.UptimeSeconds)
			if len(report.Checks) > 0 {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CHECK\tSTATUS\tMS\tMESSAGE")
				for name, c := range report.Checks {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", name, c.Status, c.DurationMs, c.Message)
				}
				_ = tw.Flush()
			}
			if report.Status == "unhealthy" {
				return fmt.Errorf("service is unhealthy")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "print raw JSON")
	return cmd
}
