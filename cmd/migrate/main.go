// Command migrate применяет встроенные миграции журнала продаж.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/shopbot/internal/storage/postgres"
)

const defaultTimeout = 30 * time.Second

var errDrift = errors.New("applied migrations differ from embedded scripts")

type options struct {
	direction string
	steps     int
	dsn       string
	strict    bool
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseOptions(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.direction, "direction", "up", "up|down|status")
	fs.IntVar(&opts.steps, "steps", 0, "migrations to apply (0 = all) or roll back (minimum 1)")
	fs.StringVar(&opts.dsn, "dsn", "", "journal DSN, SHOPBOT_JOURNAL_DSN when empty")
	fs.BoolVar(&opts.strict, "strict", false, "exit non-zero when an applied migration was edited")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.direction = strings.ToLower(strings.TrimSpace(opts.direction))
	switch opts.direction {
	case "up", "down", "status":
	default:
		return options{}, fmt.Errorf("unsupported direction %q (use up|down|status)", opts.direction)
	}

	opts.dsn = strings.TrimSpace(opts.dsn)
	if opts.dsn == "" {
		opts.dsn = strings.TrimSpace(os.Getenv("SHOPBOT_JOURNAL_DSN"))
	}
	if opts.dsn == "" {
		return options{}, errors.New("SHOPBOT_JOURNAL_DSN (or -dsn) is required")
	}
	return opts, nil
}

func run(args []string, out io.Writer) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, opts.dsn)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer store.Close()

	switch opts.direction {
	case "up":
		err = store.MigrateUp(ctx, opts.steps)
	case "down":
		err = store.MigrateDown(ctx, opts.steps)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", opts.direction, err)
	}

	state, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	_, _ = fmt.Fprintln(out, formatState(opts.direction, state))

	if opts.strict && len(state.Drifted) > 0 {
		return errDrift
	}
	return nil
}

func formatState(direction string, state postgres.MigrationState) string {
	line := fmt.Sprintf("%s: version=%d applied=%d pending=%d", direction, state.Version, state.Applied, state.Pending())
	if len(state.Drifted) > 0 {
		line += fmt.Sprintf(" drifted=%v", state.Drifted)
	}
	return line
}
