package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"

	mysqlstore "github.com/vladislavdragonenkov/oda/internal/storage/mysql"
	"github.com/vladislavdragonenkov/oda/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second

	envPostgresDSN = "ODA_POSTGRES_DSN"
	envMySQLDSN    = "ODA_MYSQL_DSN"
)

type options struct {
	driver    string
	direction string
	steps     int
	dsn       string
}

func parseOptions(args []string, lookup func(string) string) (options, error) {
	var opts options

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.driver, "driver", "postgres", "storage driver: postgres|mysql")
	fs.StringVar(&opts.direction, "direction", "up", "migration direction: up|down|status|list (mysql supports only up)")
	fs.IntVar(&opts.steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	fs.StringVar(&opts.dsn, "dsn", "", "database DSN (fallback: ODA_POSTGRES_DSN or ODA_MYSQL_DSN)")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	opts.driver = strings.ToLower(strings.TrimSpace(opts.driver))
	opts.direction = strings.ToLower(strings.TrimSpace(opts.direction))
	opts.dsn = strings.TrimSpace(opts.dsn)

	var envName string
	switch opts.driver {
	case "postgres":
		envName = envPostgresDSN
	case "mysql":
		envName = envMySQLDSN
		if opts.direction != "up" {
			return opts, fmt.Errorf("mysql supports only -direction=up, got %s", opts.direction)
		}
	default:
		return opts, fmt.Errorf("unsupported driver: %s (use postgres|mysql)", opts.driver)
	}

	if opts.dsn == "" {
		opts.dsn = strings.TrimSpace(lookup(envName))
	}
	if opts.dsn == "" {
		return opts, fmt.Errorf("%s (or -dsn) is required", envName)
	}

	switch opts.direction {
	case "up", "down", "status", "list":
	default:
		return opts, fmt.Errorf("unsupported direction: %s (use up|down|status|list)", opts.direction)
	}
	return opts, nil
}

func main() {
	opts, err := parseOptions(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if opts.driver == "mysql" {
		err = migrateMySQL(ctx, opts, os.Stdout)
	} else {
		err = migratePostgres(ctx, opts, os.Stdout)
	}
	if err != nil {
		cancel()
		fail("%v", err)
	}
}

func migrateMySQL(ctx context.Context, opts options, out io.Writer) error {
	db, err := mysqlstore.Open(ctx, opts.dsn, log.WithField("component", "migrate"))
	if err != nil {
		return fmt.Errorf("open mysql: %w", err)
	}
	defer func() { _ = mysqlstore.Close(db) }()

	if err := mysqlstore.AutoMigrate(ctx, db); err != nil {
		return fmt.Errorf("mysql automigrate failed: %w", err)
	}
	_, err = fmt.Fprintln(out, "mysql automigrate ok")
	return err
}

func migratePostgres(ctx context.Context, opts options, out io.Writer) error {
	store, err := postgres.Open(ctx, opts.dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	switch opts.direction {
	case "up":
		if err := store.MigrateUp(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
		return printStatus(ctx, store, out, "migrate up ok")
	case "down":
		steps := opts.steps
		if steps <= 0 {
			steps = 1
		}
		if err := store.MigrateDown(ctx, steps); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
		return printStatus(ctx, store, out, "migrate down ok")
	case "status":
		return printStatus(ctx, store, out, "migration status")
	case "list":
		infos, err := store.Migrations(ctx)
		if err != nil {
			return fmt.Errorf("list migrations failed: %w", err)
		}
		return printMigrations(out, infos)
	default:
		return errors.New("unsupported direction: " + opts.direction)
	}
}

func printStatus(ctx context.Context, store *postgres.Store, out io.Writer, prefix string) error {
	version, count, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	_, err = fmt.Fprintf(out, "%s: version=%d applied=%d\n", prefix, version, count)
	return err
}

// printMigrations печатает таблицу встроенных миграций.
func printMigrations(out io.Writer, infos []postgres.MigrationInfo) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED AT")
	for _, info := range infos {
		appliedAt := "pending"
		if info.Applied {
			appliedAt = info.AppliedAt.UTC().Format(time.RFC3339)
		}
		if info.Drifted {
			appliedAt += " (drifted)"
		}
		_, _ = fmt.Fprintf(w, "%04d\t%s\t%s\n", info.Version, info.Name, appliedAt)
	}
	return w.Flush()
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
