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

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/oda/internal/dataset"
	"github.com/vladislavdragonenkov/oda/internal/domain"
	"github.com/vladislavdragonenkov/oda/internal/service/dashboard"
	"github.com/vladislavdragonenkov/oda/internal/storage/memory"
	mysqlstore "github.com/vladislavdragonenkov/oda/internal/storage/mysql"
	"github.com/vladislavdragonenkov/oda/internal/storage/postgres"
)

const (
	defaultTimeout = 10 * time.Minute

	envPostgresDSN = "ODA_POSTGRES_DSN"
	envMySQLDSN    = "ODA_MYSQL_DSN"
)

type options struct {
	driver      string
	dsn         string
	datasetPath string
	migrate     bool
	timeout     time.Duration
}

// openRepositoryFunc открывает хранилище и возвращает функцию закрытия.
type openRepositoryFunc func(ctx context.Context, opts options, logger *log.Entry) (domain.DatasetRepository, func(), error)

var openRepository openRepositoryFunc = openStorage

func parseOptions(args []string, lookup func(string) string) (options, error) {
	var opts options

	fs := flag.NewFlagSet("importer", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.driver, "driver", "postgres", "target storage: postgres|mysql|memory (memory only validates the file)")
	fs.StringVar(&opts.dsn, "dsn", "", "database DSN (fallback: ODA_POSTGRES_DSN or ODA_MYSQL_DSN)")
	fs.StringVar(&opts.datasetPath, "dataset", "./data/all_data.csv", "path to the merged orders CSV")
	fs.BoolVar(&opts.migrate, "migrate", true, "apply schema migrations before import")
	fs.DurationVar(&opts.timeout, "timeout", defaultTimeout, "overall import timeout")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	opts.driver = strings.ToLower(strings.TrimSpace(opts.driver))
	opts.dsn = strings.TrimSpace(opts.dsn)
	opts.datasetPath = strings.TrimSpace(opts.datasetPath)

	if opts.datasetPath == "" {
		return opts, errors.New("dataset path is required")
	}
	if opts.timeout <= 0 {
		return opts, errors.New("timeout must be > 0")
	}

	var envName string
	switch opts.driver {
	case "memory":
		return opts, nil
	case "postgres":
		envName = envPostgresDSN
	case "mysql":
		envName = envMySQLDSN
	default:
		return opts, fmt.Errorf("unsupported driver: %s (use postgres|mysql|memory)", opts.driver)
	}

	if opts.dsn == "" {
		opts.dsn = strings.TrimSpace(lookup(envName))
	}
	if opts.dsn == "" {
		return opts, fmt.Errorf("%s (or -dsn) is required", envName)
	}
	return opts, nil
}

func openStorage(ctx context.Context, opts options, logger *log.Entry) (domain.DatasetRepository, func(), error) {
	switch opts.driver {
	case "memory":
		return memory.NewDatasetRepository(), func() {}, nil
	case "postgres":
		store, err := postgres.Open(ctx, opts.dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		if opts.migrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		return postgres.NewDatasetRepository(store), func() { _ = store.Close() }, nil
	case "mysql":
		db, err := mysqlstore.Open(ctx, opts.dsn, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		if opts.migrate {
			if err := mysqlstore.AutoMigrate(ctx, db); err != nil {
				_ = mysqlstore.Close(db)
				return nil, nil, fmt.Errorf("mysql automigrate: %w", err)
			}
		}
		return mysqlstore.NewDatasetRepository(db), func() { _ = mysqlstore.Close(db) }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported driver: %s", opts.driver)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	logger := log.WithField("component", "importer")

	repo, closeFn, err := openRepository(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	svc := dashboard.NewService(
		repo,
		dashboard.WithLogger(logger),
		dashboard.WithLoader(dataset.NewLoader(logger)),
	)

	started := time.Now()
	rows, err := svc.Reload(ctx, opts.datasetPath)
	if err != nil {
		return err
	}

	sidebar, err := svc.Sidebar(ctx)
	if err != nil {
		return fmt.Errorf("read imported dataset: %w", err)
	}

	_, err = fmt.Fprintf(out, "imported %d rows into %s: period=%s..%s statuses=%d stored=%d duration=%s\n",
		rows,
		opts.driver,
		sidebar.Bounds.Min.Format(domain.DateLayout),
		sidebar.Bounds.Max.Format(domain.DateLayout),
		len(sidebar.Statuses)-1,
		sidebar.Rows,
		time.Since(started).Round(time.Millisecond),
	)
	return err
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	opts, err := parseOptions(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		cancel()
		fail("import failed: %v", err)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
