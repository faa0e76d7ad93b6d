package main

import (
	"context"
	"encoding/json"
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
	"github.com/vladislavdragonenkov/oda/internal/service/analytics"
	"github.com/vladislavdragonenkov/oda/internal/service/dashboard"
	"github.com/vladislavdragonenkov/oda/internal/storage/memory"
)

const defaultDataset = "./data/all_data.csv"

type options struct {
	datasetPath      string
	start            time.Time
	end              time.Time
	status           domain.OrderStatus
	summary          bool
	pretty           bool
	topN             int
	maxScatterPoints int
}

func parseOptions(args []string) (options, error) {
	var (
		opts     options
		startRaw string
		endRaw   string
		status   string
	)

	def := analytics.DefaultOptions()
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.datasetPath, "dataset", defaultDataset, "path to the merged orders CSV")
	fs.StringVar(&startRaw, "start", "", "first purchase date, YYYY-MM-DD (default: dataset minimum)")
	fs.StringVar(&endRaw, "end", "", "last purchase date, YYYY-MM-DD (default: dataset maximum)")
	fs.StringVar(&status, "status", string(domain.StatusAll), "order status filter")
	fs.BoolVar(&opts.summary, "summary", false, "print KPI snapshot instead of full report")
	fs.BoolVar(&opts.pretty, "pretty", false, "indent JSON output")
	fs.IntVar(&opts.topN, "top-n", def.TopN, "rows in top lists")
	fs.IntVar(&opts.maxScatterPoints, "max-scatter-points", def.MaxScatterPoints, "cap for clustering scatter points (0=unlimited)")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	opts.datasetPath = strings.TrimSpace(opts.datasetPath)
	if opts.datasetPath == "" {
		return opts, errors.New("dataset path is required")
	}
	if opts.topN <= 0 {
		return opts, errors.New("top-n must be > 0")
	}
	if opts.maxScatterPoints < 0 {
		return opts, errors.New("max-scatter-points must not be negative")
	}

	var err error
	if opts.start, err = parseDate(startRaw); err != nil {
		return opts, fmt.Errorf("invalid -start: %w", err)
	}
	if opts.end, err = parseDate(endRaw); err != nil {
		return opts, fmt.Errorf("invalid -end: %w", err)
	}
	opts.status = domain.OrderStatus(strings.TrimSpace(status))
	return opts, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(domain.DateLayout, raw)
}

func run(ctx context.Context, opts options, out io.Writer) error {
	logger := log.WithField("component", "report-cli")

	analyticsOpts := analytics.DefaultOptions()
	analyticsOpts.TopN = opts.topN
	analyticsOpts.MaxScatterPoints = opts.maxScatterPoints

	svc := dashboard.NewService(
		memory.NewDatasetRepository(),
		dashboard.WithLogger(logger),
		dashboard.WithLoader(dataset.NewLoader(logger)),
		dashboard.WithAnalyticsOptions(analyticsOpts),
	)
	if _, err := svc.Reload(ctx, opts.datasetPath); err != nil {
		return err
	}

	var payload any
	if opts.summary {
		snapshot, err := svc.Summary(ctx)
		if err != nil {
			return fmt.Errorf("build summary: %w", err)
		}
		payload = snapshot
	} else {
		report, err := svc.Report(ctx, domain.NewFilter(opts.start, opts.end, opts.status))
		if err != nil {
			return fmt.Errorf("build report: %w", err)
		}
		payload = report
	}

	encoder := json.NewEncoder(out)
	if opts.pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(payload)
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)

	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fail("report failed: %v", err)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
