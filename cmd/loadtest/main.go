// Command loadtest нагружает дашборд сценариями отчёта через gRPC или HTTP
// и печатает латентности по hdrhistogram.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vladislavdragonenkov/oda/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/oda/internal/service/grpc"
)

type loadMode string

const (
	modeReport        loadMode = "report"
	modeSidebarReport loadMode = "sidebar-report"
	modeHTTP          loadMode = "http"
)

type config struct {
	grpcAddr string
	httpAddr string
	mode     loadMode

	// total=0 вместе с duration означает «сколько успеем».
	total       int
	duration    time.Duration
	concurrency int
	connections int
	rps         float64
	timeout     time.Duration

	statuses []string
	start    string
	end      string
	output   string
}

func parseConfig(args []string) (config, error) {
	var (
		cfg      config
		mode     string
		statuses string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.grpcAddr, "addr", "localhost:50051", "gRPC address")
	fs.StringVar(&cfg.httpAddr, "http-addr", "localhost:8501", "dashboard HTTP address (http mode)")
	fs.StringVar(&mode, "mode", string(modeReport), "report | sidebar-report | http")
	fs.IntVar(&cfg.total, "total", 400, "scenarios to run; with -duration only a cap when set explicitly")
	fs.DurationVar(&cfg.duration, "duration", 0, "run for this long instead of a fixed count")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "parallel workers")
	fs.IntVar(&cfg.connections, "connections", 20, "gRPC connections shared by workers")
	fs.Float64Var(&cfg.rps, "rps", 0, "scenario start rate limit, 0 for unlimited")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-call timeout")
	fs.StringVar(&statuses, "statuses", "ALL,delivered,shipped", "statuses rotated across scenarios")
	fs.StringVar(&cfg.start, "start", "", "filter start YYYY-MM-DD")
	fs.StringVar(&cfg.end, "end", "", "filter end YYYY-MM-DD")
	fs.StringVar(&cfg.output, "output", "", "write JSON summary to this file")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	totalSet := false
	fs.Visit(func(f *flag.Flag) { totalSet = totalSet || f.Name == "total" })
	if cfg.duration > 0 && !totalSet {
		cfg.total = 0
	}

	cfg.mode = loadMode(strings.TrimSpace(mode))
	for _, s := range strings.Split(statuses, ",") {
		if s = strings.TrimSpace(s); s != "" {
			cfg.statuses = append(cfg.statuses, s)
		}
	}
	return cfg, cfg.validate(totalSet)
}

func (c config) validate(totalSet bool) error {
	switch c.mode {
	case modeReport, modeSidebarReport, modeHTTP:
	default:
		return fmt.Errorf("unsupported mode %q", c.mode)
	}
	for _, date := range []string{c.start, c.end} {
		if date == "" {
			continue
		}
		if _, err := time.Parse(domain.DateLayout, date); err != nil {
			return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", date)
		}
	}

	switch {
	case c.duration < 0:
		return errors.New("duration must be >= 0")
	case c.duration == 0 && c.total <= 0:
		return errors.New("total must be > 0 without duration")
	case totalSet && c.total <= 0:
		return errors.New("total must be > 0")
	case c.concurrency <= 0:
		return errors.New("concurrency must be > 0")
	case c.connections <= 0:
		return errors.New("connections must be > 0")
	case c.rps < 0:
		return errors.New("rps must be >= 0")
	case c.timeout <= 0:
		return errors.New("timeout must be > 0")
	case len(c.statuses) == 0:
		return errors.New("statuses must not be empty")
	}
	return nil
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		fail("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := run(ctx, cfg, os.Stdout)
	if err != nil {
		fail("load test failed: %v", err)
	}
	if result.Scenarios.Failed > 0 {
		os.Exit(1)
	}
}

// run выполняет сценарии до исчерпания total, истечения duration или отмены ctx.
func run(ctx context.Context, cfg config, out io.Writer) (summary, error) {
	rec := newRecorder()
	play, closeFn, err := buildScenario(cfg, rec)
	if err != nil {
		return summary{}, err
	}
	defer closeFn()

	if cfg.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.duration)
		defer cancel()
	}

	startedAt := time.Now()
	jobs := make(chan int, cfg.concurrency)
	go dispatch(ctx, cfg, jobs)

	var wg sync.WaitGroup
	for range cfg.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				start := time.Now()
				code, err := play(ctx, i)
				rec.observe(scenarioSeries, time.Since(start), code, err == nil)
			}
		}()
	}
	wg.Wait()

	result := rec.summarize(cfg.mode, startedAt, time.Since(startedAt))
	if err := result.print(out); err != nil {
		return result, err
	}
	if cfg.output != "" {
		if err := writeSummary(cfg.output, result); err != nil {
			return result, fmt.Errorf("write summary: %w", err)
		}
	}
	return result, nil
}

// dispatch раздаёт номера сценариев с учётом -rps и закрывает jobs по окончании.
func dispatch(ctx context.Context, cfg config, jobs chan<- int) {
	defer close(jobs)

	var limiter *rate.Limiter
	if cfg.rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.rps), 1)
	}

	for i := 0; cfg.total == 0 || i < cfg.total; i++ {
		if ctx.Err() != nil {
			return
		}
		if limiter != nil && limiter.Wait(ctx) != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case jobs <- i:
		}
	}
}

func buildScenario(cfg config, rec *recorder) (scenario, func(), error) {
	if cfg.mode == modeHTTP {
		return httpScenario(&http.Client{Timeout: cfg.timeout}, cfg, rec), func() {}, nil
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	closeAll := func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}
	clients := make([]analyticsClient, 0, cfg.connections)
	for range cfg.connections {
		conn, err := grpc.NewClient(cfg.grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("dial %s: %w", cfg.grpcAddr, err)
		}
		conns = append(conns, conn)
		clients = append(clients, grpcsvc.NewAnalyticsClient(conn))
	}
	return grpcScenario(clients, cfg, rec), closeAll, nil
}

// writeSummary пишет JSON-сводку; относительный путь не должен выходить за текущую директорию.
func writeSummary(path string, result summary) error {
	clean := filepath.Clean(path)
	if clean == "." || clean == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if filepath.IsAbs(clean) {
		if _, err := os.Stat(filepath.Dir(clean)); err != nil {
			return err
		}
	} else if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(clean, append(data, '\n'), 0o600)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
