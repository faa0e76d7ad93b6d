package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/oda/internal/app"
	"github.com/vladislavdragonenkov/oda/internal/version"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(level string) error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.SetLevel(log.InfoLevel)
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(parsed)

	if parsed < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	return nil
}

// options: флаги командной строки.
type options struct {
	configPath  string
	showVersion bool
}

func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("dashboard", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", "", "path to config file (default: ./oda.yaml or ./config/oda.yaml if present)")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

var runApp = app.Run

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args, stdout)
	if err != nil {
		return err
	}
	if opts.showVersion {
		_, err := fmt.Fprintln(stdout, version.String())
		return err
	}

	cfg, err := app.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if err := setupLogger(cfg.LogLevel); err != nil {
		log.WithError(err).Warn("falling back to info log level")
	}

	log.WithFields(log.Fields{
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"dataset":        cfg.DatasetPath,
		"version":        version.Version(),
	}).Info("запускаем дашборд")

	return runApp(ctx, cfg)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("дашборд остановлен")
			return
		}
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}
}
