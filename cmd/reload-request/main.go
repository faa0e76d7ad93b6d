// Command reload-request публикует команду dataset.reload_requested в oda.dataset.commands.
// Дашборд с настроенной Kafka перечитывает датасет и публикует свежий снимок.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vladislavdragonenkov/oda/internal/messaging/kafka"
)

type options struct {
	brokers     []string
	topic       string
	requestedBy string
}

type publisher interface {
	Publish(topic, key string, event kafka.Event) error
	Close() error
}

var newPublisher = func(brokers []string) (publisher, error) {
	return kafka.NewProducer(brokers)
}

func parseOptions(args []string, lookup func(string) (string, bool)) (options, error) {
	var (
		opts    options
		brokers string
	)

	fs := flag.NewFlagSet("reload-request", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokers, "brokers", "", "comma separated kafka brokers (default ODA_KAFKA_BROKERS or KAFKA_BROKERS)")
	fs.StringVar(&opts.topic, "topic", kafka.TopicDatasetCommands, "command topic")
	fs.StringVar(&opts.requestedBy, "requested-by", "", "who asks for the reload (default $USER)")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	for _, key := range []string{"ODA_KAFKA_BROKERS", "KAFKA_BROKERS"} {
		if strings.TrimSpace(brokers) != "" {
			break
		}
		brokers, _ = lookup(key)
	}
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			opts.brokers = append(opts.brokers, b)
		}
	}
	if opts.requestedBy == "" {
		opts.requestedBy, _ = lookup("USER")
	}

	switch {
	case len(opts.brokers) == 0:
		return options{}, errors.New("kafka brokers are required")
	case strings.TrimSpace(opts.topic) == "":
		return options{}, errors.New("topic is required")
	}
	return opts, nil
}

func run(opts options, out io.Writer) error {
	p, err := newPublisher(opts.brokers)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	if err := p.Publish(opts.topic, opts.requestedBy, kafka.NewReloadCommand(opts.requestedBy)); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "reload requested on %s by %q\n", opts.topic, opts.requestedBy)
	return err
}

func main() {
	opts, err := parseOptions(os.Args[1:], os.LookupEnv)
	if err != nil {
		fail("invalid options: %v", err)
	}
	if err := run(opts, os.Stdout); err != nil {
		fail("reload request failed: %v", err)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
