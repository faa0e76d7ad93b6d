package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/oda/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

var errDeadLetterLoop = errors.New("dead letter points back to the dlq")

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	eventTypes  []string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

func (c config) mode() string {
	if c.execute {
		return "execute"
	}
	return "dry-run"
}

// deadLetter: исходное сообщение, восстановленное из записи DLQ.
type deadLetter struct {
	topic     string
	key       []byte
	value     []byte
	eventType string
	failure   string
	retries   string
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type replayProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type consumerSource struct {
	consumer sarama.Consumer
}

func (s consumerSource) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	return s.consumer.ConsumePartition(topic, partition, offset)
}

func (s consumerSource) Close() error {
	return s.consumer.Close()
}

// connectKafka открывает клиент, consumer и (в режиме execute) producer.
var connectKafka = func(cfg config) (offsetClient, partitionConsumerSource, replayProducer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1

	client, err := sarama.NewClient(cfg.brokers, saramaConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	if !cfg.execute {
		return client, consumerSource{consumer: consumer}, nil, nil
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = consumer.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return client, consumerSource{consumer: consumer}, producer, nil
}

func parseConfig(args []string, lookup func(string) string) (config, error) {
	var (
		cfg        config
		brokersRaw string
		eventsRaw  string
	)

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: ODA_KAFKA_BROKERS, KAFKA_BROKERS)")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	fs.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicDatasetCommands, "fallback target topic when x-original-topic is missing")
	fs.StringVar(&eventsRaw, "event-types", "", "replay only these event types, comma-separated (default: all)")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish messages; default is dry-run")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan the latest messages of each partition")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	for _, env := range []string{"ODA_KAFKA_BROKERS", "KAFKA_BROKERS"} {
		if strings.TrimSpace(brokersRaw) != "" {
			break
		}
		brokersRaw = lookup(env)
	}

	cfg.brokers = splitList(brokersRaw)
	cfg.eventTypes = splitList(eventsRaw)
	cfg.sourceTopic = strings.TrimSpace(cfg.sourceTopic)
	cfg.targetTopic = strings.TrimSpace(cfg.targetTopic)

	switch {
	case len(cfg.brokers) == 0:
		return config{}, errors.New("kafka brokers are required (-brokers, ODA_KAFKA_BROKERS or KAFKA_BROKERS)")
	case cfg.sourceTopic == "":
		return config{}, errors.New("source-topic is required")
	case cfg.targetTopic == "":
		return config{}, errors.New("target-topic is required")
	case cfg.targetTopic == cfg.sourceTopic:
		return config{}, errors.New("target-topic must differ from source-topic")
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		stop()
		fail("dlq replay failed: %v", err)
	}
}

func run(ctx context.Context, cfg config, out io.Writer) error {
	client, consumer, producer, err := connectKafka(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if producer != nil {
			_ = producer.Close()
		}
		_ = consumer.Close()
		_ = client.Close()
	}()

	r := &replayer{
		cfg:      cfg,
		client:   client,
		consumer: consumer,
		producer: producer,
		logger:   log.WithFields(log.Fields{"component": "dlq-reprocess", "mode": cfg.mode()}),
	}
	stats, err := r.Run(ctx)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "dlq replay (%s) %s: processed=%d replayed=%d skipped=%d\n",
		cfg.mode(), cfg.sourceTopic, stats.processed, stats.replayed, stats.skipped)
	return err
}

type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *replayStats) add(other replayStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
}

// replayer читает DLQ по партициям и возвращает сообщения в исходные топики.
type replayer struct {
	cfg      config
	client   offsetClient
	consumer partitionConsumerSource
	producer replayProducer
	logger   *log.Entry
}

// Run обходит партиции по возрастанию, пока не исчерпан лимит.
func (r *replayer) Run(ctx context.Context) (replayStats, error) {
	var total replayStats
	if r.client == nil || r.consumer == nil {
		return total, errors.New("kafka client and consumer are required")
	}
	if r.cfg.execute && r.producer == nil {
		return total, errors.New("producer is required in execute mode")
	}

	partitions, err := r.client.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("list partitions of %s: %w", r.cfg.sourceTopic, err)
	}
	slices.Sort(partitions)

	for _, partition := range partitions {
		budget := r.cfg.limit - total.processed
		if budget <= 0 {
			break
		}
		stats, err := r.drainPartition(ctx, partition, budget)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	r.logger.WithFields(log.Fields{
		"partitions": len(partitions),
		"processed":  total.processed,
		"replayed":   total.replayed,
		"skipped":    total.skipped,
	}).Info("dlq replay finished")
	return total, nil
}

// offsetWindow возвращает диапазон [start, end) для чтения партиции.
func (r *replayer) offsetWindow(partition int32, budget int) (int64, int64, error) {
	oldest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}

	start := oldest
	if r.cfg.fromNewest {
		start = max(oldest, newest-int64(budget))
	}
	return start, newest, nil
}

func (r *replayer) drainPartition(ctx context.Context, partition int32, budget int) (replayStats, error) {
	var stats replayStats

	start, end, err := r.offsetWindow(partition, budget)
	if err != nil || start >= end {
		return stats, err
	}

	pc, err := r.consumer.ConsumePartition(r.cfg.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for stats.processed < budget {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			r.logger.WithField("partition", partition).Debug("partition idle")
			return stats, nil
		case cerr := <-pc.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= end {
				return stats, nil
			}
			idle.Reset(r.cfg.idleTimeout)

			replayed, err := r.handle(msg)
			stats.processed++
			if err != nil {
				return stats, err
			}
			if replayed {
				stats.replayed++
			} else {
				stats.skipped++
			}
			if msg.Offset+1 >= end {
				return stats, nil
			}
		}
	}
	return stats, nil
}

// handle возвращает false для пропущенных записей; ошибка только у producer.
func (r *replayer) handle(msg *sarama.ConsumerMessage) (bool, error) {
	entry := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	letter, ok, err := decodeDeadLetter(msg, r.cfg.targetTopic)
	if err != nil {
		entry.WithError(err).Warn("skip unsupported dlq message")
		return false, nil
	}
	if !ok || !r.wanted(letter.eventType) {
		return false, nil
	}

	entry = entry.WithFields(log.Fields{
		"target_topic": letter.topic,
		"event_type":   letter.eventType,
		"retries":      letter.retries,
		"failure":      letter.failure,
	})
	if !r.cfg.execute {
		entry.Info("dlq replay candidate")
		return true, nil
	}
	if err := publishReplay(r.producer, letter); err != nil {
		return false, fmt.Errorf("publish replay message: %w", err)
	}
	entry.Info("dlq message replayed")
	return true, nil
}

func (r *replayer) wanted(eventType string) bool {
	return len(r.cfg.eventTypes) == 0 || slices.Contains(r.cfg.eventTypes, eventType)
}

// publishReplay отправляет сообщение без счётчика повторов: обработка начинается заново.
func publishReplay(producer replayProducer, letter deadLetter) error {
	if producer == nil {
		return errors.New("producer is nil")
	}

	msg := &sarama.ProducerMessage{
		Topic:     letter.topic,
		Value:     sarama.ByteEncoder(letter.value),
		Timestamp: time.Now().UTC(),
	}
	if len(letter.key) > 0 {
		msg.Key = sarama.ByteEncoder(letter.key)
	}
	if letter.eventType != "" {
		msg.Headers = []sarama.RecordHeader{
			{Key: []byte(kafka.HeaderEventType), Value: []byte(letter.eventType)},
		}
	}

	_, _, err := producer.SendMessage(msg)
	return err
}

// decodeDeadLetter восстанавливает исходное сообщение из записи DLQ.
// Топик источника берётся из x-original-topic, при его отсутствии используется fallback.
func decodeDeadLetter(msg *sarama.ConsumerMessage, fallback string) (deadLetter, bool, error) {
	if len(msg.Value) == 0 {
		return deadLetter{}, false, nil
	}

	var envelope struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return deadLetter{}, false, fmt.Errorf("decode dlq payload: %w", err)
	}
	if strings.TrimSpace(envelope.EventType) == "" {
		return deadLetter{}, false, nil
	}

	letter := deadLetter{
		topic:     strings.TrimSpace(header(msg, kafka.HeaderOriginalTopic)),
		key:       msg.Key,
		value:     msg.Value,
		eventType: envelope.EventType,
		failure:   header(msg, kafka.HeaderErrorMessage),
		retries:   header(msg, kafka.HeaderRetryCount),
	}
	if letter.topic == "" {
		letter.topic = fallback
	}
	if letter.topic == kafka.TopicDeadLetterQueue {
		return deadLetter{}, false, errDeadLetterLoop
	}
	return letter, true, nil
}

func header(msg *sarama.ConsumerMessage, key string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
