package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const producerClientID = "oda-dashboard"

var errProducerNotInitialized = errors.New("kafka producer is not initialized")

// Producer отправляет события в Kafka синхронно: Publish возвращается после ack от всех ISR.
type Producer struct {
	client   sarama.Client
	producer sarama.SyncProducer
	logger   *log.Entry
}

func producerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = producerClientID
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	// Идемпотентная отправка требует ровно одного запроса в полёте.
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// NewProducer подключается к brokers; клиент остаётся у Producer для Ping.
func NewProducer(brokers []string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}

	client, err := sarama.NewClient(brokers, producerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to kafka: %w", err)
	}
	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	p := newProducer(producer)
	p.client = client
	return p, nil
}

func newProducer(producer sarama.SyncProducer) *Producer {
	return &Producer{
		producer: producer,
		logger:   log.WithField("component", "kafka-producer"),
	}
}

// Publish кодирует event в JSON и отправляет в topic с ключом key.
func (p *Producer) Publish(topic, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", event.Type(), err)
	}
	return p.send(topic, key, payload, []sarama.RecordHeader{
		{Key: []byte(HeaderEventType), Value: []byte(event.Type())},
	})
}

func (p *Producer) send(topic, key string, value []byte, headers []sarama.RecordHeader) error {
	if p == nil || p.producer == nil {
		return errProducerNotInitialized
	}

	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Value:     sarama.ByteEncoder(value),
		Headers:   headers,
		Timestamp: time.Now(),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	fields := log.Fields{"topic": topic, "key": key}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("kafka send failed")
		return fmt.Errorf("failed to send message to %s: %w", topic, err)
	}
	fields["partition"], fields["offset"] = partition, offset
	p.logger.WithFields(fields).Debug("kafka message sent")
	return nil
}

// Ping обновляет метаданные кластера; без собственного клиента (моки) всегда успешен.
func (p *Producer) Ping(ctx context.Context) error {
	if p == nil || p.producer == nil {
		return errProducerNotInitialized
	}
	if p.client == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- p.client.RefreshMetadata() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	err := p.producer.Close()
	if p.client != nil && !p.client.Closed() {
		err = errors.Join(err, p.client.Close())
	}
	if err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}
