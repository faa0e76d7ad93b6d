package app

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/oda/internal/messaging/kafka"
)

// datasetReloader перечитывает датасет по команде из Kafka.
type datasetReloader interface {
	Reload(ctx context.Context, source string) (int, error)
}

// initKafkaProducer возвращает nil, nil, если брокеры не заданы.
// Ошибка подключения не фатальна: Run продолжает без Kafka.
func initKafkaProducer(cfg Config, logger *log.Entry) (*kafka.Producer, error) {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("kafka unavailable, snapshots and reload commands are disabled")
		return nil, err
	}
	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	}
}

// startReloadConsumer подписывается на oda.dataset.commands. Без брокеров возвращает nil.
// Команды, которые не удалось выполнить, уходят в DLQ через producer; afterReload (может быть nil)
// вызывается после каждой успешной перезагрузки.
func startReloadConsumer(ctx context.Context, cfg Config, reloader datasetReloader, producer *kafka.Producer, afterReload func(), logger *log.Entry) (*kafka.Consumer, error) {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return nil, nil
	}

	consumer, err := kafka.NewConsumer(brokers, kafka.ConsumerOptions{
		GroupID:     cfg.KafkaConsumerGroup,
		Topics:      []string{kafka.TopicDatasetCommands},
		MaxRetries:  cfg.KafkaMaxRetries,
		DeadLetters: producer,
	}, reloadHandler(reloader, cfg.DatasetPath, afterReload, logger))
	if err != nil {
		return nil, err
	}
	if err := consumer.Start(ctx); err != nil {
		_ = consumer.Stop()
		return nil, err
	}
	return consumer, nil
}

func reloadHandler(reloader datasetReloader, source string, afterReload func(), logger *log.Entry) kafka.MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		cmd, err := kafka.ParseReloadCommand(message)
		if err != nil {
			return err
		}

		rows, err := reloader.Reload(ctx, source)
		if err != nil {
			return fmt.Errorf("reload dataset: %w", err)
		}

		logger.WithFields(log.Fields{
			"requested_by": cmd.RequestedBy,
			"source":       source,
			"rows":         rows,
		}).Info("dataset reloaded by command")
		if afterReload != nil {
			afterReload()
		}
		return nil
	}
}

func stopConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
}
