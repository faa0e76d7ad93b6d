package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const (
	defaultRetryBackoff = 200 * time.Millisecond
	maxRetryBackoff     = 5 * time.Second
)

// MessageHandler обрабатывает одно сообщение; ошибка запускает повтор.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// ConsumerOptions настраивает consumer group.
type ConsumerOptions struct {
	GroupID string
	Topics  []string
	// MaxRetries: число повторов после первой попытки.
	MaxRetries int
	// RetryBackoff: пауза перед первым повтором, дальше удваивается до maxRetryBackoff.
	RetryBackoff time.Duration
	// DeadLetters получает сообщения, исчерпавшие повторы. nil оставляет их без коммита.
	DeadLetters *Producer
}

func (o ConsumerOptions) normalized() ConsumerOptions {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = defaultRetryBackoff
	}
	return o
}

// Consumer читает команды из consumer group и фиксирует offset после обработки или отправки в DLQ.
type Consumer struct {
	group   sarama.ConsumerGroup
	opts    ConsumerOptions
	handler MessageHandler
	logger  *log.Entry
	wg      sync.WaitGroup

	stop     chan struct{}
	stopOnce sync.Once
}

// NewConsumer подключается к брокерам и создаёт consumer group.
func NewConsumer(brokers []string, opts ConsumerOptions, handler MessageHandler) (*Consumer, error) {
	if handler == nil {
		return nil, errors.New("kafka consumer handler is required")
	}
	if opts.GroupID == "" || len(opts.Topics) == 0 {
		return nil, errors.New("kafka consumer group id and topics are required")
	}

	config := sarama.NewConfig()
	config.ClientID = "oda-dashboard"
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, opts.GroupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	return newConsumer(group, opts, handler), nil
}

func newConsumer(group sarama.ConsumerGroup, opts ConsumerOptions, handler MessageHandler) *Consumer {
	opts = opts.normalized()
	return &Consumer{
		group:   group,
		opts:    opts,
		handler: handler,
		logger:  log.WithFields(log.Fields{"component": "kafka-consumer", "group": opts.GroupID}),
		stop:    make(chan struct{}),
	}
}

// Start запускает чтение в фоне; остановка через отмену ctx и Stop.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		// Consume возвращается при каждом rebalance.
		backoff := c.opts.RetryBackoff
		for ctx.Err() == nil {
			err := c.group.Consume(ctx, c.opts.Topics, c)
			if err == nil {
				backoff = c.opts.RetryBackoff
				continue
			}
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			c.logger.WithError(err).WithField("retry_in", backoff).Error("consume session failed")
			if !c.pause(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxRetryBackoff)
		}
	}()
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.WithError(err).Error("consumer group error")
		}
	}()

	c.logger.WithField("topics", c.opts.Topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает группу и ждёт фоновые горутины.
func (c *Consumer) Stop() error {
	c.stopOnce.Do(func() { close(c.stop) })
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// pause ждёт d; false, если ctx отменён или вызван Stop.
func (c *Consumer) pause(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-c.stop:
		return false
	case <-timer.C:
		return true
	}
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim обрабатывает сообщения партиции до закрытия claim или конца сессии.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			if c.deliver(session.Context(), message) {
				session.MarkMessage(message, "")
			}
		}
	}
}

// deliver возвращает true, если сообщение можно коммитить.
func (c *Consumer) deliver(ctx context.Context, message *sarama.ConsumerMessage) bool {
	entry := c.logger.WithFields(log.Fields{
		"topic":     message.Topic,
		"partition": message.Partition,
		"offset":    message.Offset,
	})

	attempts, err := c.process(ctx, message)
	if err == nil {
		entry.WithField("attempts", attempts).Debug("message processed")
		return true
	}
	if ctx.Err() != nil || c.opts.DeadLetters == nil {
		entry.WithError(err).Error("message left uncommitted")
		return false
	}

	if dlqErr := c.sendToDLQ(message, err); dlqErr != nil {
		entry.WithError(dlqErr).Error("failed to send message to DLQ")
		return false
	}
	entry.WithError(err).WithField("attempts", attempts).Warn("message moved to DLQ")
	return true
}

// process вызывает handler не более MaxRetries+1 раз с удваивающейся паузой.
func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage) (int, error) {
	var err error
	backoff := c.opts.RetryBackoff
	for attempt := 1; ; attempt++ {
		if err = c.handler(ctx, message); err == nil {
			return attempt, nil
		}
		if attempt > c.opts.MaxRetries {
			return attempt, err
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}
}

// retryCount: сколько раз сообщение уже попадало в DLQ (по заголовку x-retry-count).
func retryCount(message *sarama.ConsumerMessage) int {
	for _, h := range message.Headers {
		if h != nil && string(h.Key) == HeaderRetryCount {
			n, _ := strconv.Atoi(string(h.Value))
			return n
		}
	}
	return 0
}

// sendToDLQ пересылает исходное сообщение как есть, причину сбоя кладёт в заголовки.
func (c *Consumer) sendToDLQ(message *sarama.ConsumerMessage, cause error) error {
	headers := []sarama.RecordHeader{
		{Key: []byte(HeaderOriginalTopic), Value: []byte(message.Topic)},
		{Key: []byte(HeaderErrorMessage), Value: []byte(cause.Error())},
		{Key: []byte(HeaderFailedAt), Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		{Key: []byte(HeaderRetryCount), Value: []byte(strconv.Itoa(retryCount(message) + 1))},
	}
	return c.opts.DeadLetters.send(TopicDeadLetterQueue, string(message.Key), message.Value, headers)
}

// ParseReloadCommand разбирает команду перезагрузки датасета.
func ParseReloadCommand(message *sarama.ConsumerMessage) (*ReloadCommand, error) {
	var cmd ReloadCommand
	if err := json.Unmarshal(message.Value, &cmd); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reload command: %w", err)
	}
	if cmd.EventType != EventTypeReloadRequested {
		return nil, fmt.Errorf("unexpected command type %q", cmd.EventType)
	}
	return &cmd, nil
}
