package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/oda/internal/messaging/kafka"
)

func lookupFrom(env map[string]string) func(string) string {
	return func(key string) string { return env[key] }
}

func reloadLetter(partition int32, offset int64, requestedBy string) *sarama.ConsumerMessage {
	payload, err := json.Marshal(kafka.NewReloadCommand(requestedBy))
	if err != nil {
		panic(err)
	}
	return &sarama.ConsumerMessage{
		Topic:     kafka.TopicDeadLetterQueue,
		Partition: partition,
		Offset:    offset,
		Key:       []byte(requestedBy),
		Value:     payload,
		Headers: []*sarama.RecordHeader{
			{Key: []byte(kafka.HeaderOriginalTopic), Value: []byte(kafka.TopicDatasetCommands)},
			{Key: []byte(kafka.HeaderErrorMessage), Value: []byte("reload dataset: file not found")},
			{Key: []byte(kafka.HeaderRetryCount), Value: []byte("3")},
		},
	}
}

func newTestReplayer(cfg config, client offsetClient, consumer partitionConsumerSource, producer replayProducer) *replayer {
	logger := log.New()
	logger.SetOutput(bytes.NewBuffer(nil))
	return &replayer{
		cfg:      cfg,
		client:   client,
		consumer: consumer,
		producer: producer,
		logger:   log.NewEntry(logger),
	}
}

func testConfig(execute bool) config {
	return config{
		brokers:     []string{"broker:9092"},
		sourceTopic: kafka.TopicDeadLetterQueue,
		targetTopic: kafka.TopicDatasetCommands,
		limit:       10,
		execute:     execute,
		idleTimeout: 50 * time.Millisecond,
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]string{
		"-brokers=broker-1:9092, ,broker-2:9092",
		"-event-types=dataset.reload_requested",
		"-limit=7",
		"-execute",
		"-from-newest",
		"-idle-timeout=3s",
	}, lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.brokers)
	assert.Equal(t, kafka.TopicDeadLetterQueue, cfg.sourceTopic)
	assert.Equal(t, kafka.TopicDatasetCommands, cfg.targetTopic)
	assert.Equal(t, []string{"dataset.reload_requested"}, cfg.eventTypes)
	assert.Equal(t, 7, cfg.limit)
	assert.True(t, cfg.execute)
	assert.True(t, cfg.fromNewest)
	assert.Equal(t, 3*time.Second, cfg.idleTimeout)
	assert.Equal(t, "execute", cfg.mode())
}

func TestParseConfig_BrokersFromEnv(t *testing.T) {
	cfg, err := parseConfig(nil, lookupFrom(map[string]string{"KAFKA_BROKERS": "plain:9092"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"plain:9092"}, cfg.brokers)
	assert.Equal(t, "dry-run", cfg.mode())

	cfg, err = parseConfig(nil, lookupFrom(map[string]string{
		"ODA_KAFKA_BROKERS": "prefixed:9092",
		"KAFKA_BROKERS":     "plain:9092",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"prefixed:9092"}, cfg.brokers)
}

func TestParseConfig_Errors(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"no brokers", nil, "kafka brokers are required"},
		{"empty source", []string{"-brokers=b:9092", "-source-topic= "}, "source-topic is required"},
		{"empty target", []string{"-brokers=b:9092", "-target-topic="}, "target-topic is required"},
		{"loop", []string{"-brokers=b:9092", "-target-topic=" + kafka.TopicDeadLetterQueue}, "must differ"},
		{"zero limit", []string{"-brokers=b:9092", "-limit=0"}, "limit must be > 0"},
		{"zero idle", []string{"-brokers=b:9092", "-idle-timeout=0s"}, "idle-timeout must be > 0"},
		{"unknown flag", []string{"-nope"}, "flag provided but not defined"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseConfig(tc.args, lookupFrom(nil))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestDecodeDeadLetter(t *testing.T) {
	letter, ok, err := decodeDeadLetter(reloadLetter(0, 0, "ops-1"), "fallback")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, kafka.TopicDatasetCommands, letter.topic)
	assert.Equal(t, []byte("ops-1"), letter.key)
	assert.Equal(t, string(kafka.EventTypeReloadRequested), letter.eventType)
	assert.Equal(t, "reload dataset: file not found", letter.failure)
	assert.Equal(t, "3", letter.retries)

	withoutHeaders := reloadLetter(0, 0, "ops-1")
	withoutHeaders.Headers = nil
	letter, ok, err = decodeDeadLetter(withoutHeaders, "fallback")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fallback", letter.topic)
}

func TestDecodeDeadLetter_Skips(t *testing.T) {
	_, ok, err := decodeDeadLetter(&sarama.ConsumerMessage{}, "fallback")
	require.NoError(t, err)
	assert.False(t, ok, "empty value")

	_, ok, err = decodeDeadLetter(&sarama.ConsumerMessage{Value: []byte(`{"requested_by":"x"}`)}, "fallback")
	require.NoError(t, err)
	assert.False(t, ok, "payload without event type")

	_, _, err = decodeDeadLetter(&sarama.ConsumerMessage{Value: []byte(`not-json`)}, "fallback")
	require.Error(t, err)

	loop := reloadLetter(0, 0, "ops-1")
	loop.Headers = []*sarama.RecordHeader{{Key: []byte(kafka.HeaderOriginalTopic), Value: []byte(kafka.TopicDeadLetterQueue)}}
	_, _, err = decodeDeadLetter(loop, "fallback")
	require.ErrorIs(t, err, errDeadLetterLoop)
}

func TestPublishReplay(t *testing.T) {
	require.Error(t, publishReplay(nil, deadLetter{}))

	producer := &stubReplayProducer{}
	require.NoError(t, publishReplay(producer, deadLetter{topic: "topic", key: []byte("k"), value: []byte(`{}`)}))
	require.NotNil(t, producer.lastMsg)
	assert.Equal(t, "topic", producer.lastMsg.Topic)
	assert.Equal(t, sarama.ByteEncoder("k"), producer.lastMsg.Key)
	assert.Empty(t, producer.lastMsg.Headers)

	require.NoError(t, publishReplay(producer, deadLetter{topic: "topic", value: []byte(`{}`), eventType: "dataset.reload_requested"}))
	assert.Nil(t, producer.lastMsg.Key)
	require.Len(t, producer.lastMsg.Headers, 1)
	assert.Equal(t, kafka.HeaderEventType, string(producer.lastMsg.Headers[0].Key))

	producer.sendErr = errors.New("send failed")
	require.Error(t, publishReplay(producer, deadLetter{topic: "topic", value: []byte(`{}`)}))
}

func TestReplayer_DryRun(t *testing.T) {
	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: 2}},
	}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(reloadLetter(0, 0, "ops-1"), reloadLetter(0, 1, "ops-2")),
	}}

	stats, err := newTestReplayer(testConfig(false), client, consumer, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, replayStats{processed: 2, replayed: 2}, stats)
	assert.Equal(t, []consumeCall{{partition: 0, offset: 0}}, consumer.calls)
}

func TestReplayer_Execute(t *testing.T) {
	client := &stubOffsetClient{
		partitions: []int32{2, 0},
		offsets: map[int32]offsetRange{
			0: {oldest: 0, newest: 1},
			2: {oldest: 5, newest: 6},
		},
	}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(reloadLetter(0, 0, "ops-1")),
		2: closedPartitionConsumer(reloadLetter(2, 5, "ops-2")),
	}}
	producer := &stubReplayProducer{}

	stats, err := newTestReplayer(testConfig(true), client, consumer, producer).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, replayStats{processed: 2, replayed: 2}, stats)
	assert.Equal(t, 2, producer.calls)
	assert.Equal(t, []consumeCall{{partition: 0, offset: 0}, {partition: 2, offset: 5}}, consumer.calls, "partitions are read in ascending order")
	assert.Equal(t, kafka.TopicDatasetCommands, producer.lastMsg.Topic)
}

func TestReplayer_LimitAndFromNewest(t *testing.T) {
	client := &stubOffsetClient{
		partitions: []int32{0, 1},
		offsets: map[int32]offsetRange{
			0: {oldest: 0, newest: 10},
			1: {oldest: 0, newest: 10},
		},
	}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(reloadLetter(0, 8, "ops-1"), reloadLetter(0, 9, "ops-2")),
	}}

	cfg := testConfig(false)
	cfg.limit = 2
	cfg.fromNewest = true

	stats, err := newTestReplayer(cfg, client, consumer, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.processed)
	assert.Equal(t, []consumeCall{{partition: 0, offset: 8}}, consumer.calls, "limit reached before partition 1")
}

func TestReplayer_SkipsUnwantedAndBrokenMessages(t *testing.T) {
	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: 3}},
	}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(
			&sarama.ConsumerMessage{Offset: 0, Value: []byte(`not-json`)},
			&sarama.ConsumerMessage{Offset: 1, Value: []byte(`{"event_type":"analytics.snapshot"}`)},
			reloadLetter(0, 2, "ops-1"),
		),
	}}
	producer := &stubReplayProducer{}

	cfg := testConfig(true)
	cfg.eventTypes = []string{string(kafka.EventTypeReloadRequested)}

	stats, err := newTestReplayer(cfg, client, consumer, producer).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, replayStats{processed: 3, replayed: 1, skipped: 2}, stats)
	assert.Equal(t, 1, producer.calls)
}

func TestReplayer_Errors(t *testing.T) {
	ctx := context.Background()
	okClient := &stubOffsetClient{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: 1}},
	}

	_, err := newTestReplayer(testConfig(false), nil, nil, nil).Run(ctx)
	require.Error(t, err)

	_, err = newTestReplayer(testConfig(true), okClient, &stubPartitionConsumerSource{}, nil).Run(ctx)
	require.ErrorContains(t, err, "producer is required")

	_, err = newTestReplayer(testConfig(false), &stubOffsetClient{partitionsErr: errors.New("metadata")}, &stubPartitionConsumerSource{}, nil).Run(ctx)
	require.ErrorContains(t, err, "metadata")

	offsetErr := &stubOffsetClient{partitions: []int32{0}, offsetErr: map[int32]error{0: errors.New("offset")}}
	_, err = newTestReplayer(testConfig(false), offsetErr, &stubPartitionConsumerSource{}, nil).Run(ctx)
	require.ErrorContains(t, err, "oldest offset")

	_, err = newTestReplayer(testConfig(false), okClient, &stubPartitionConsumerSource{consumeErr: errors.New("consume")}, nil).Run(ctx)
	require.ErrorContains(t, err, "consume partition 0")

	broken := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	broken.errors <- &sarama.ConsumerError{Err: errors.New("consumer boom")}
	_, err = newTestReplayer(testConfig(false), okClient, &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: broken}}, nil).Run(ctx)
	require.ErrorContains(t, err, "consumer error")
	assert.True(t, broken.closed)

	failing := &stubReplayProducer{sendErr: errors.New("send fail")}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: closedPartitionConsumer(reloadLetter(0, 0, "ops-1"))}}
	_, err = newTestReplayer(testConfig(true), okClient, consumer, failing).Run(ctx)
	require.ErrorContains(t, err, "publish replay message")
}

func TestReplayer_IdleTimeoutAndCancel(t *testing.T) {
	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: 5}},
	}
	idle := func() *stubPartitionConsumerSource {
		return &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: &stubPartitionConsumer{
			messages: make(chan *sarama.ConsumerMessage),
			errors:   make(chan *sarama.ConsumerError),
		}}}
	}

	stats, err := newTestReplayer(testConfig(false), client, idle(), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.processed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := testConfig(false)
	cfg.idleTimeout = time.Minute
	_, err = newTestReplayer(cfg, client, idle(), nil).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestReplayer_EmptyPartitionIsNotConsumed(t *testing.T) {
	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 4, newest: 4}},
	}
	consumer := &stubPartitionConsumerSource{}

	stats, err := newTestReplayer(testConfig(false), client, consumer, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.processed)
	assert.Empty(t, consumer.calls)
}

func TestRun_UsesConnectKafka(t *testing.T) {
	oldConnect := connectKafka
	defer func() { connectKafka = oldConnect }()

	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: 1}},
	}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: closedPartitionConsumer(reloadLetter(0, 0, "ops-1"))}}
	producer := &stubReplayProducer{}
	connectKafka = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return client, consumer, producer, nil
	}

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), testConfig(true), &out))
	assert.Equal(t, "dlq replay (execute) oda.dlq: processed=1 replayed=1 skipped=0\n", out.String())
	assert.True(t, client.closed)
	assert.True(t, consumer.closed)
	assert.True(t, producer.closed)

	connectKafka = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return nil, nil, nil, errors.New("dial")
	}
	require.ErrorContains(t, run(context.Background(), testConfig(false), &out), "dial")
}

func TestFailExits(t *testing.T) {
	if os.Getenv("DLQ_TEST_FAIL_EXIT") == "1" {
		fail("boom")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "DLQ_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.NotZero(t, exitErr.ExitCode())
}

type offsetRange struct {
	oldest int64
	newest int64
}

type stubOffsetClient struct {
	partitions    []int32
	partitionsErr error
	offsets       map[int32]offsetRange
	offsetErr     map[int32]error
	closed        bool
}

func (s *stubOffsetClient) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	if err, ok := s.offsetErr[partition]; ok {
		return 0, err
	}
	r := s.offsets[partition]
	switch marker {
	case sarama.OffsetOldest:
		return r.oldest, nil
	case sarama.OffsetNewest:
		return r.newest, nil
	}
	return 0, fmt.Errorf("unsupported marker %d", marker)
}

func (s *stubOffsetClient) Partitions(string) ([]int32, error) {
	return s.partitions, s.partitionsErr
}

func (s *stubOffsetClient) Close() error {
	s.closed = true
	return nil
}

type consumeCall struct {
	partition int32
	offset    int64
}

type stubPartitionConsumerSource struct {
	consumers  map[int32]partitionConsumer
	consumeErr error
	calls      []consumeCall
	closed     bool
}

func (s *stubPartitionConsumerSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	s.calls = append(s.calls, consumeCall{partition: partition, offset: offset})
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	if pc, ok := s.consumers[partition]; ok {
		return pc, nil
	}
	return nil, fmt.Errorf("partition %d not configured", partition)
}

func (s *stubPartitionConsumerSource) Close() error {
	s.closed = true
	return nil
}

type stubPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
	closed   bool
}

func (s *stubPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubPartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return s.errors }

func (s *stubPartitionConsumer) Close() error {
	s.closed = true
	return nil
}

// closedPartitionConsumer отдаёт сообщения и закрывает канал; канал ошибок не закрыт, чтобы select не крутился.
func closedPartitionConsumer(messages ...*sarama.ConsumerMessage) *stubPartitionConsumer {
	ch := make(chan *sarama.ConsumerMessage, len(messages))
	for _, msg := range messages {
		ch <- msg
	}
	close(ch)
	return &stubPartitionConsumer{messages: ch, errors: make(chan *sarama.ConsumerError)}
}

type stubReplayProducer struct {
	sendErr error
	calls   int
	closed  bool
	lastMsg *sarama.ProducerMessage
}

func (s *stubReplayProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	s.calls++
	s.lastMsg = msg
	return 0, int64(s.calls), s.sendErr
}

func (s *stubReplayProducer) Close() error {
	s.closed = true
	return nil
}
