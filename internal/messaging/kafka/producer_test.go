package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/oda/internal/domain"
)

func sampleSnapshot() domain.Snapshot {
	return domain.Snapshot{
		ID:          "snap-1",
		GeneratedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Rows:        118310,
		Period: domain.DateRange{
			Min: time.Date(2016, 9, 4, 0, 0, 0, 0, time.UTC),
			Max: time.Date(2018, 9, 3, 0, 0, 0, 0, time.UTC),
		},
		Stats: domain.OrderStats{
			TotalOrders:  98666,
			TotalRevenue: decimal.RequireFromString("20308137.58"),
		},
		TopCategory: "bed_bath_table",
		TopState:    "SP",
	}
}

func TestProducer_Publish(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	captured := make(chan *sarama.ProducerMessage, 1)
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		captured <- msg
		return nil
	})

	require.NoError(t, newProducer(mock).Publish(TopicSnapshots, "snap-1", NewSnapshotEvent(sampleSnapshot())))
	require.NoError(t, mock.Close())

	msg := <-captured
	assert.Equal(t, TopicSnapshots, msg.Topic)
	key, _ := msg.Key.Encode()
	assert.Equal(t, "snap-1", string(key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, HeaderEventType, string(msg.Headers[0].Key))
	assert.Equal(t, string(EventTypeAnalyticsSnapshot), string(msg.Headers[0].Value))

	value, _ := msg.Value.Encode()
	var event SnapshotEvent
	require.NoError(t, json.Unmarshal(value, &event))
	assert.True(t, event.Snapshot.Stats.TotalRevenue.Equal(decimal.RequireFromString("20308137.58")))
}

func TestProducer_PublishWithoutKey(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Nil(t, msg.Key)
		return nil
	})

	require.NoError(t, newProducer(mock).Publish(TopicDatasetCommands, "", NewReloadCommand("ops")))
	require.NoError(t, mock.Close())
}

func TestProducer_PublishSendError(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := newProducer(mock).Publish(TopicSnapshots, "snap-1", NewSnapshotEvent(sampleSnapshot()))
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	assert.Contains(t, err.Error(), TopicSnapshots)
	require.NoError(t, mock.Close())
}

func TestProducer_PingWithoutClient(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	p := newProducer(mock)

	require.NoError(t, p.Ping(context.Background()))
	require.NoError(t, p.Close())
}

func TestProducer_NilGuards(t *testing.T) {
	var p *Producer

	require.ErrorIs(t, p.Publish(TopicSnapshots, "k", NewReloadCommand("test")), errProducerNotInitialized)
	require.ErrorIs(t, p.Ping(context.Background()), errProducerNotInitialized)
	require.NoError(t, p.Close())

	_, err := NewProducer(nil)
	require.ErrorContains(t, err, "not configured")
}

func TestProducerConfig(t *testing.T) {
	cfg := producerConfig()

	assert.Equal(t, producerClientID, cfg.ClientID)
	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	assert.True(t, cfg.Producer.Idempotent)
	assert.Equal(t, 1, cfg.Net.MaxOpenRequests)
	require.NoError(t, cfg.Validate())
}

func TestEvents(t *testing.T) {
	period := sampleSnapshot().Period

	loaded := NewDatasetLoadedEvent("./data/all_data.csv", 10, period)
	assert.Equal(t, EventTypeDatasetLoaded, loaded.Type())
	assert.Equal(t, 10, loaded.Rows)
	assert.True(t, loaded.Period.Min.Equal(period.Min))

	snapshot := NewSnapshotEvent(sampleSnapshot())
	assert.Equal(t, EventTypeAnalyticsSnapshot, snapshot.Type())
	assert.False(t, snapshot.Timestamp.IsZero())

	cmd := NewReloadCommand("ops")
	assert.Equal(t, EventTypeReloadRequested, cmd.Type())
	assert.Equal(t, "ops", cmd.RequestedBy)
}
