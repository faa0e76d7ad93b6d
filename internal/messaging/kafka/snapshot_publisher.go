package kafka

import (
	"errors"

	"github.com/vladislavdragonenkov/oda/internal/domain"
)

// SnapshotTopicPublisher отправляет KPI-снимки в заданный topic.
type SnapshotTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewSnapshotPublisher создаёт Kafka-паблишер снимков; пустой topic заменяется на TopicSnapshots.
func NewSnapshotPublisher(producer *Producer, topic string) *SnapshotTopicPublisher {
	if topic == "" {
		topic = TopicSnapshots
	}
	return &SnapshotTopicPublisher{
		producer: producer,
		topic:    topic,
	}
}

// Publish использует ID снимка как ключ сообщения.
func (p *SnapshotTopicPublisher) Publish(snapshot domain.Snapshot) error {
	if p == nil || p.producer == nil {
		return errors.New("kafka snapshot publisher is not initialized")
	}
	return p.producer.Publish(p.topic, snapshot.ID, NewSnapshotEvent(snapshot))
}

// PublishDatasetLoaded сообщает о загрузке нового снимка датасета.
func (p *SnapshotTopicPublisher) PublishDatasetLoaded(source string, rows int, period domain.DateRange) error {
	if p == nil || p.producer == nil {
		return errors.New("kafka snapshot publisher is not initialized")
	}
	return p.producer.Publish(TopicDatasetEvents, source, NewDatasetLoadedEvent(source, rows, period))
}

var _ domain.SnapshotPublisher = (*SnapshotTopicPublisher)(nil)
