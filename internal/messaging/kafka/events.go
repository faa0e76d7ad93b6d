package kafka

import (
	"time"

	"github.com/vladislavdragonenkov/oda/internal/domain"
)

// EventType определяет тип события
type EventType string

const (
	EventTypeDatasetLoaded     EventType = "dataset.loaded"
	EventTypeAnalyticsSnapshot EventType = "analytics.snapshot"
	EventTypeReloadRequested   EventType = "dataset.reload_requested"
)

// Topics для Kafka
const (
	TopicSnapshots       = "oda.analytics.snapshots"
	TopicDatasetEvents   = "oda.dataset.events"
	TopicDatasetCommands = "oda.dataset.commands"
	TopicDeadLetterQueue = "oda.dlq"
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// DatasetLoadedEvent публикуется после успешной загрузки снимка датасета.
type DatasetLoadedEvent struct {
	EventType EventType        `json:"event_type"`
	Source    string           `json:"source"`
	Rows      int              `json:"rows"`
	Period    domain.DateRange `json:"period"`
	Timestamp time.Time        `json:"timestamp"`
}

// SnapshotEvent: KPI-снимок для внешних потребителей.
type SnapshotEvent struct {
	EventType EventType       `json:"event_type"`
	Snapshot  domain.Snapshot `json:"snapshot"`
	Timestamp time.Time       `json:"timestamp"`
}

// ReloadCommand просит сервис перечитать датасет.
type ReloadCommand struct {
	EventType   EventType `json:"event_type"`
	RequestedBy string    `json:"requested_by,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Event: сообщение с типом, который дублируется в заголовке x-event-type.
type Event interface {
	Type() EventType
}

func (e *DatasetLoadedEvent) Type() EventType { return e.EventType }
func (e *SnapshotEvent) Type() EventType      { return e.EventType }
func (c *ReloadCommand) Type() EventType      { return c.EventType }

// NewDatasetLoadedEvent создаёт событие загрузки датасета.
func NewDatasetLoadedEvent(source string, rows int, period domain.DateRange) *DatasetLoadedEvent {
	return &DatasetLoadedEvent{
		EventType: EventTypeDatasetLoaded,
		Source:    source,
		Rows:      rows,
		Period:    period,
		Timestamp: time.Now().UTC(),
	}
}

// NewSnapshotEvent оборачивает снимок в событие.
func NewSnapshotEvent(snapshot domain.Snapshot) *SnapshotEvent {
	return &SnapshotEvent{
		EventType: EventTypeAnalyticsSnapshot,
		Snapshot:  snapshot,
		Timestamp: time.Now().UTC(),
	}
}

// NewReloadCommand создаёт команду перезагрузки.
func NewReloadCommand(requestedBy string) *ReloadCommand {
	return &ReloadCommand{
		EventType:   EventTypeReloadRequested,
		RequestedBy: requestedBy,
		Timestamp:   time.Now().UTC(),
	}
}
