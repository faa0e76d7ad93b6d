package domain

import (
	"context"
	"time"
)

// DatasetRepository описывает хранилище загруженного снимка датасета.
type DatasetRepository interface {
	// Replace полностью заменяет содержимое хранилища новым снимком.
	Replace(ctx context.Context, records []OrderRecord) error
	// Find возвращает записи, подходящие под фильтр, в порядке загрузки.
	Find(ctx context.Context, filter Filter) ([]OrderRecord, error)
	// Bounds возвращает минимальную и максимальную дату покупки или ErrDatasetEmpty.
	Bounds(ctx context.Context) (DateRange, error)
	// Statuses возвращает уникальные статусы в порядке первого появления.
	Statuses(ctx context.Context) ([]OrderStatus, error)
	// Count возвращает количество строк в снимке.
	Count(ctx context.Context) (int, error)
}

// SnapshotPublisher публикует KPI-снимки наружу (например, в Kafka).
type SnapshotPublisher interface {
	Publish(snapshot Snapshot) error
}

// Snapshot: сводка по всему датасету для внешних потребителей.
type Snapshot struct {
	ID          string     `json:"id"`
	GeneratedAt time.Time  `json:"generated_at"`
	Rows        int        `json:"rows"`
	Period      DateRange  `json:"period"`
	Stats       OrderStats `json:"stats"`
	TopCategory string     `json:"top_category,omitempty"`
	TopState    string     `json:"top_state,omitempty"`
}
