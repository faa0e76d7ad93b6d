package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/oda/internal/domain"
)

// datasetRepositoryInMemory держит весь снимок датасета в памяти процесса.
type datasetRepositoryInMemory struct {
	mu       sync.RWMutex
	records  []domain.OrderRecord
	bounds   domain.DateRange
	statuses []domain.OrderStatus
}

// NewDatasetRepository возвращает in-memory репозиторий: режим по умолчанию для дашборда.
func NewDatasetRepository() domain.DatasetRepository {
	return &datasetRepositoryInMemory{}
}

// Replace заменяет снимок целиком и пересчитывает диапазон дат и список статусов.
func (r *datasetRepositoryInMemory) Replace(ctx context.Context, records []domain.OrderRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Храним собственную копию, чтобы вызывающий мог переиспользовать срез.
	snapshot := make([]domain.OrderRecord, len(records))
	copy(snapshot, records)

	var bounds domain.DateRange
	seen := make(map[domain.OrderStatus]struct{})
	statuses := make([]domain.OrderStatus, 0, 8)
	for i := range snapshot {
		day := snapshot[i].PurchaseDate()
		if bounds.Min.IsZero() || day.Before(bounds.Min) {
			bounds.Min = day
		}
		if bounds.Max.IsZero() || day.After(bounds.Max) {
			bounds.Max = day
		}
		if _, ok := seen[snapshot[i].Status]; !ok {
			seen[snapshot[i].Status] = struct{}{}
			statuses = append(statuses, snapshot[i].Status)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = snapshot
	r.bounds = bounds
	r.statuses = statuses
	return nil
}

// Find возвращает подходящие под фильтр строки в порядке загрузки.
func (r *datasetRepositoryInMemory) Find(ctx context.Context, filter domain.Filter) ([]domain.OrderRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return filter.Apply(r.records), nil
}

// Bounds возвращает ErrDatasetEmpty, пока снимок не загружен.
func (r *datasetRepositoryInMemory) Bounds(ctx context.Context) (domain.DateRange, error) {
	if err := ctx.Err(); err != nil {
		return domain.DateRange{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.records) == 0 {
		return domain.DateRange{}, domain.ErrDatasetEmpty
	}
	return r.bounds, nil
}

func (r *datasetRepositoryInMemory) Statuses(ctx context.Context) ([]domain.OrderStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.OrderStatus, len(r.statuses))
	copy(out, r.statuses)
	return out, nil
}

func (r *datasetRepositoryInMemory) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records), nil
}
