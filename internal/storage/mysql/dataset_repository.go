package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vladislavdragonenkov/oda/internal/domain"
)

const insertBatch = 500

type datasetRepository struct {
	db *gorm.DB
}

// NewDatasetRepository создаёт GORM-реализацию DatasetRepository.
func NewDatasetRepository(db *gorm.DB) domain.DatasetRepository {
	return &datasetRepository{db: db}
}

// Replace удаляет прежний снимок и вставляет новый пачками в одной транзакции.
func (r *datasetRepository) Replace(ctx context.Context, records []domain.OrderRecord) error {
	pos := make([]OrderRecordPO, len(records))
	for i := range records {
		pos[i] = FromDomain(int64(i), &records[i])
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&OrderRecordPO{}).Error; err != nil {
			return fmt.Errorf("clear order_records: %w", err)
		}
		if len(pos) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(pos, insertBatch).Error; err != nil {
			return fmt.Errorf("insert order_records: %w", err)
		}
		return nil
	})
}

// Find применяет фильтр на стороне БД и сохраняет порядок загрузки.
func (r *datasetRepository) Find(ctx context.Context, filter domain.Filter) ([]domain.OrderRecord, error) {
	query := r.db.WithContext(ctx).Model(&OrderRecordPO{})
	if !filter.Start.IsZero() {
		query = query.Where("purchased_at >= ?", filter.Start)
	}
	if !filter.End.IsZero() {
		query = query.Where("purchased_at < ?", filter.EndExclusive())
	}
	if !filter.AllStatuses() {
		query = query.Where("order_status = ?", string(filter.Status))
	}

	var pos []OrderRecordPO
	if err := query.Order("row_no").Find(&pos).Error; err != nil {
		return nil, fmt.Errorf("query order_records: %w", err)
	}

	records := make([]domain.OrderRecord, len(pos))
	for i := range pos {
		records[i] = pos[i].ToDomain()
	}
	return records, nil
}

func (r *datasetRepository) Bounds(ctx context.Context) (domain.DateRange, error) {
	var row struct {
		MinAt *time.Time
		MaxAt *time.Time
	}
	if err := r.db.WithContext(ctx).
		Model(&OrderRecordPO{}).
		Select("MIN(purchased_at) AS min_at, MAX(purchased_at) AS max_at").
		Scan(&row).Error; err != nil {
		return domain.DateRange{}, fmt.Errorf("query bounds: %w", err)
	}
	if row.MinAt == nil || row.MaxAt == nil {
		return domain.DateRange{}, domain.ErrDatasetEmpty
	}

	return domain.DateRange{Min: startOfDay(*row.MinAt), Max: startOfDay(*row.MaxAt)}, nil
}

func (r *datasetRepository) Statuses(ctx context.Context) ([]domain.OrderStatus, error) {
	var raw []string
	if err := r.db.WithContext(ctx).
		Model(&OrderRecordPO{}).
		Group("order_status").
		Order("MIN(row_no)").
		Pluck("order_status", &raw).Error; err != nil {
		return nil, fmt.Errorf("query statuses: %w", err)
	}

	statuses := make([]domain.OrderStatus, len(raw))
	for i, s := range raw {
		statuses[i] = domain.OrderStatus(s)
	}
	return statuses, nil
}

func (r *datasetRepository) Count(ctx context.Context) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&OrderRecordPO{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count order_records: %w", err)
	}
	return int(count), nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
