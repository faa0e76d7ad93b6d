package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/oda/internal/domain"
)

const (
	opTimeout      = 5 * time.Second
	replaceTimeout = 5 * time.Minute
	insertBatch    = 500
)

var recordColumns = []string{
	"row_no",
	"order_id",
	"customer_id",
	"customer_unique_id",
	"order_status",
	"purchased_at",
	"approved_at",
	"delivered_carrier_at",
	"delivered_customer_at",
	"estimated_delivery_at",
	"product_id",
	"category",
	"category_english",
	"qty_order",
	"price",
	"freight_value",
	"payment_type",
	"payment_value",
	"review_score",
	"customer_city",
	"customer_state",
}

type datasetRepository struct {
	db *sql.DB
}

// NewDatasetRepository создаёт PostgreSQL-реализацию DatasetRepository.
func NewDatasetRepository(store *Store) domain.DatasetRepository {
	return &datasetRepository{db: store.DB()}
}

// Replace в одной транзакции очищает order_records, вставляет снимок пачками
// и фиксирует загрузку в dataset_loads.
func (r *datasetRepository) Replace(ctx context.Context, records []domain.OrderRecord) (err error) {
	ctx, cancel := context.WithTimeout(ctx, replaceTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `TRUNCATE TABLE order_records`); err != nil {
		return fmt.Errorf("truncate order_records: %w", err)
	}

	var bounds domain.DateRange
	for start := 0; start < len(records); start += insertBatch {
		end := start + insertBatch
		if end > len(records) {
			end = len(records)
		}
		query, args := buildInsert(records[start:end], start)
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert order_records batch at %d: %w", start, err)
		}
		for i := start; i < end; i++ {
			day := records[i].PurchaseDate()
			if bounds.Min.IsZero() || day.Before(bounds.Min) {
				bounds.Min = day
			}
			if bounds.Max.IsZero() || day.After(bounds.Max) {
				bounds.Max = day
			}
		}
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO dataset_loads (rows_loaded, min_purchase_date, max_purchase_date)
		VALUES ($1, $2, $3)
	`, len(records), nullTime(bounds.Min), nullTime(bounds.Max)); err != nil {
		return fmt.Errorf("record dataset load: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace dataset: %w", err)
	}
	return nil
}

func buildInsert(batch []domain.OrderRecord, offset int) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO order_records (")
	sb.WriteString(strings.Join(recordColumns, ", "))
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(batch)*len(recordColumns))
	for i := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c := range recordColumns {
			if c > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", len(args)+c+1)
		}
		sb.WriteByte(')')

		rec := &batch[i]
		args = append(args,
			int64(offset+i),
			rec.OrderID,
			rec.CustomerID,
			rec.CustomerUniqueID,
			string(rec.Status),
			rec.PurchasedAt.UTC(),
			nullTime(rec.ApprovedAt),
			nullTime(rec.DeliveredCarrierAt),
			nullTime(rec.DeliveredCustomerAt),
			nullTime(rec.EstimatedDeliveryAt),
			rec.ProductID,
			rec.Category,
			rec.CategoryEnglish,
			rec.QtyOrder,
			rec.Price,
			rec.FreightValue,
			rec.PaymentType,
			rec.PaymentValue,
			rec.ReviewScore,
			rec.CustomerCity,
			rec.CustomerState,
		)
	}
	return sb.String(), args
}

// Find фильтрует по дате покупки (полуинтервал [start, end+1 день)) и статусу на стороне БД.
func (r *datasetRepository) Find(ctx context.Context, filter domain.Filter) ([]domain.OrderRecord, error) {
	var (
		conds []string
		args  []any
	)
	if !filter.Start.IsZero() {
		args = append(args, filter.Start)
		conds = append(conds, fmt.Sprintf("purchased_at >= $%d", len(args)))
	}
	if !filter.End.IsZero() {
		args = append(args, filter.EndExclusive())
		conds = append(conds, fmt.Sprintf("purchased_at < $%d", len(args)))
	}
	if !filter.AllStatuses() {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("order_status = $%d", len(args)))
	}

	query := "SELECT " + strings.Join(recordColumns[1:], ", ") + " FROM order_records"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY row_no"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query order_records: %w", err)
	}
	defer rows.Close()

	result := make([]domain.OrderRecord, 0, 1024)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order_records: %w", err)
	}
	return result, nil
}

func scanRecord(rows *sql.Rows) (domain.OrderRecord, error) {
	var (
		rec       domain.OrderRecord
		status    string
		approved  sql.NullTime
		carrier   sql.NullTime
		customer  sql.NullTime
		estimated sql.NullTime
		price     decimal.NullDecimal
		freight   decimal.NullDecimal
		payment   decimal.Decimal
	)
	if err := rows.Scan(
		&rec.OrderID,
		&rec.CustomerID,
		&rec.CustomerUniqueID,
		&status,
		&rec.PurchasedAt,
		&approved,
		&carrier,
		&customer,
		&estimated,
		&rec.ProductID,
		&rec.Category,
		&rec.CategoryEnglish,
		&rec.QtyOrder,
		&price,
		&freight,
		&rec.PaymentType,
		&payment,
		&rec.ReviewScore,
		&rec.CustomerCity,
		&rec.CustomerState,
	); err != nil {
		return domain.OrderRecord{}, fmt.Errorf("scan order_record: %w", err)
	}

	rec.Status = domain.OrderStatus(status)
	rec.PurchasedAt = rec.PurchasedAt.UTC()
	rec.ApprovedAt = fromNullTime(approved)
	rec.DeliveredCarrierAt = fromNullTime(carrier)
	rec.DeliveredCustomerAt = fromNullTime(customer)
	rec.EstimatedDeliveryAt = fromNullTime(estimated)
	rec.Price = price
	rec.FreightValue = freight
	rec.PaymentValue = payment
	return rec, nil
}

func (r *datasetRepository) Bounds(ctx context.Context) (domain.DateRange, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var minAt, maxAt sql.NullTime
	if err := r.db.QueryRowContext(ctx, `
		SELECT MIN(purchased_at), MAX(purchased_at) FROM order_records
	`).Scan(&minAt, &maxAt); err != nil {
		return domain.DateRange{}, fmt.Errorf("query bounds: %w", err)
	}
	if !minAt.Valid || !maxAt.Valid {
		return domain.DateRange{}, domain.ErrDatasetEmpty
	}

	return domain.DateRange{
		Min: startOfDay(minAt.Time),
		Max: startOfDay(maxAt.Time),
	}, nil
}

func (r *datasetRepository) Statuses(ctx context.Context) ([]domain.OrderStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_status
		FROM order_records
		GROUP BY order_status
		ORDER BY MIN(row_no)
	`)
	if err != nil {
		return nil, fmt.Errorf("query statuses: %w", err)
	}
	defer rows.Close()

	statuses := make([]domain.OrderStatus, 0, 8)
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		statuses = append(statuses, domain.OrderStatus(status))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statuses: %w", err)
	}
	return statuses, nil
}

func (r *datasetRepository) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count order_records: %w", err)
	}
	return count, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
