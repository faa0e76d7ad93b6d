// Package dataset читает объединённый CSV-датасет заказов (all_data.csv).
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/oda/internal/domain"
)

// Колонки датасета.
const (
	ColOrderID           = "order_id"
	ColCustomerID        = "customer_id"
	ColCustomerUniqueID  = "customer_unique_id"
	ColOrderStatus       = "order_status"
	ColPurchaseTimestamp = "order_purchase_timestamp"
	ColApprovedAt        = "order_approved_at"
	ColDeliveredCarrier  = "order_delivered_carrier_date"
	ColDeliveredCustomer = "order_delivered_customer_date"
	ColEstimatedDelivery = "order_estimated_delivery_date"
	ColProductID         = "product_id"
	ColCategory          = "product_category_name"
	ColCategoryEnglish   = "product_category_name_english"
	ColQtyOrder          = "qty_order"
	ColPrice             = "price"
	ColFreightValue      = "freight_value"
	ColPaymentType       = "payment_type"
	ColPaymentValue      = "payment_value"
	ColReviewScore       = "review_score"
	ColCustomerCity      = "customer_city"
	ColCustomerState     = "customer_state"
)

const (
	ctxCheckEvery = 4096
	utf8BOM       = "\ufeff"
)

// RequiredColumns: колонки, без которых дашборд не может построить ни одного графика.
var RequiredColumns = []string{
	ColOrderID,
	ColCustomerID,
	ColOrderStatus,
	ColPurchaseTimestamp,
	ColCategoryEnglish,
	ColQtyOrder,
	ColPrice,
	ColFreightValue,
	ColPaymentValue,
	ColReviewScore,
	ColCustomerState,
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// Loader разбирает CSV в доменные записи.
type Loader struct {
	validate *validator.Validate
	logger   *log.Entry
}

// NewLoader создаёт загрузчик датасета.
func NewLoader(logger *log.Entry) *Loader {
	if logger == nil {
		logger = log.WithField("component", "dataset-loader")
	}
	return &Loader{
		validate: validator.New(),
		logger:   logger,
	}
}

// Load читает файл целиком. Любая ошибка (нет файла, битая строка) прерывает загрузку.
func (l *Loader) Load(ctx context.Context, path string) ([]domain.OrderRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer file.Close()

	started := time.Now()
	records, err := l.Read(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}

	l.logger.WithFields(log.Fields{
		"path":     path,
		"rows":     len(records),
		"duration": time.Since(started).String(),
	}).Info("датасет загружен")

	return records, nil
}

// Read разбирает CSV с заголовком. Колонки ищутся по имени, лишние игнорируются.
func (l *Loader) Read(ctx context.Context, r io.Reader) ([]domain.OrderRecord, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", domain.ErrMissingColumn)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols, err := newColumnIndex(header)
	if err != nil {
		return nil, err
	}

	records := make([]domain.OrderRecord, 0, 1024)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return nil, fmt.Errorf("%w: line %d: %v", domain.ErrMalformedRow, parseErr.Line, parseErr.Err)
			}
			return nil, fmt.Errorf("read row: %w", err)
		}

		line, _ := reader.FieldPos(0)
		record, err := cols.parse(row)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", domain.ErrMalformedRow, line, err)
		}
		if err := l.check(&record); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", domain.ErrMalformedRow, line, err)
		}
		records = append(records, record)

		if len(records)%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}

	return records, nil
}

func (l *Loader) check(record *domain.OrderRecord) error {
	if err := l.validate.Struct(record); err != nil {
		return err
	}
	if errs := record.ValidateInvariants(); len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

type columnIndex map[string]int

func newColumnIndex(header []string) (columnIndex, error) {
	cols := make(columnIndex, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, utf8BOM)
		}
		name = strings.TrimSpace(name)
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}

	var missing []string
	for _, name := range RequiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrMissingColumn, strings.Join(missing, ", "))
	}
	return cols, nil
}

func (c columnIndex) get(row []string, name string) string {
	idx, ok := c[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func (c columnIndex) parse(row []string) (domain.OrderRecord, error) {
	var (
		rec domain.OrderRecord
		err error
	)

	rec.OrderID = c.get(row, ColOrderID)
	rec.CustomerID = c.get(row, ColCustomerID)
	rec.CustomerUniqueID = c.get(row, ColCustomerUniqueID)
	rec.Status = domain.OrderStatus(c.get(row, ColOrderStatus))
	rec.ProductID = c.get(row, ColProductID)
	rec.Category = c.get(row, ColCategory)
	rec.CategoryEnglish = c.get(row, ColCategoryEnglish)
	rec.PaymentType = c.get(row, ColPaymentType)
	rec.CustomerCity = c.get(row, ColCustomerCity)
	rec.CustomerState = c.get(row, ColCustomerState)

	if rec.PurchasedAt, err = parseTimestamp(c.get(row, ColPurchaseTimestamp)); err != nil {
		return rec, fmt.Errorf("%s: %w", ColPurchaseTimestamp, err)
	}
	optional := []struct {
		name string
		dst  *time.Time
	}{
		{ColApprovedAt, &rec.ApprovedAt},
		{ColDeliveredCarrier, &rec.DeliveredCarrierAt},
		{ColDeliveredCustomer, &rec.DeliveredCustomerAt},
		{ColEstimatedDelivery, &rec.EstimatedDeliveryAt},
	}
	for _, o := range optional {
		if *o.dst, err = parseTimestamp(c.get(row, o.name)); err != nil {
			return rec, fmt.Errorf("%s: %w", o.name, err)
		}
	}

	if rec.QtyOrder, err = parseWhole(c.get(row, ColQtyOrder)); err != nil {
		return rec, fmt.Errorf("%s: %w", ColQtyOrder, err)
	}
	if rec.ReviewScore, err = parseWhole(c.get(row, ColReviewScore)); err != nil {
		return rec, fmt.Errorf("%s: %w", ColReviewScore, err)
	}
	if rec.Price, err = parseNullDecimal(c.get(row, ColPrice)); err != nil {
		return rec, fmt.Errorf("%s: %w", ColPrice, err)
	}
	if rec.FreightValue, err = parseNullDecimal(c.get(row, ColFreightValue)); err != nil {
		return rec, fmt.Errorf("%s: %w", ColFreightValue, err)
	}
	payment, err := parseNullDecimal(c.get(row, ColPaymentValue))
	if err != nil {
		return rec, fmt.Errorf("%s: %w", ColPaymentValue, err)
	}
	// Пустой платёж при суммировании ведёт себя как ноль.
	rec.PaymentValue = payment.Decimal

	return rec, nil
}

// parseTimestamp возвращает нулевое время для пустого значения.
func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp %q", raw)
}

// parseWhole принимает целые числа и их float-запись ("3.0"), пустое значение: 0.
func parseWhole(raw string) (int, error) {
	if raw == "" || strings.EqualFold(raw, "nan") {
		return 0, nil
	}
	if v, err := strconv.Atoi(raw); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("expected whole number, got %q", raw)
	}
	if f >= math.MaxInt || f < math.MinInt {
		return 0, fmt.Errorf("number %q is out of range", raw)
	}
	return int(f), nil
}

func parseNullDecimal(raw string) (decimal.NullDecimal, error) {
	if raw == "" || strings.EqualFold(raw, "nan") {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("invalid decimal %q", raw)
	}
	return decimal.NewNullDecimal(d), nil
}
