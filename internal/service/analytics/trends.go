package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/oda/internal/domain"
)

type bucket struct {
	orders  map[string]struct{}
	revenue decimal.Decimal
}

// DailyOrders агрегирует уникальные заказы и сумму платежей по дням покупки.
// Дни без заказов между первым и последним днём присутствуют с нулями.
func DailyOrders(records []domain.OrderRecord) []domain.PeriodOrders {
	return resample(records, startOfDay, func(t time.Time) time.Time { return t.AddDate(0, 0, 1) })
}

// MonthlyOrders агрегирует то же по месяцам; период подписан первым днём месяца.
func MonthlyOrders(records []domain.OrderRecord) []domain.PeriodOrders {
	return resample(records, startOfMonth, func(t time.Time) time.Time { return t.AddDate(0, 1, 0) })
}

func resample(records []domain.OrderRecord, floor func(time.Time) time.Time, next func(time.Time) time.Time) []domain.PeriodOrders {
	if len(records) == 0 {
		return []domain.PeriodOrders{}
	}

	buckets := make(map[time.Time]*bucket)
	var first, last time.Time
	for i := range records {
		key := floor(records[i].PurchasedAt)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{orders: make(map[string]struct{}), revenue: decimal.Zero}
			buckets[key] = b
		}
		b.orders[records[i].OrderID] = struct{}{}
		b.revenue = b.revenue.Add(records[i].PaymentValue)

		if first.IsZero() || key.Before(first) {
			first = key
		}
		if last.IsZero() || key.After(last) {
			last = key
		}
	}

	result := make([]domain.PeriodOrders, 0, len(buckets))
	for period := first; !period.After(last); period = next(period) {
		item := domain.PeriodOrders{Period: period, Revenue: decimal.Zero}
		if b, ok := buckets[period]; ok {
			item.Orders = len(b.orders)
			item.Revenue = b.revenue
		}
		result = append(result, item)
	}
	return result
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}
