package domain

import (
	"strings"
	"time"
)

// DateLayout: формат дат в фильтрах и query-параметрах.
const DateLayout = "2006-01-02"

// Filter задаёт выборку для дашборда: период по дате покупки и статус.
type Filter struct {
	// Start и End включительны и сравниваются с календарной датой покупки.
	// Нулевое значение означает отсутствие границы.
	Start  time.Time
	End    time.Time
	Status OrderStatus
}

// DateRange: границы дат покупки в датасете.
type DateRange struct {
	Min time.Time `json:"min"`
	Max time.Time `json:"max"`
}

// NewFilter нормализует границы до календарных дат и пустой статус до ALL.
func NewFilter(start, end time.Time, status OrderStatus) Filter {
	status = OrderStatus(strings.TrimSpace(string(status)))
	if status == "" {
		status = StatusAll
	}
	return Filter{
		Start:  truncateDay(start),
		End:    truncateDay(end),
		Status: status,
	}
}

// Validate проверяет согласованность границ периода.
func (f Filter) Validate() error {
	if !f.Start.IsZero() && !f.End.IsZero() && f.Start.After(f.End) {
		return ErrInvalidDateRange
	}
	return nil
}

// AllStatuses сообщает, что фильтр по статусу отключён.
func (f Filter) AllStatuses() bool {
	return f.Status == "" || f.Status == StatusAll
}

// Matches проверяет, попадает ли запись в выборку.
func (f Filter) Matches(r *OrderRecord) bool {
	day := r.PurchaseDate()
	if !f.Start.IsZero() && day.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && day.After(f.End) {
		return false
	}
	if !f.AllStatuses() && r.Status != f.Status {
		return false
	}
	return true
}

// Apply возвращает записи, удовлетворяющие фильтру, сохраняя исходный порядок.
func (f Filter) Apply(records []OrderRecord) []OrderRecord {
	result := make([]OrderRecord, 0, len(records))
	for i := range records {
		if f.Matches(&records[i]) {
			result = append(result, records[i])
		}
	}
	return result
}

// EndExclusive возвращает момент сразу после последнего дня периода (для SQL-условий).
func (f Filter) EndExclusive() time.Time {
	if f.End.IsZero() {
		return time.Time{}
	}
	return f.End.AddDate(0, 0, 1)
}
