package analytics

import (
	"sort"

	"github.com/go-gota/gota/dataframe"

	"github.com/vladislavdragonenkov/oda/internal/domain"
)

// CategoryTotals суммирует qty_order по английскому названию категории.
// Строки без категории не учитываются. Результат отсортирован по убыванию количества.
func CategoryTotals(records []domain.OrderRecord) ([]domain.CategorySales, error) {
	keys := make([]string, len(records))
	qty := make([]int, len(records))
	for i := range records {
		keys[i] = records[i].CategoryEnglish
		qty[i] = records[i].QtyOrder
	}

	sums, err := groupAggregate(keys, qty, dataframe.Aggregation_SUM)
	if err != nil {
		return nil, err
	}

	result := make([]domain.CategorySales, 0, len(sums))
	for category, sum := range sums {
		result = append(result, domain.CategorySales{Category: category, Quantity: toInt(sum)})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Quantity != result[j].Quantity {
			return result[i].Quantity > result[j].Quantity
		}
		return result[i].Category < result[j].Category
	})
	return result, nil
}

// CategoryPerformance возвращает top лучших (по убыванию) и top худших (по возрастанию) категорий.
func CategoryPerformance(records []domain.OrderRecord, top int) (domain.CategoryPerformance, error) {
	totals, err := CategoryTotals(records)
	if err != nil {
		return domain.CategoryPerformance{}, err
	}

	n := max(0, min(top, len(totals)))

	best := make([]domain.CategorySales, n)
	copy(best, totals[:n])

	ascending := make([]domain.CategorySales, len(totals))
	copy(ascending, totals)
	sort.Slice(ascending, func(i, j int) bool {
		if ascending[i].Quantity != ascending[j].Quantity {
			return ascending[i].Quantity < ascending[j].Quantity
		}
		return ascending[i].Category < ascending[j].Category
	})
	worst := ascending[:n:n]

	return domain.CategoryPerformance{Best: best, Worst: worst}, nil
}
