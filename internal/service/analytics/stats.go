package analytics

import (
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/oda/internal/domain"
)

// OrderStats считает уникальные заказы и суммарную выручку.
func OrderStats(records []domain.OrderRecord) domain.OrderStats {
	orders := make(map[string]struct{}, len(records))
	revenue := decimal.Zero
	for i := range records {
		orders[records[i].OrderID] = struct{}{}
		revenue = revenue.Add(records[i].PaymentValue)
	}
	return domain.OrderStats{
		TotalOrders:  len(orders),
		TotalRevenue: revenue,
	}
}

// StatusCounts считает строки по статусу: по убыванию количества, при равенстве по имени.
func StatusCounts(records []domain.OrderRecord) ([]domain.StatusCount, error) {
	keys := make([]string, len(records))
	ones := make([]int, len(records))
	for i := range records {
		keys[i] = string(records[i].Status)
		ones[i] = 1
	}

	counts, err := groupAggregate(keys, ones, dataframe.Aggregation_COUNT)
	if err != nil {
		return nil, err
	}

	result := make([]domain.StatusCount, 0, len(counts))
	for status, count := range counts {
		result = append(result, domain.StatusCount{
			Status: domain.OrderStatus(status),
			Orders: toInt(count),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Orders != result[j].Orders {
			return result[i].Orders > result[j].Orders
		}
		return result[i].Status < result[j].Status
	})
	return result, nil
}
