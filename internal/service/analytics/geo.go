package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/oda/internal/domain"
)

// SalesByState суммирует платежи по штату покупателя, по возрастанию суммы.
func SalesByState(records []domain.OrderRecord) []domain.StateSales {
	sums := make(map[string]decimal.Decimal)
	for i := range records {
		state := records[i].CustomerState
		if state == "" {
			continue
		}
		sums[state] = sums[state].Add(records[i].PaymentValue)
	}

	result := make([]domain.StateSales, 0, len(sums))
	for state, revenue := range sums {
		result = append(result, domain.StateSales{State: state, Revenue: revenue})
	}
	sort.Slice(result, func(i, j int) bool {
		if c := result[i].Revenue.Cmp(result[j].Revenue); c != 0 {
			return c < 0
		}
		return result[i].State < result[j].State
	})
	return result
}

// TopState возвращает штат с наибольшей выручкой или пустую строку.
func TopState(records []domain.OrderRecord) string {
	states := SalesByState(records)
	if len(states) == 0 {
		return ""
	}
	return states[len(states)-1].State
}
