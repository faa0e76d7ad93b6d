package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/oda/internal/domain"
)

type row struct {
	order    string
	customer string
	status   domain.OrderStatus
	at       string
	category string
	qty      int
	price    string
	freight  string
	payment  string
	review   int
	state    string
}

func ts(value string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", value)
	if err != nil {
		panic(err)
	}
	return t
}

func nullDec(value string) decimal.NullDecimal {
	if value == "" {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.RequireFromString(value))
}

func build(rows ...row) []domain.OrderRecord {
	out := make([]domain.OrderRecord, len(rows))
	for i, r := range rows {
		out[i] = domain.OrderRecord{
			OrderID:         r.order,
			CustomerID:      r.customer,
			Status:          r.status,
			PurchasedAt:     ts(r.at),
			CategoryEnglish: r.category,
			QtyOrder:        r.qty,
			Price:           nullDec(r.price),
			FreightValue:    nullDec(r.freight),
			PaymentValue:    decimal.RequireFromString(r.payment),
			ReviewScore:     r.review,
			CustomerState:   r.state,
		}
	}
	return out
}

// fixture: небольшой датасет: 6 заказов, 5 клиентов, 3 месяца с пропуском февраля.
func fixture() []domain.OrderRecord {
	return build(
		row{"o1", "c1", domain.OrderStatusDelivered, "2018-01-10 10:00", "toys", 2, "10.00", "2.00", "24.00", 5, "SP"},
		row{"o1", "c1", domain.OrderStatusDelivered, "2018-01-10 10:00", "housewares", 1, "20.00", "4.00", "24.00", 5, "SP"},
		row{"o2", "c2", domain.OrderStatusShipped, "2018-01-12 09:30", "toys", 3, "15.00", "3.00", "48.00", 4, "RJ"},
		row{"o3", "c3", domain.OrderStatusDelivered, "2018-03-01 18:00", "bed_bath_table", 1, "100.00", "20.00", "120.00", 1, "MG"},
		row{"o4", "c1", domain.OrderStatusCanceled, "2018-03-02 08:00", "", 0, "", "", "5.00", 0, "SP"},
		row{"o5", "c4", domain.OrderStatusDelivered, "2018-03-03 12:00", "watches_gifts", 4, "50.00", "10.00", "210.00", 3, "RJ"},
		row{"o6", "c5", domain.OrderStatusDelivered, "2018-03-03 23:59", "toys", 1, "12.00", "2.50", "14.50", 5, ""},
	)
}
