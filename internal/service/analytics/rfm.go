package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/vladislavdragonenkov/oda/internal/domain"
)

// Названия RFM-сегментов.
const (
	SegmentChampions          = "Champions"
	SegmentLoyalCustomers     = "Loyal Customers"
	SegmentPotentialLoyalists = "Potential Loyalists"
	SegmentNewCustomers       = "New Customers"
	SegmentPromising          = "Promising"
	SegmentNeedAttention      = "Need Attention"
	SegmentAboutToSleep       = "About To Sleep"
	SegmentAtRisk             = "At Risk"
	SegmentCannotLoseThem     = "Cannot Lose Them"
	SegmentHibernating        = "Hibernating"
)

var quintileCuts = []float64{0.2, 0.4, 0.6, 0.8}

const day = 24 * time.Hour

type customerAgg struct {
	last      time.Time
	frequency int
	monetary  decimal.Decimal
}

// CustomerRFM считает Recency/Frequency/Monetary для каждого клиента.
// Точка отсчёта для recency: самая поздняя покупка в выборке.
// Результат упорядочен по customer_id; NumericID: позиция в этом порядке, начиная с 1.
func CustomerRFM(records []domain.OrderRecord) ([]domain.CustomerRFM, time.Time) {
	if len(records) == 0 {
		return []domain.CustomerRFM{}, time.Time{}
	}

	var reference time.Time
	byCustomer := make(map[string]*customerAgg)
	for i := range records {
		rec := &records[i]
		if rec.PurchasedAt.After(reference) {
			reference = rec.PurchasedAt
		}
		agg, ok := byCustomer[rec.CustomerID]
		if !ok {
			agg = &customerAgg{monetary: decimal.Zero}
			byCustomer[rec.CustomerID] = agg
		}
		if rec.PurchasedAt.After(agg.last) {
			agg.last = rec.PurchasedAt
		}
		agg.frequency++
		agg.monetary = agg.monetary.Add(rec.PaymentValue)
	}

	ids := make([]string, 0, len(byCustomer))
	for id := range byCustomer {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	customers := make([]domain.CustomerRFM, len(ids))
	for i, id := range ids {
		agg := byCustomer[id]
		customers[i] = domain.CustomerRFM{
			CustomerID: id,
			NumericID:  i + 1,
			Recency:    int(reference.Sub(agg.last) / day),
			Frequency:  agg.frequency,
			Monetary:   agg.monetary,
		}
	}

	scoreCustomers(customers)
	return customers, reference
}

// RFM строит отчёт: три топ-списка, распределение по сегментам и число клиентов.
func RFM(records []domain.OrderRecord, top int) domain.RFMReport {
	customers, reference := CustomerRFM(records)

	report := domain.RFMReport{
		Reference: reference,
		Customers: len(customers),
		Segments:  SegmentCounts(customers),
	}

	report.TopRecency = topBy(customers, top, func(a, b *domain.CustomerRFM) bool {
		return a.Recency < b.Recency
	})
	report.TopFrequency = topBy(customers, top, func(a, b *domain.CustomerRFM) bool {
		return a.Frequency > b.Frequency
	})
	report.TopMonetary = topBy(customers, top, func(a, b *domain.CustomerRFM) bool {
		return a.Monetary.GreaterThan(b.Monetary)
	})
	return report
}

// topBy возвращает первые top клиентов по less; при равенстве решает NumericID.
func topBy(customers []domain.CustomerRFM, top int, less func(a, b *domain.CustomerRFM) bool) []domain.CustomerRFM {
	sorted := make([]domain.CustomerRFM, len(customers))
	copy(sorted, customers)
	sort.SliceStable(sorted, func(i, j int) bool {
		if less(&sorted[i], &sorted[j]) {
			return true
		}
		if less(&sorted[j], &sorted[i]) {
			return false
		}
		return sorted[i].NumericID < sorted[j].NumericID
	})
	if top < len(sorted) {
		sorted = sorted[:top]
	}
	return sorted
}

// SegmentCounts считает клиентов в каждом сегменте: по убыванию, при равенстве по имени.
func SegmentCounts(customers []domain.CustomerRFM) []domain.SegmentCount {
	counts := make(map[string]int)
	for i := range customers {
		counts[customers[i].Segment]++
	}

	result := make([]domain.SegmentCount, 0, len(counts))
	for segment, n := range counts {
		result = append(result, domain.SegmentCount{Segment: segment, Customers: n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Customers != result[j].Customers {
			return result[i].Customers > result[j].Customers
		}
		return result[i].Segment < result[j].Segment
	})
	return result
}

// scoreCustomers проставляет квинтильные оценки 1..5 и сегмент.
// Меньшая давность даёт большую оценку R.
func scoreCustomers(customers []domain.CustomerRFM) {
	recency := make([]float64, len(customers))
	frequency := make([]float64, len(customers))
	monetary := make([]float64, len(customers))
	for i := range customers {
		recency[i] = float64(customers[i].Recency)
		frequency[i] = float64(customers[i].Frequency)
		monetary[i] = customers[i].Monetary.InexactFloat64()
	}

	rCuts := quintiles(recency)
	fCuts := quintiles(frequency)
	mCuts := quintiles(monetary)

	for i := range customers {
		c := &customers[i]
		c.RScore = 5 - above(rCuts, recency[i])
		c.FScore = 1 + above(fCuts, frequency[i])
		c.MScore = 1 + above(mCuts, monetary[i])
		c.Segment = Segment(c.RScore, c.FScore)
	}
}

func quintiles(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	cuts := make([]float64, len(quintileCuts))
	for i, p := range quintileCuts {
		cuts[i] = stat.Quantile(p, stat.Empirical, sorted, nil)
	}
	return cuts
}

// above возвращает число порогов, строго меньших v.
func above(cuts []float64, v float64) int {
	n := 0
	for _, c := range cuts {
		if v > c {
			n++
		}
	}
	return n
}

// Segment сопоставляет оценки R и F сегменту классической RFM-карты.
func Segment(r, f int) string {
	switch {
	case r >= 5 && f >= 4:
		return SegmentChampions
	case r >= 3 && f >= 4:
		return SegmentLoyalCustomers
	case r >= 4 && f >= 2:
		return SegmentPotentialLoyalists
	case r >= 5:
		return SegmentNewCustomers
	case r == 4:
		return SegmentPromising
	case r == 3 && f == 3:
		return SegmentNeedAttention
	case r == 3:
		return SegmentAboutToSleep
	case f >= 5:
		return SegmentCannotLoseThem
	case f >= 3:
		return SegmentAtRisk
	default:
		return SegmentHibernating
	}
}
