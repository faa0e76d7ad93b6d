package analytics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/vladislavdragonenkov/oda/internal/domain"
)

// Clustering строит диаграмму цена/доставка/оценка. Берутся только строки,
// где известны цена, доставка и оценка. maxPoints ограничивает число точек
// равномерной выборкой; коэффициенты корреляции считаются по всем строкам.
func Clustering(records []domain.OrderRecord, maxPoints int) domain.ClusterReport {
	price := make([]float64, 0, len(records))
	freight := make([]float64, 0, len(records))
	review := make([]float64, 0, len(records))

	type acc struct {
		n       int
		price   float64
		freight float64
	}
	groups := make(map[int]*acc)

	for i := range records {
		rec := &records[i]
		if !rec.Price.Valid || !rec.FreightValue.Valid || !rec.HasReview() {
			continue
		}
		p := rec.Price.Decimal.InexactFloat64()
		f := rec.FreightValue.Decimal.InexactFloat64()
		price = append(price, p)
		freight = append(freight, f)
		review = append(review, float64(rec.ReviewScore))

		g, ok := groups[rec.ReviewScore]
		if !ok {
			g = &acc{}
			groups[rec.ReviewScore] = g
		}
		g.n++
		g.price += p
		g.freight += f
	}

	report := domain.ClusterReport{
		Points:            samplePoints(price, freight, review, maxPoints),
		TotalPoints:       len(price),
		PriceFreightCorr:  correlation(price, freight),
		PriceReviewCorr:   correlation(price, review),
		FreightReviewCorr: correlation(freight, review),
		ByReview:          make([]domain.ReviewGroup, 0, len(groups)),
	}

	for score, g := range groups {
		report.ByReview = append(report.ByReview, domain.ReviewGroup{
			ReviewScore: score,
			Count:       g.n,
			MeanPrice:   g.price / float64(g.n),
			MeanFreight: g.freight / float64(g.n),
		})
	}
	sort.Slice(report.ByReview, func(i, j int) bool {
		return report.ByReview[i].ReviewScore < report.ByReview[j].ReviewScore
	})
	return report
}

func samplePoints(price, freight, review []float64, maxPoints int) []domain.ClusterPoint {
	n := len(price)
	step := 1
	if maxPoints > 0 && n > maxPoints {
		step = (n + maxPoints - 1) / maxPoints
	}

	points := make([]domain.ClusterPoint, 0, n/step+1)
	for i := 0; i < n; i += step {
		points = append(points, domain.ClusterPoint{
			Price:       price[i],
			Freight:     freight[i],
			ReviewScore: int(review[i]),
		})
	}
	return points
}

// correlation: коэффициент Пирсона; NaN (меньше двух точек или нулевая дисперсия) заменяется нулём.
func correlation(x, y []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	c := stat.Correlation(x, y, nil)
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0
	}
	return c
}
