package web

import (
	"strconv"

	"github.com/vladislavdragonenkov/oda/internal/domain"
)

type series struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

type scatterPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	R int     `json:"review"`
}

// chartData: наборы данных для Chart.js, по одному на график страницы.
type chartData struct {
	MonthlyOrders  series         `json:"monthly_orders"`
	MonthlyRevenue series         `json:"monthly_revenue"`
	DailyOrders    series         `json:"daily_orders"`
	Best           series         `json:"best"`
	Worst          series         `json:"worst"`
	Recency        series         `json:"recency"`
	Frequency      series         `json:"frequency"`
	Monetary       series         `json:"monetary"`
	Segments       series         `json:"segments"`
	Statuses       series         `json:"statuses"`
	States         series         `json:"states"`
	Scatter        []scatterPoint `json:"scatter"`
}

func newSeries(capacity int) series {
	return series{
		Labels: make([]string, 0, capacity),
		Values: make([]float64, 0, capacity),
	}
}

func (s *series) add(label string, value float64) {
	s.Labels = append(s.Labels, label)
	s.Values = append(s.Values, value)
}

func buildCharts(report domain.Report) chartData {
	charts := chartData{
		MonthlyOrders:  newSeries(len(report.Monthly)),
		MonthlyRevenue: newSeries(len(report.Monthly)),
		DailyOrders:    newSeries(len(report.Daily)),
		Best:           newSeries(len(report.Categories.Best)),
		Worst:          newSeries(len(report.Categories.Worst)),
		Recency:        newSeries(len(report.RFM.TopRecency)),
		Frequency:      newSeries(len(report.RFM.TopFrequency)),
		Monetary:       newSeries(len(report.RFM.TopMonetary)),
		Segments:       newSeries(len(report.RFM.Segments)),
		Statuses:       newSeries(len(report.Statuses)),
		States:         newSeries(len(report.States)),
		Scatter:        make([]scatterPoint, 0, len(report.Clustering.Points)),
	}

	for _, m := range report.Monthly {
		label := m.Period.Format("2006-01")
		charts.MonthlyOrders.add(label, float64(m.Orders))
		charts.MonthlyRevenue.add(label, m.Revenue.InexactFloat64())
	}
	for _, d := range report.Daily {
		charts.DailyOrders.add(formatDate(d.Period), float64(d.Orders))
	}
	for _, c := range report.Categories.Best {
		charts.Best.add(c.Category, float64(c.Quantity))
	}
	for _, c := range report.Categories.Worst {
		charts.Worst.add(c.Category, float64(c.Quantity))
	}
	for _, c := range report.RFM.TopRecency {
		charts.Recency.add(strconv.Itoa(c.NumericID), float64(c.Recency))
	}
	for _, c := range report.RFM.TopFrequency {
		charts.Frequency.add(strconv.Itoa(c.NumericID), float64(c.Frequency))
	}
	for _, c := range report.RFM.TopMonetary {
		charts.Monetary.add(strconv.Itoa(c.NumericID), c.Monetary.InexactFloat64())
	}
	for _, seg := range report.RFM.Segments {
		charts.Segments.add(seg.Segment, float64(seg.Customers))
	}
	for _, st := range report.Statuses {
		charts.Statuses.add(string(st.Status), float64(st.Orders))
	}
	for _, st := range report.States {
		charts.States.add(st.State, st.Revenue.InexactFloat64())
	}
	for _, p := range report.Clustering.Points {
		charts.Scatter = append(charts.Scatter, scatterPoint{X: p.Price, Y: p.Freight, R: p.ReviewScore})
	}
	return charts
}
