package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStats: карточки «всего заказов» и «выручка».
type OrderStats struct {
	TotalOrders  int             `json:"total_orders"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

// PeriodOrders: агрегат по дню или месяцу покупки.
type PeriodOrders struct {
	// Period: начало дня или первый день месяца.
	Period  time.Time       `json:"period"`
	Orders  int             `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

// CategorySales: суммарное количество заказанных единиц по категории.
type CategorySales struct {
	Category string `json:"category"`
	Quantity int    `json:"quantity"`
}

// CategoryPerformance: лучшие и худшие категории по количеству.
type CategoryPerformance struct {
	Best  []CategorySales `json:"best"`
	Worst []CategorySales `json:"worst"`
}

// CustomerRFM: показатели Recency/Frequency/Monetary одного клиента.
type CustomerRFM struct {
	CustomerID string `json:"customer_id"`
	// NumericID: порядковый номер клиента (с 1) в отсортированном списке идентификаторов.
	NumericID int             `json:"numeric_id"`
	Recency   int             `json:"recency"`
	Frequency int             `json:"frequency"`
	Monetary  decimal.Decimal `json:"monetary"`
	RScore    int             `json:"r_score"`
	FScore    int             `json:"f_score"`
	MScore    int             `json:"m_score"`
	Segment   string          `json:"segment"`
}

// SegmentCount: количество клиентов в RFM-сегменте.
type SegmentCount struct {
	Segment   string `json:"segment"`
	Customers int    `json:"customers"`
}

// RFMReport: итог RFM-анализа.
type RFMReport struct {
	Reference    time.Time      `json:"reference"`
	Customers    int            `json:"customers"`
	TopRecency   []CustomerRFM  `json:"top_recency"`
	TopFrequency []CustomerRFM  `json:"top_frequency"`
	TopMonetary  []CustomerRFM  `json:"top_monetary"`
	Segments     []SegmentCount `json:"segments"`
}

// StatusCount: число строк с данным статусом.
type StatusCount struct {
	Status OrderStatus `json:"status"`
	Orders int         `json:"orders"`
}

// StateSales: сумма платежей по штату покупателя.
type StateSales struct {
	State   string          `json:"state"`
	Revenue decimal.Decimal `json:"revenue"`
}

// ClusterPoint: точка диаграммы цена/доставка/оценка.
type ClusterPoint struct {
	Price       float64 `json:"price"`
	Freight     float64 `json:"freight"`
	ReviewScore int     `json:"review_score"`
}

// ReviewGroup: средние цена и доставка для одной оценки.
type ReviewGroup struct {
	ReviewScore int     `json:"review_score"`
	Count       int     `json:"count"`
	MeanPrice   float64 `json:"mean_price"`
	MeanFreight float64 `json:"mean_freight"`
}

// ClusterReport: разведочный анализ связи цены, доставки и оценки.
type ClusterReport struct {
	Points      []ClusterPoint `json:"points"`
	TotalPoints int            `json:"total_points"`
	// Коэффициенты Пирсона; 0, если посчитать нельзя (меньше двух точек или нулевая дисперсия).
	PriceFreightCorr  float64       `json:"price_freight_corr"`
	PriceReviewCorr   float64       `json:"price_review_corr"`
	FreightReviewCorr float64       `json:"freight_review_corr"`
	ByReview          []ReviewGroup `json:"by_review"`
}

// Report: полный набор агрегатов для одной выборки.
type Report struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Start       time.Time           `json:"start"`
	End         time.Time           `json:"end"`
	Status      OrderStatus         `json:"status"`
	Rows        int                 `json:"rows"`
	Stats       OrderStats          `json:"stats"`
	Monthly     []PeriodOrders      `json:"monthly"`
	Daily       []PeriodOrders      `json:"daily"`
	Categories  CategoryPerformance `json:"categories"`
	RFM         RFMReport           `json:"rfm"`
	Statuses    []StatusCount       `json:"statuses"`
	States      []StateSales        `json:"states"`
	Clustering  ClusterReport       `json:"clustering"`
}
