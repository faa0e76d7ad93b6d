package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает статус заказа так, как он записан в датасете.
type OrderStatus string

const (
	// OrderStatusDelivered: заказ доставлен покупателю.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusShipped: заказ передан перевозчику.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusCanceled: заказ отменён.
	OrderStatusCanceled OrderStatus = "canceled"
	// OrderStatusUnavailable: товар оказался недоступен.
	OrderStatusUnavailable OrderStatus = "unavailable"
	// OrderStatusInvoiced: выставлен счёт.
	OrderStatusInvoiced OrderStatus = "invoiced"
	// OrderStatusProcessing: заказ в обработке у продавца.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusCreated: заказ создан, оплата не подтверждена.
	OrderStatusCreated OrderStatus = "created"
	// OrderStatusApproved: оплата подтверждена.
	OrderStatusApproved OrderStatus = "approved"

	// StatusAll: значение фильтра, отключающее фильтрацию по статусу.
	StatusAll OrderStatus = "ALL"
)

// OrderRecord: одна строка объединённого датасета (заказ × позиция × платёж × отзыв).
type OrderRecord struct {
	OrderID          string      `json:"order_id" validate:"required"`
	CustomerID       string      `json:"customer_id" validate:"required"`
	CustomerUniqueID string      `json:"customer_unique_id,omitempty"`
	Status           OrderStatus `json:"order_status" validate:"required"`

	PurchasedAt         time.Time `json:"order_purchase_timestamp"`
	ApprovedAt          time.Time `json:"order_approved_at"`
	DeliveredCarrierAt  time.Time `json:"order_delivered_carrier_date"`
	DeliveredCustomerAt time.Time `json:"order_delivered_customer_date"`
	EstimatedDeliveryAt time.Time `json:"order_estimated_delivery_date"`

	ProductID       string `json:"product_id,omitempty"`
	Category        string `json:"product_category_name,omitempty"`
	CategoryEnglish string `json:"product_category_name_english,omitempty"`
	QtyOrder        int    `json:"qty_order" validate:"gte=0"`

	// Price и FreightValue пустые, если у заказа нет позиций.
	Price        decimal.NullDecimal `json:"price"`
	FreightValue decimal.NullDecimal `json:"freight_value"`

	PaymentType  string          `json:"payment_type,omitempty"`
	PaymentValue decimal.Decimal `json:"payment_value"`

	// ReviewScore: 0: отзыва нет, иначе 1..5.
	ReviewScore int `json:"review_score" validate:"gte=0,lte=5"`

	CustomerCity  string `json:"customer_city,omitempty"`
	CustomerState string `json:"customer_state,omitempty"`
}

// PurchaseDate возвращает календарную дату покупки (время отброшено).
func (r *OrderRecord) PurchaseDate() time.Time {
	return truncateDay(r.PurchasedAt)
}

// HasReview сообщает, оставил ли покупатель оценку.
func (r *OrderRecord) HasReview() bool {
	return r.ReviewScore > 0
}

// ValidateInvariants проверяет построчные инварианты и возвращает список замечаний.
func (r *OrderRecord) ValidateInvariants() []error {
	var errs []error

	if r.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if r.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if r.Status == "" {
		errs = append(errs, ErrStatusRequired)
	}
	if r.PurchasedAt.IsZero() {
		errs = append(errs, ErrPurchaseTimeRequired)
	}
	if r.QtyOrder < 0 {
		errs = append(errs, ErrQtyNegative)
	}
	if r.PaymentValue.IsNegative() {
		errs = append(errs, ErrPaymentNegative)
	}
	if r.ReviewScore < 0 || r.ReviewScore > 5 {
		errs = append(errs, ErrReviewScoreInvalid)
	}

	return errs
}

func truncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
