package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего статуса заказа.
	ErrStatusRequired = errors.New("order_status is required")
	// Ошибка отсутствующего времени покупки.
	ErrPurchaseTimeRequired = errors.New("order_purchase_timestamp is required")
	// Ошибка отрицательного количества товара.
	ErrQtyNegative = errors.New("qty_order must be non-negative")
	// Ошибка отрицательной суммы платежа.
	ErrPaymentNegative = errors.New("payment_value must be non-negative")
	// Ошибка оценки вне диапазона 0..5; 0 означает отсутствие отзыва.
	ErrReviewScoreInvalid = errors.New("review_score must be within 0..5")

	// ErrMissingColumn: в CSV нет обязательной колонки.
	ErrMissingColumn = errors.New("required column is missing")
	// ErrMalformedRow: строку CSV не удалось разобрать.
	ErrMalformedRow = errors.New("malformed row")
	// ErrDatasetEmpty: в хранилище нет ни одной записи.
	ErrDatasetEmpty = errors.New("dataset is empty")

	// ErrInvalidDateRange: начало периода позже конца.
	ErrInvalidDateRange = errors.New("start date is after end date")
	// ErrUnknownStatus: статус фильтра отсутствует в датасете.
	ErrUnknownStatus = errors.New("unknown order status")
)

// IsInvalidFilter сообщает, что ошибка вызвана некорректными параметрами фильтра.
func IsInvalidFilter(err error) bool {
	return errors.Is(err, ErrInvalidDateRange) || errors.Is(err, ErrUnknownStatus)
}
