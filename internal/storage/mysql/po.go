package mysql

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/oda/internal/domain"
)

// OrderRecordPO: строка таблицы order_records. Только маппинг, без логики.
type OrderRecordPO struct {
	RowNo               int64     `gorm:"primaryKey;autoIncrement:false"`
	OrderID             string    `gorm:"size:64;not null"`
	CustomerID          string    `gorm:"size:64;not null"`
	CustomerUniqueID    string    `gorm:"size:64;not null;default:''"`
	OrderStatus         string    `gorm:"size:20;not null;index"`
	PurchasedAt         time.Time `gorm:"not null;index"`
	ApprovedAt          *time.Time
	DeliveredCarrierAt  *time.Time
	DeliveredCustomerAt *time.Time
	EstimatedDeliveryAt *time.Time
	ProductID           string              `gorm:"size:64;not null;default:''"`
	Category            string              `gorm:"size:128;not null;default:''"`
	CategoryEnglish     string              `gorm:"size:128;not null;default:''"`
	QtyOrder            int                 `gorm:"not null;default:0"`
	Price               decimal.NullDecimal `gorm:"type:decimal(12,2)"`
	FreightValue        decimal.NullDecimal `gorm:"type:decimal(12,2)"`
	PaymentType         string              `gorm:"size:32;not null;default:''"`
	PaymentValue        decimal.Decimal     `gorm:"type:decimal(12,2);not null"`
	ReviewScore         int                 `gorm:"not null;default:0"`
	CustomerCity        string              `gorm:"size:128;not null;default:''"`
	CustomerState       string              `gorm:"size:2;not null;default:''"`
}

// TableName задаёт имя таблицы.
func (OrderRecordPO) TableName() string {
	return "order_records"
}

// FromDomain переводит запись датасета в PO; rowNo сохраняет порядок загрузки.
func FromDomain(rowNo int64, r *domain.OrderRecord) OrderRecordPO {
	return OrderRecordPO{
		RowNo:               rowNo,
		OrderID:             r.OrderID,
		CustomerID:          r.CustomerID,
		CustomerUniqueID:    r.CustomerUniqueID,
		OrderStatus:         string(r.Status),
		PurchasedAt:         r.PurchasedAt.UTC(),
		ApprovedAt:          timePtr(r.ApprovedAt),
		DeliveredCarrierAt:  timePtr(r.DeliveredCarrierAt),
		DeliveredCustomerAt: timePtr(r.DeliveredCustomerAt),
		EstimatedDeliveryAt: timePtr(r.EstimatedDeliveryAt),
		ProductID:           r.ProductID,
		Category:            r.Category,
		CategoryEnglish:     r.CategoryEnglish,
		QtyOrder:            r.QtyOrder,
		Price:               r.Price,
		FreightValue:        r.FreightValue,
		PaymentType:         r.PaymentType,
		PaymentValue:        r.PaymentValue,
		ReviewScore:         r.ReviewScore,
		CustomerCity:        r.CustomerCity,
		CustomerState:       r.CustomerState,
	}
}

// ToDomain восстанавливает запись датасета.
func (p *OrderRecordPO) ToDomain() domain.OrderRecord {
	return domain.OrderRecord{
		OrderID:             p.OrderID,
		CustomerID:          p.CustomerID,
		CustomerUniqueID:    p.CustomerUniqueID,
		Status:              domain.OrderStatus(p.OrderStatus),
		PurchasedAt:         p.PurchasedAt.UTC(),
		ApprovedAt:          timeValue(p.ApprovedAt),
		DeliveredCarrierAt:  timeValue(p.DeliveredCarrierAt),
		DeliveredCustomerAt: timeValue(p.DeliveredCustomerAt),
		EstimatedDeliveryAt: timeValue(p.EstimatedDeliveryAt),
		ProductID:           p.ProductID,
		Category:            p.Category,
		CategoryEnglish:     p.CategoryEnglish,
		QtyOrder:            p.QtyOrder,
		Price:               p.Price,
		FreightValue:        p.FreightValue,
		PaymentType:         p.PaymentType,
		PaymentValue:        p.PaymentValue,
		ReviewScore:         p.ReviewScore,
		CustomerCity:        p.CustomerCity,
		CustomerState:       p.CustomerState,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func timeValue(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
