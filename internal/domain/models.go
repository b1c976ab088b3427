package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Money is encoded as JSON numbers everywhere: HTTP responses and the
	// stored sale line items alike.
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	DefaultUnit = "pcs"
	DayLayout   = "2006-01-02"
)

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "Cash"
	PaymentCard PaymentMethod = "Card"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentCash, PaymentCard:
		return true
	default:
		return false
	}
}

// ParsePaymentMethod accepts the canonical names case-insensitively.
func ParsePaymentMethod(value string) (PaymentMethod, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "cash":
		return PaymentCash, true
	case "card":
		return PaymentCard, true
	default:
		return "", false
	}
}

type Product struct {
	ID             string          `json:"_id"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	CostPrice      decimal.Decimal `json:"costPrice"`
	RetailPrice    decimal.Decimal `json:"retailPrice"`
	WholesalePrice decimal.Decimal `json:"wholesalePrice"`
	Stock          int             `json:"stock"`
	Unit           string          `json:"unit"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// CartLine is one proposed purchase line. UnitPrice is what the caller
// quoted; whether it is honored depends on the engine's price policy.
type CartLine struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

type SaleLineItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Profit    decimal.Decimal `json:"profit"`
}

type Sale struct {
	ID            string          `json:"_id"`
	Items         []SaleLineItem  `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Discount      decimal.Decimal `json:"discount"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	TotalProfit   decimal.Decimal `json:"totalProfit"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Clone returns a copy that shares no slices with s.
func (s Sale) Clone() Sale {
	out := s
	out.Items = append([]SaleLineItem(nil), s.Items...)
	return out
}

type DailySummary struct {
	Day         string          `json:"_id"`
	TotalSales  decimal.Decimal `json:"totalSales"`
	TotalProfit decimal.Decimal `json:"totalProfit"`
}

type CatalogStats struct {
	TotalProducts int `json:"totalProducts"`
	TotalStock    int `json:"totalStock"`
	LowStockCount int `json:"lowStockCount"`
}

type Dashboard struct {
	TotalProducts int             `json:"totalProducts"`
	TotalStock    int             `json:"totalStock"`
	LowStockCount int             `json:"lowStockCount"`
	TodaysSales   decimal.Decimal `json:"todaysSales"`
	TotalProfit   decimal.Decimal `json:"totalProfit"`
}

type CheckoutItemRequest struct {
	ProductID string          `json:"productId" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	Price     decimal.Decimal `json:"price"`
}

type CheckoutRequest struct {
	Items         []CheckoutItemRequest `json:"items" validate:"dive"`
	PaymentMethod string                `json:"paymentMethod"`
}

type ProductCreateRequest struct {
	Name           string           `json:"name" validate:"required"`
	Category       string           `json:"category" validate:"required"`
	CostPrice      *decimal.Decimal `json:"costPrice" validate:"required"`
	RetailPrice    *decimal.Decimal `json:"retailPrice" validate:"required"`
	WholesalePrice *decimal.Decimal `json:"wholesalePrice"`
	Stock          *int             `json:"stock" validate:"required,gte=0"`
	Unit           string           `json:"unit"`
}

type ProductUpdateRequest struct {
	Name           *string          `json:"name" validate:"omitempty,min=1"`
	Category       *string          `json:"category" validate:"omitempty,min=1"`
	CostPrice      *decimal.Decimal `json:"costPrice"`
	RetailPrice    *decimal.Decimal `json:"retailPrice"`
	WholesalePrice *decimal.Decimal `json:"wholesalePrice"`
	Stock          *int             `json:"stock" validate:"omitempty,gte=0"`
	Unit           *string          `json:"unit"`
}

// DayStart truncates t to the start of its UTC calendar day.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
