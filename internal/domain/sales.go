package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale is one completed transaction at the till.
type Sale struct {
	ID            int64           `json:"id"`
	SaleDate      time.Time       `json:"saleDate"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	PaymentMethod string          `json:"paymentMethod"`
	CashierID     int64           `json:"cashierId"`
	Items         []SaleItem      `json:"items"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// SaleItem is a sold quantity of one product. CostPrice is the product's
// cost at the time of sale and does not follow later recipe changes.
type SaleItem struct {
	ID          int64           `json:"id"`
	SaleID      int64           `json:"saleId"`
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	CostPrice   decimal.Decimal `json:"costPrice"`
}

// LineTotal is quantity times unit price.
func (i SaleItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Overstock is unsold product carried over to the next trading day.
type Overstock struct {
	ID            int64      `json:"id"`
	ProductID     int64      `json:"productId"`
	ProductName   string     `json:"productName,omitempty"`
	Quantity      int        `json:"quantity"`
	OverstockDate time.Time  `json:"overstockDate"`
	RolledOver    bool       `json:"rolledOver"`
	RolledOverAt  *time.Time `json:"rolledOverAt,omitempty"`
	Notes         string     `json:"notes"`
}

// Defect records product written off as damaged or spoiled.
type Defect struct {
	ID          int64     `json:"id"`
	ProductID   int64     `json:"productId"`
	ProductName string    `json:"productName,omitempty"`
	Quantity    int       `json:"quantity"`
	Reason      string    `json:"reason"`
	RecordedBy  int64     `json:"recordedBy"`
	DefectDate  time.Time `json:"defectDate"`
}

// Restock records freshly baked product added to the shelf.
type Restock struct {
	ID          int64     `json:"id"`
	ProductID   int64     `json:"productId"`
	ProductName string    `json:"productName,omitempty"`
	Quantity    int       `json:"quantity"`
	Notes       string    `json:"notes"`
	RecordedBy  int64     `json:"recordedBy"`
	RestockDate time.Time `json:"restockDate"`
}

// DateRange bounds a listing or report. Zero bounds are open.
type DateRange struct {
	From time.Time
	To   time.Time
}
