package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseStatus is the lifecycle state of a purchase request.
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "Pending"
	PurchaseApproved  PurchaseStatus = "Approved"
	PurchaseRejected  PurchaseStatus = "Rejected"
	PurchaseCompleted PurchaseStatus = "Completed"
)

// ParsePurchaseStatus validates a status name.
func ParsePurchaseStatus(s string) (PurchaseStatus, error) {
	switch st := PurchaseStatus(s); st {
	case PurchasePending, PurchaseApproved, PurchaseRejected, PurchaseCompleted:
		return st, nil
	}
	return "", fmt.Errorf("unknown purchase request status %q", s)
}

// CanTransition reports whether the state machine allows s -> to.
// Completed is only reached through reconciliation.
func (s PurchaseStatus) CanTransition(to PurchaseStatus) bool {
	switch s {
	case PurchasePending:
		return to == PurchaseApproved || to == PurchaseRejected
	case PurchaseApproved:
		return to == PurchaseCompleted
	}
	return false
}

// IsTerminal reports whether no further transition exists.
func (s PurchaseStatus) IsTerminal() bool {
	return s == PurchaseRejected || s == PurchaseCompleted
}

// PurchaseRequest asks for ingredients to be bought.
type PurchaseRequest struct {
	ID           int64                 `json:"id"`
	Status       PurchaseStatus        `json:"status"`
	RequestedBy  int64                 `json:"requestedBy"`
	ApprovedBy   *int64                `json:"approvedBy,omitempty"`
	ApprovalDate *time.Time            `json:"approvalDate,omitempty"`
	Notes        string                `json:"notes"`
	Items        []PurchaseRequestItem `json:"items"`
	CreatedAt    time.Time             `json:"createdAt"`
	UpdatedAt    time.Time             `json:"updatedAt"`
}

// PurchaseRequestItem is one requested ingredient quantity.
type PurchaseRequestItem struct {
	ID                 int64           `json:"id"`
	RequestID          int64           `json:"requestId"`
	IngredientID       int64           `json:"ingredientId"`
	IngredientName     string          `json:"ingredientName,omitempty"`
	QuantityRequested  decimal.Decimal `json:"quantityRequested"`
	EstimatedUnitPrice decimal.Decimal `json:"estimatedUnitPrice"`
}
