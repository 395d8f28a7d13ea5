package procurement

import (
	"errors"
	"time"

	"github.com/joshowusu-alt/tillflow/internal/money"
)

// PurchaseStatus is the supplier invoice lifecycle. RETURNED is terminal.
type PurchaseStatus string

const (
	PurchaseActive   PurchaseStatus = "ACTIVE"
	PurchaseReturned PurchaseStatus = "RETURNED"
)

// Purchase is a supplier invoice header. SubtotalPence is the goods cost,
// VATPence the reclaimable input VAT, and the unpaid remainder sits in
// accounts payable.
type Purchase struct {
	ID            int64
	BusinessID    int64
	StoreID       int64
	SupplierID    int64
	ShiftID       int64 // 0 when no cash was paid out
	Status        PurchaseStatus
	SubtotalPence int64
	VATPence      int64
	TotalPence    int64
	PaidPence     int64
	PaymentStatus money.PaymentStatus
	Note          string
	CreatedBy     int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Line is one received product at its negotiated unit cost.
type Line struct {
	ID            int64
	PurchaseID    int64
	ProductID     int64
	QtyBase       int64
	UnitCostPence int64
	CostPence     int64 // qty * unit cost
	VATPence      int64
}

// PaymentRow is one tender paid to (positive) or refunded by (negative) the
// supplier.
type PaymentRow struct {
	ID          int64
	PurchaseID  int64
	Method      money.Method
	AmountPence int64
	CreatedAt   time.Time
}

// LineInput is one received line as submitted.
type LineInput struct {
	ProductID     int64 `json:"product_id" validate:"required,gt=0"`
	QtyBase       int64 `json:"qty_base" validate:"required,gt=0"`
	UnitCostPence int64 `json:"unit_cost_pence" validate:"gte=0"`
	VATPence      int64 `json:"vat_pence" validate:"gte=0"`
}

// PaymentInput is one declared tender to the supplier.
type PaymentInput struct {
	Method      money.Method `json:"method" validate:"required"`
	AmountPence int64        `json:"amount_pence" validate:"required,gt=0"`
}

// PurchaseInput is the full goods-receipt request.
type PurchaseInput struct {
	BusinessID int64
	StoreID    int64
	SupplierID int64
	TillID     int64
	ActorID    int64
	Lines      []LineInput
	Payments   []PaymentInput
	Note       string
}

// PurchaseResult reports the committed purchase.
type PurchaseResult struct {
	Purchase Purchase
	Lines    []Line
}

// ReturnInput sends a whole purchase back to the supplier.
type ReturnInput struct {
	BusinessID int64
	PurchaseID int64
	TillID     int64
	ActorID    int64
	Note       string
}

var (
	// ErrPurchaseNotFound indicates an unknown purchase.
	ErrPurchaseNotFound = errors.New("procurement: purchase not found")
	// ErrPurchaseTerminal indicates the purchase was already returned.
	ErrPurchaseTerminal = errors.New("procurement: purchase already returned")
	// ErrEmptyPurchase indicates a purchase with no lines.
	ErrEmptyPurchase = errors.New("procurement: purchase has no lines")
	// ErrSupplierRequired indicates a purchase without a supplier.
	ErrSupplierRequired = errors.New("procurement: supplier required")
	// ErrInvalidPayment indicates a tender with an unknown method or bad amount.
	ErrInvalidPayment = errors.New("procurement: invalid payment")
)
