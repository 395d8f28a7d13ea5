package sales

import (
	"errors"
	"time"

	"github.com/joshowusu-alt/tillflow/internal/money"
)

// InvoiceStatus is the invoice lifecycle. RETURNED and VOID are terminal and
// block any further amendment, return or payment.
type InvoiceStatus string

const (
	InvoiceActive   InvoiceStatus = "ACTIVE"
	InvoiceReturned InvoiceStatus = "RETURNED"
	InvoiceVoid     InvoiceStatus = "VOID"
)

// Invoice is a sales invoice header. All amounts are int64 minor units.
// SubtotalPence is gross before any discount; DiscountPence folds line, promo
// and order-level discounts together; CostPence is the weighted-average cost
// of goods at sale time.
type Invoice struct {
	ID                 int64
	BusinessID         int64
	StoreID            int64
	TillID             int64
	ShiftID            int64 // 0 when no cash was involved
	CustomerID         int64 // 0 for walk-in
	Status             InvoiceStatus
	SubtotalPence      int64
	DiscountPence      int64
	OrderDiscountPence int64
	VATPence           int64
	TotalPence         int64
	PaidPence          int64
	CostPence          int64
	PaymentStatus      money.PaymentStatus
	CashierID          int64
	Note               string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Line is one invoice line. UnitCostPence records the weighted-average cost
// consumed at sale time so returns and amendments restore stock at the cost
// it left at, not today's average.
type Line struct {
	ID             int64
	InvoiceID      int64
	ProductID      int64
	UnitName       string
	QtyInUnit      int64
	UnitFactor     int64
	QtyBase        int64
	UnitPricePence int64
	SubtotalPence  int64
	DiscountPence  int64
	PromoPence     int64
	NetPence       int64
	VATPence       int64
	TotalPence     int64
	UnitCostPence  int64
}

// PaymentRow is one tender or refund on an invoice. Refunds carry negative
// amounts.
type PaymentRow struct {
	ID           int64
	InvoiceID    int64
	Method       money.Method
	AmountPence  int64
	CollectionID int64
	CreatedAt    time.Time
}

// LineInput is one cart line as submitted by the till.
type LineInput struct {
	ProductID       int64  `json:"product_id" validate:"required,gt=0"`
	UnitName        string `json:"unit_name" validate:"max=32"`
	QtyInUnit       int64  `json:"qty" validate:"required,gt=0"`
	DiscountPercent int64  `json:"discount_percent" validate:"gte=0,lte=100"`
	DiscountPence   int64  `json:"discount_pence" validate:"gte=0"`
}

// PaymentInput is one declared tender.
type PaymentInput struct {
	Method       money.Method `json:"method" validate:"required"`
	AmountPence  int64        `json:"amount_pence" validate:"required,gt=0"`
	CollectionID int64        `json:"collection_id"`
}

// SaleInput is the full sale request.
type SaleInput struct {
	BusinessID         int64
	StoreID            int64
	TillID             int64
	CashierID          int64
	CustomerID         int64
	Lines              []LineInput
	Payments           []PaymentInput
	OrderDiscountPence int64
	ApproverID         int64
	ApproverPIN        string
	ReasonCode         string
	Note               string
}

// SaleResult reports the committed sale back to the till.
type SaleResult struct {
	Invoice     Invoice
	Lines       []Line
	ChangePence int64
}

// ReturnKind selects between the two cancellation flavours.
type ReturnKind string

const (
	KindReturn ReturnKind = "RETURN"
	KindVoid   ReturnKind = "VOID"
)

// ReturnInput cancels a whole invoice.
type ReturnInput struct {
	BusinessID  int64
	InvoiceID   int64
	Kind        ReturnKind
	TillID      int64 // till whose drawer takes the cash refund
	ActorID     int64
	ApproverID  int64
	ApproverPIN string
	ReasonCode  string
	Note        string
}

// AmendInput removes a strict proper subset of lines from an invoice.
type AmendInput struct {
	BusinessID    int64
	InvoiceID     int64
	RemoveLineIDs []int64
	TillID        int64
	ActorID       int64
	Note          string
}

// AmendResult reports the recomputed invoice and any cash refund. At most one
// of RefundPence and BalanceDuePence is non-zero.
type AmendResult struct {
	Invoice         Invoice
	RefundPence     int64
	BalanceDuePence int64
}

// DebtorPaymentInput settles part of a PART_PAID or UNPAID invoice later.
type DebtorPaymentInput struct {
	BusinessID  int64
	InvoiceID   int64
	TillID      int64
	Method      money.Method
	AmountPence int64
	ActorID     int64
}

var (
	// ErrInvoiceNotFound indicates an unknown invoice.
	ErrInvoiceNotFound = errors.New("sales: invoice not found")
	// ErrInvoiceTerminal indicates the invoice was already returned or voided.
	ErrInvoiceTerminal = errors.New("sales: invoice already returned or voided")
	// ErrEmptyCart indicates a sale with no lines.
	ErrEmptyCart = errors.New("sales: cart has no lines")
	// ErrInvalidPayment indicates a tender with an unknown method or bad amount.
	ErrInvalidPayment = errors.New("sales: invalid payment")
	// ErrCustomerRequired indicates a credit remainder with no customer to owe it.
	ErrCustomerRequired = errors.New("sales: customer required for credit sale")
	// ErrCollectionRequired indicates a mobile-money tender with no collection.
	ErrCollectionRequired = errors.New("sales: mobile money payment requires a collection id")
	// ErrVoidPaidInvoice indicates a VOID on an invoice holding payments.
	ErrVoidPaidInvoice = errors.New("sales: void requires an unpaid invoice, use return")
	// ErrAmendmentEmptiesInvoice indicates an amendment removing every line.
	ErrAmendmentEmptiesInvoice = errors.New("sales: amendment would remove all lines, use return")
	// ErrUnknownLine indicates an amendment naming a line not on the invoice.
	ErrUnknownLine = errors.New("sales: line not on invoice")
	// ErrNothingToRemove indicates an amendment naming no lines.
	ErrNothingToRemove = errors.New("sales: no lines to remove")
	// ErrAlreadyPaid indicates a debtor payment against a settled invoice.
	ErrAlreadyPaid = errors.New("sales: invoice already fully paid")
)
