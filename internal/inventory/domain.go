package inventory

import (
	"errors"
	"time"
)

// MovementType enumerates inventory-affecting events.
type MovementType string

const (
	MovementSale           MovementType = "SALE"
	MovementPurchase       MovementType = "PURCHASE"
	MovementAdjustment     MovementType = "ADJUSTMENT"
	MovementSalesReturn    MovementType = "SALES_RETURN"
	MovementPurchaseReturn MovementType = "PURCHASE_RETURN"
	MovementTransferIn     MovementType = "TRANSFER_IN"
	MovementTransferOut    MovementType = "TRANSFER_OUT"
	MovementSaleAmendment  MovementType = "SALE_AMENDMENT"
)

// Balance summarises stock per (store, product). Quantities are integers in
// the product's base unit; the average cost is int64 minor units per base unit.
type Balance struct {
	StoreID          int64
	ProductID        int64
	QtyOnHandBase    int64
	AvgCostBasePence int64
	UpdatedAt        time.Time
}

// Movement is one append-only audit row per inventory-affecting event.
// QtyBase carries the sign of the change.
type Movement struct {
	ID            int64
	BusinessID    int64
	StoreID       int64
	ProductID     int64
	Type          MovementType
	QtyBase       int64
	UnitCostPence int64 // cost at time of movement
	RefModule     string
	RefID         string
	Note          string
	ActorID       int64
	PostedAt      time.Time
}

// AdjustmentInput describes a manual stock adjustment, positive or negative.
type AdjustmentInput struct {
	BusinessID    int64
	StoreID       int64
	ProductID     int64
	QtyBase       int64
	UnitCostPence int64 // required for positive adjustments
	ReasonCode    string
	Note          string
	ActorID       int64
}

// TransferInput moves stock between two stores of one business.
type TransferInput struct {
	BusinessID int64
	SrcStoreID int64
	DstStoreID int64
	ProductID  int64
	QtyBase    int64
	Note       string
	ActorID    int64
}

var (
	// ErrInsufficientStock indicates a decrement would drive on-hand negative.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInvalidQuantity indicates a zero or wrongly-signed quantity.
	ErrInvalidQuantity = errors.New("inventory: invalid quantity")
	// ErrInvalidUnitCost indicates a negative unit cost.
	ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")
	// ErrBalanceNotFound indicates a missing balance row.
	ErrBalanceNotFound = errors.New("inventory: balance not found")
)

// ResolveAvgCost returns the unit cost a decrease should consume at. It falls
// back to the product's configured default cost when no balance row exists or
// its average is non-positive, so never-purchased stock does not produce
// zero-cost COGS.
func ResolveAvgCost(bal Balance, found bool, defaultCostPence int64) int64 {
	if found && bal.AvgCostBasePence > 0 {
		return bal.AvgCostBasePence
	}
	return defaultCostPence
}
