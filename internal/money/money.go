// Package money holds the pure money and quantity helpers shared by the
// commerce orchestrators. Everything operates on int64 minor currency units
// ("pence") and integer base-unit quantities; no floating point.
package money

import "errors"

// Method enumerates supported payment tenders. The set is closed: drawer
// accounting only distinguishes cash from bank-like tenders.
type Method string

const (
	MethodCash        Method = "CASH"
	MethodCard        Method = "CARD"
	MethodTransfer    Method = "TRANSFER"
	MethodMobileMoney Method = "MOBILE_MONEY"
)

// Valid reports whether the method is one of the recognised tenders.
func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodTransfer, MethodMobileMoney:
		return true
	}
	return false
}

// IsCash reports whether the tender lands in the physical drawer.
func (m Method) IsCash() bool {
	return m == MethodCash
}

// PaymentStatus describes how much of an invoice has been settled.
type PaymentStatus string

const (
	StatusUnpaid   PaymentStatus = "UNPAID"
	StatusPartPaid PaymentStatus = "PART_PAID"
	StatusPaid     PaymentStatus = "PAID"
)

// Payment is one declared tender on a transaction.
type Payment struct {
	Method      Method
	AmountPence int64
	// CollectionID links a MOBILE_MONEY tender to its settlement record.
	CollectionID int64
}

// Split buckets declared payments by drawer relevance.
type Split struct {
	CashPence  int64
	BankPence  int64
	TotalPence int64
}

// ErrOverpaid indicates declared non-cash payments exceed the amount due.
var ErrOverpaid = errors.New("money: payments exceed amount due")

// FilterPayments drops zero and negative tenders and tenders with unknown
// methods. Callers validate methods upfront; this keeps aggregation total.
func FilterPayments(payments []Payment) []Payment {
	out := make([]Payment, 0, len(payments))
	for _, p := range payments {
		if p.AmountPence <= 0 || !p.Method.Valid() {
			continue
		}
		out = append(out, p)
	}
	return out
}

// SplitPayments buckets tenders into cash vs bank. Card, transfer and mobile
// money all settle outside the drawer and count as bank.
func SplitPayments(payments []Payment) Split {
	var s Split
	for _, p := range FilterPayments(payments) {
		if p.Method.IsCash() {
			s.CashPence += p.AmountPence
		} else {
			s.BankPence += p.AmountPence
		}
		s.TotalPence += p.AmountPence
	}
	return s
}

// DerivePaymentStatus is total-ordered in the paid amount:
// UNPAID < PART_PAID < PAID.
func DerivePaymentStatus(totalPence, paidPence int64) PaymentStatus {
	switch {
	case paidPence <= 0:
		return StatusUnpaid
	case paidPence >= totalPence:
		return StatusPaid
	default:
		return StatusPartPaid
	}
}

// ClawbackChange reconciles declared tenders against the amount due. Excess is
// clawed back from the cash tender first, on the assumption it is handed back
// as change. Overpayment that cash cannot absorb is rejected: card and
// transfer tenders cannot be partially returned programmatically.
func ClawbackChange(duePence int64, s Split) (Split, int64, error) {
	if s.TotalPence <= duePence {
		return s, 0, nil
	}
	excess := s.TotalPence - duePence
	if excess > s.CashPence {
		return Split{}, 0, ErrOverpaid
	}
	s.CashPence -= excess
	s.TotalPence -= excess
	return s, excess, nil
}

// RoundHalfUpDiv divides num by den rounding half up. Negative numerators
// round half away from zero, so reversing a posting yields the exact negation.
// den must be positive.
func RoundHalfUpDiv(num, den int64) int64 {
	if den <= 0 {
		return 0
	}
	if num < 0 {
		return -RoundHalfUpDiv(-num, den)
	}
	return (num*2 + den) / (den * 2)
}

// ApplyRateBps applies a basis-point rate with half-up rounding.
func ApplyRateBps(amountPence, rateBps int64) int64 {
	return RoundHalfUpDiv(amountPence*rateBps, 10000)
}

// ScaleProportion rescales amount by num/den with half-up rounding. Used to
// re-proportion VAT after an order-level discount.
func ScaleProportion(amountPence, num, den int64) int64 {
	if den == 0 {
		return 0
	}
	return RoundHalfUpDiv(amountPence*num, den)
}

// WeightedAverage returns the new moving-average unit cost after receiving
// incomingQty units at incomingCostPence. Zero resulting quantity resets the
// average to zero.
func WeightedAverage(existingQty, existingAvgPence, incomingQty, incomingCostPence int64) int64 {
	newQty := existingQty + incomingQty
	if newQty <= 0 {
		return 0
	}
	total := existingQty*existingAvgPence + incomingQty*incomingCostPence
	return RoundHalfUpDiv(total, newQty)
}

// LineQty carries a product's base-unit quantity for aggregation.
type LineQty struct {
	ProductID int64
	QtyBase   int64
}

// AggregateLineQuantities sums base-unit quantities per product, so a cart
// that mentions the same product on several lines is checked and decremented
// once per product.
func AggregateLineQuantities(lines []LineQty) map[int64]int64 {
	out := make(map[int64]int64, len(lines))
	for _, l := range lines {
		out[l.ProductID] += l.QtyBase
	}
	return out
}
