// Package pricing computes cart totals: unit conversion, line discounts,
// buy-X-get-Y promotions, VAT and order-level discounts. Pure integer
// arithmetic on minor currency units throughout.
package pricing

import (
	"errors"
	"fmt"

	"github.com/joshowusu-alt/tillflow/internal/money"
)

var (
	ErrInvalidQuantity = errors.New("pricing: quantity must be positive")
	ErrInvalidFactor   = errors.New("pricing: unit conversion factor must be positive")
	ErrInvalidPrice    = errors.New("pricing: base price must not be negative")
)

// CartLine is one cart entry as handed over by the presentation layer,
// enriched with product facts resolved by the orchestrator.
type CartLine struct {
	ProductID      int64
	QtyInUnit      int64
	UnitFactor     int64 // base units per selling unit
	BasePricePence int64 // price per base unit

	// DiscountPercent wins over DiscountPence when both are set.
	DiscountPercent int64
	DiscountPence   int64

	VATRateBps int64

	// Promotion config ("buy X get Y free"), zero when none applies.
	PromoBuyQty int64
	PromoGetQty int64
}

// CartInput is the full pricing request.
type CartInput struct {
	Lines              []CartLine
	OrderDiscountPence int64
	VATEnabled         bool
}

// PricedLine is the computed result for one cart line.
type PricedLine struct {
	ProductID      int64
	QtyBase        int64
	UnitPricePence int64 // price per selling unit
	SubtotalPence  int64
	DiscountPence  int64
	PromoPence     int64
	NetPence       int64
	VATPence       int64
	TotalPence     int64
}

// CartResult aggregates priced lines into invoice header amounts.
type CartResult struct {
	Lines []PricedLine

	SubtotalPence      int64 // gross before any discount
	LineDiscountPence  int64
	PromoDiscountPence int64
	OrderDiscountPence int64 // after clamping to the net sum
	DiscountPence      int64 // line + promo + order
	NetPence           int64 // after all discounts, before VAT
	VATPence           int64
	TotalPence         int64
}

// PriceCart prices every line and folds the order-level discount into the
// header. An order discount reduces VAT proportionally rather than VAT being
// recomputed from scratch, so the two discount layers never double-count.
func PriceCart(in CartInput) (CartResult, error) {
	var res CartResult
	res.Lines = make([]PricedLine, 0, len(in.Lines))

	for i, line := range in.Lines {
		priced, err := priceLine(line, in.VATEnabled)
		if err != nil {
			return CartResult{}, fmt.Errorf("pricing: line %d: %w", i, err)
		}
		res.Lines = append(res.Lines, priced)
		res.SubtotalPence += priced.SubtotalPence
		res.LineDiscountPence += priced.DiscountPence
		res.PromoDiscountPence += priced.PromoPence
		res.NetPence += priced.NetPence
		res.VATPence += priced.VATPence
	}

	netBefore := res.NetPence
	orderDiscount := in.OrderDiscountPence
	if orderDiscount < 0 {
		orderDiscount = 0
	}
	if orderDiscount > netBefore {
		orderDiscount = netBefore
	}
	if orderDiscount > 0 {
		netAfter := netBefore - orderDiscount
		res.VATPence = money.ScaleProportion(res.VATPence, netAfter, netBefore)
		res.NetPence = netAfter
		res.OrderDiscountPence = orderDiscount
	}

	res.DiscountPence = res.LineDiscountPence + res.PromoDiscountPence + res.OrderDiscountPence
	res.TotalPence = res.NetPence + res.VATPence
	return res, nil
}

func priceLine(line CartLine, vatEnabled bool) (PricedLine, error) {
	if line.QtyInUnit <= 0 {
		return PricedLine{}, ErrInvalidQuantity
	}
	if line.UnitFactor <= 0 {
		return PricedLine{}, ErrInvalidFactor
	}
	if line.BasePricePence < 0 {
		return PricedLine{}, ErrInvalidPrice
	}

	unitPrice := line.BasePricePence * line.UnitFactor
	subtotal := unitPrice * line.QtyInUnit
	qtyBase := line.QtyInUnit * line.UnitFactor

	discount := lineDiscount(line, subtotal)
	promo := promoDiscount(line, qtyBase, subtotal-discount)

	net := subtotal - discount - promo
	if net < 0 {
		net = 0
	}

	var vat int64
	if vatEnabled && line.VATRateBps > 0 {
		vat = money.ApplyRateBps(net, line.VATRateBps)
	}

	return PricedLine{
		ProductID:      line.ProductID,
		QtyBase:        qtyBase,
		UnitPricePence: unitPrice,
		SubtotalPence:  subtotal,
		DiscountPence:  discount,
		PromoPence:     promo,
		NetPence:       net,
		VATPence:       vat,
		TotalPence:     net + vat,
	}, nil
}

func lineDiscount(line CartLine, subtotal int64) int64 {
	if line.DiscountPercent > 0 {
		pct := line.DiscountPercent
		if pct > 100 {
			pct = 100
		}
		return money.RoundHalfUpDiv(subtotal*pct, 100)
	}
	fixed := line.DiscountPence
	if fixed < 0 {
		fixed = 0
	}
	if fixed > subtotal {
		fixed = subtotal
	}
	return fixed
}

// promoDiscount grants every (buy+get)-th bundle its get units free. The promo
// stacks after the line discount and never exceeds the remaining line value.
func promoDiscount(line CartLine, qtyBase, remaining int64) int64 {
	if line.PromoBuyQty <= 0 || line.PromoGetQty <= 0 {
		return 0
	}
	bundle := line.PromoBuyQty + line.PromoGetQty
	freeUnits := qtyBase / bundle * line.PromoGetQty
	if freeUnits <= 0 {
		return 0
	}
	promo := freeUnits * line.BasePricePence
	if remaining < 0 {
		remaining = 0
	}
	if promo > remaining {
		promo = remaining
	}
	return promo
}
