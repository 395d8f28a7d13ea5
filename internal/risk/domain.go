package risk

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Kind labels what a detector looks for.
type Kind string

const (
	KindExcessiveDiscount Kind = "EXCESSIVE_DISCOUNT"
	KindNegativeMargin    Kind = "NEGATIVE_MARGIN"
	KindDrawerVariance    Kind = "DRAWER_VARIANCE"
)

// Alert is one detector finding. Alerts are advisory; they never block or
// unwind the transaction that triggered them.
type Alert struct {
	ID         int64
	BusinessID int64
	StoreID    int64
	Kind       Kind
	RefModule  string
	RefID      string
	Message    string
	ActorID    int64
	CreatedAt  time.Time
}

// SaleFacts is the read-only summary of a committed sale handed to detectors.
type SaleFacts struct {
	BusinessID    int64
	StoreID       int64
	InvoiceID     int64
	GrossPence    int64
	DiscountPence int64
	TotalPence    int64
	CostPence     int64
	CashierID     int64
}

var printer = message.NewPrinter(language.English)

// formatAmount renders integer minor units as a grouped decimal string for
// alert messages, e.g. 1234567 -> "12,345.67".
func formatAmount(pence int64) string {
	sign := ""
	if pence < 0 {
		sign = "-"
		pence = -pence
	}
	return printer.Sprintf("%s%d.%02d", sign, pence/100, pence%100)
}

// ExcessiveDiscount flags sales whose total discount exceeds the business's
// approval threshold expressed in basis points of gross.
func ExcessiveDiscount(thresholdBps int64) func(SaleFacts) (Alert, bool) {
	return func(f SaleFacts) (Alert, bool) {
		if thresholdBps <= 0 || f.GrossPence <= 0 || f.DiscountPence <= 0 {
			return Alert{}, false
		}
		discountBps := f.DiscountPence * 10_000 / f.GrossPence
		if discountBps <= thresholdBps {
			return Alert{}, false
		}
		return Alert{
			BusinessID: f.BusinessID,
			StoreID:    f.StoreID,
			Kind:       KindExcessiveDiscount,
			RefModule:  "sales",
			RefID:      fmt.Sprintf("%d", f.InvoiceID),
			ActorID:    f.CashierID,
			Message: printer.Sprintf("discount of %s is %d bps of gross %s (threshold %d bps)",
				formatAmount(f.DiscountPence), discountBps, formatAmount(f.GrossPence), thresholdBps),
		}, true
	}
}

// NegativeMargin flags sales priced below their weighted-average cost.
func NegativeMargin() func(SaleFacts) (Alert, bool) {
	return func(f SaleFacts) (Alert, bool) {
		if f.CostPence <= 0 || f.TotalPence >= f.CostPence {
			return Alert{}, false
		}
		return Alert{
			BusinessID: f.BusinessID,
			StoreID:    f.StoreID,
			Kind:       KindNegativeMargin,
			RefModule:  "sales",
			RefID:      fmt.Sprintf("%d", f.InvoiceID),
			ActorID:    f.CashierID,
			Message: printer.Sprintf("sold for %s against cost %s (margin %s)",
				formatAmount(f.TotalPence), formatAmount(f.CostPence), formatAmount(f.TotalPence-f.CostPence)),
		}, true
	}
}

// ShiftFacts is the read-only summary of a closed shift handed to the drawer
// variance detector.
type ShiftFacts struct {
	BusinessID    int64
	StoreID       int64
	ShiftID       int64
	TillID        int64
	VariancePence int64
	ClosedBy      int64
}

// DrawerVariance flags closed shifts whose absolute cash variance exceeds the
// business's tolerance.
func DrawerVariance(thresholdPence int64) func(ShiftFacts) (Alert, bool) {
	return func(f ShiftFacts) (Alert, bool) {
		variance := f.VariancePence
		if variance < 0 {
			variance = -variance
		}
		if thresholdPence <= 0 || variance <= thresholdPence {
			return Alert{}, false
		}
		return Alert{
			BusinessID: f.BusinessID,
			StoreID:    f.StoreID,
			Kind:       KindDrawerVariance,
			RefModule:  "drawer",
			RefID:      fmt.Sprintf("%d", f.ShiftID),
			ActorID:    f.ClosedBy,
			Message: printer.Sprintf("till %d closed with variance %s (tolerance %s)",
				f.TillID, formatAmount(f.VariancePence), formatAmount(thresholdPence)),
		}, true
	}
}
