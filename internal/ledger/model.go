// Package ledger owns the double-entry journal. Entries are append-only and
// every posted entry balances: corrections are made with offsetting entries,
// never edits.
package ledger

import "time"

// Account codes used by the commerce orchestrators. The chart of accounts is
// fixed; there is no editor surface.
const (
	AccountCash          = "1000"
	AccountBank          = "1010"
	AccountAR            = "1100"
	AccountInventory     = "1200"
	AccountVATReceivable = "1300"
	AccountAP            = "2000"
	AccountVATPayable    = "2100"
	AccountSales         = "4000"
	AccountInventoryGain = "4100"
	AccountCOGS          = "5000"
	AccountShrinkage     = "5100"
	AccountExpense       = "5300"
)

// JournalEntry captures posting metadata. Lines must sum to zero
// (debits == credits) per business.
type JournalEntry struct {
	ID            int64
	BusinessID    int64
	Description   string
	ReferenceType string
	ReferenceID   string
	PostedBy      int64
	PostedAt      time.Time
	Lines         []JournalLine
}

// JournalLine stores a debit or credit amount for an account, in minor units.
type JournalLine struct {
	ID          int64
	JournalID   int64
	AccountCode string
	DebitPence  int64
	CreditPence int64
	CreatedAt   time.Time
}
