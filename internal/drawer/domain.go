package drawer

import (
	"errors"
	"time"
)

// ShiftStatus is the lifecycle of a cash custody period.
type ShiftStatus string

const (
	ShiftOpen   ShiftStatus = "OPEN"
	ShiftClosed ShiftStatus = "CLOSED"
)

// EntryType tags a cash-affecting event in the drawer ledger.
type EntryType string

const (
	EntryCashSale          EntryType = "CASH_SALE"
	EntryCashRefund        EntryType = "CASH_REFUND"
	EntryCashDebtorPayment EntryType = "CASH_DEBTOR_PAYMENT"
	EntryPaidOutExpense    EntryType = "PAID_OUT_EXPENSE"
	EntryCashAdjustment    EntryType = "CASH_ADJUSTMENT"
)

// Shift tracks one till's cash from open to close. ExpectedCashPence is the
// running counter every drawer entry mutates; variance is only computed at
// close time against the counted amount.
type Shift struct {
	ID                int64
	BusinessID        int64
	StoreID           int64
	TillID            int64
	Status            ShiftStatus
	OpeningCashPence  int64
	ExpectedCashPence int64
	CountedCashPence  int64
	VariancePence     int64
	OpenedBy          int64
	ClosedBy          int64
	OpenedAt          time.Time
	ClosedAt          time.Time
}

// Entry is one append-only drawer ledger row. Before/after snapshots let the
// expected-cash counter be reconstructed from the entries alone.
type Entry struct {
	ID          int64
	ShiftID     int64
	Type        EntryType
	DeltaPence  int64
	BeforePence int64
	AfterPence  int64
	RefModule   string
	RefID       string
	Note        string
	ActorID     int64
	CreatedAt   time.Time
}

// OpenShiftInput opens a new custody period on a till.
type OpenShiftInput struct {
	BusinessID       int64
	StoreID          int64
	TillID           int64
	OpeningCashPence int64
	ActorID          int64
}

// CloseShiftInput closes the till's open shift against a physical count.
type CloseShiftInput struct {
	BusinessID       int64
	TillID           int64
	CountedCashPence int64
	ActorID          int64
}

// EntryParams describes one cash movement applied inside a caller's tx.
type EntryParams struct {
	TillID     int64
	Type       EntryType
	DeltaPence int64
	RefModule  string
	RefID      string
	Note       string
	ActorID    int64
}

var (
	// ErrShiftAlreadyOpen indicates the till already has an OPEN shift.
	ErrShiftAlreadyOpen = errors.New("drawer: shift already open for till")
	// ErrNoOpenShift indicates a cash operation with no OPEN shift on the till.
	ErrNoOpenShift = errors.New("drawer: no open shift for till")
	// ErrShiftNotFound indicates a missing shift row.
	ErrShiftNotFound = errors.New("drawer: shift not found")
	// ErrInvalidOpeningCash indicates a negative opening float.
	ErrInvalidOpeningCash = errors.New("drawer: opening cash must be >= 0")
	// ErrZeroDelta indicates a drawer entry that moves no cash.
	ErrZeroDelta = errors.New("drawer: entry delta must be non-zero")
)
