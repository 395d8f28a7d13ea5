package sales

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshowusu-alt/tillflow/internal/drawer"
	"github.com/joshowusu-alt/tillflow/internal/inventory"
	"github.com/joshowusu-alt/tillflow/internal/ledger"
	"github.com/joshowusu-alt/tillflow/internal/masterdata/businesses"
	"github.com/joshowusu-alt/tillflow/internal/masterdata/products"
	"github.com/joshowusu-alt/tillflow/internal/momo"
	"github.com/joshowusu-alt/tillflow/internal/money"
	"github.com/joshowusu-alt/tillflow/internal/risk"
	"github.com/joshowusu-alt/tillflow/internal/shared"
)

// --- in-memory transactional surface ---

type stockKey struct{ storeID, productID int64 }

type memStock struct {
	balances  map[stockKey]inventory.Balance
	movements []inventory.Movement
}

func (m *memStock) GetBalanceForUpdate(_ context.Context, storeID, productID int64) (inventory.Balance, error) {
	bal, ok := m.balances[stockKey{storeID, productID}]
	if !ok {
		return inventory.Balance{StoreID: storeID, ProductID: productID}, inventory.ErrBalanceNotFound
	}
	return bal, nil
}

func (m *memStock) UpsertBalance(_ context.Context, bal inventory.Balance) error {
	m.balances[stockKey{bal.StoreID, bal.ProductID}] = bal
	return nil
}

func (m *memStock) Decrement(_ context.Context, storeID, productID, qtyBase int64) (inventory.Balance, error) {
	key := stockKey{storeID, productID}
	bal, ok := m.balances[key]
	if !ok || bal.QtyOnHandBase < qtyBase {
		return inventory.Balance{}, inventory.ErrInsufficientStock
	}
	bal.QtyOnHandBase -= qtyBase
	m.balances[key] = bal
	return bal, nil
}

func (m *memStock) InsertMovement(_ context.Context, mov inventory.Movement) (int64, error) {
	mov.ID = int64(len(m.movements) + 1)
	m.movements = append(m.movements, mov)
	return mov.ID, nil
}

func (m *memStock) Balance(_ context.Context, storeID, productID int64) (inventory.Balance, error) {
	bal, ok := m.balances[stockKey{storeID, productID}]
	if !ok {
		return inventory.Balance{}, inventory.ErrBalanceNotFound
	}
	return bal, nil
}

type memDrawer struct {
	open    bool
	shift   drawer.Shift
	entries []drawer.Entry
}

func (m *memDrawer) GetOpenShiftForUpdate(_ context.Context, businessID, tillID int64) (drawer.Shift, error) {
	if !m.open || m.shift.TillID != tillID {
		return drawer.Shift{}, drawer.ErrNoOpenShift
	}
	return m.shift, nil
}

func (m *memDrawer) UpdateExpectedCash(_ context.Context, shiftID, expectedPence int64) error {
	if !m.open || m.shift.ID != shiftID {
		return drawer.ErrNoOpenShift
	}
	m.shift.ExpectedCashPence = expectedPence
	return nil
}

func (m *memDrawer) InsertEntry(_ context.Context, e drawer.Entry) (int64, error) {
	e.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, e)
	return e.ID, nil
}

func (m *memDrawer) CloseShift(_ context.Context, shiftID, countedPence, variancePence, actorID int64) (drawer.Shift, error) {
	m.open = false
	return m.shift, nil
}

type memJournal struct {
	entries []ledger.JournalEntry
}

func (m *memJournal) Post(_ context.Context, in ledger.PostingInput) (ledger.JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return ledger.JournalEntry{}, err
	}
	entry := ledger.JournalEntry{
		ID:            int64(len(m.entries) + 1),
		BusinessID:    in.BusinessID,
		Description:   in.Description,
		ReferenceType: in.ReferenceType,
		ReferenceID:   in.ReferenceID,
		PostedBy:      in.PostedBy,
	}
	for _, l := range in.Lines {
		entry.Lines = append(entry.Lines, ledger.JournalLine{
			AccountCode: l.AccountCode,
			DebitPence:  l.DebitPence,
			CreditPence: l.CreditPence,
		})
	}
	m.entries = append(m.entries, entry)
	return entry, nil
}

func (m *memJournal) GetWithLines(_ context.Context, _, _ int64) (ledger.JournalEntry, error) {
	return ledger.JournalEntry{}, nil
}

func (m *memJournal) GetByReference(_ context.Context, _ int64, _, _ string) (ledger.JournalEntry, error) {
	return ledger.JournalEntry{}, nil
}

func (m *memJournal) leg(t *testing.T, entryIdx int, account string) (debit, credit int64) {
	t.Helper()
	require.Greater(t, len(m.entries), entryIdx, "journal entry missing")
	for _, l := range m.entries[entryIdx].Lines {
		if l.AccountCode == account {
			return l.DebitPence, l.CreditPence
		}
	}
	return 0, 0
}

type memCollections struct {
	collections map[int64]momo.Collection
}

func (m *memCollections) Attach(_ context.Context, businessID, collectionID, invoiceID, amountPence int64) error {
	c, ok := m.collections[collectionID]
	if !ok || c.BusinessID != businessID || c.Status != momo.StatusConfirmed ||
		c.InvoiceID != 0 || c.AmountPence != amountPence {
		return momo.ErrCollectionNotUsable
	}
	c.InvoiceID = invoiceID
	m.collections[collectionID] = c
	return nil
}

func (m *memCollections) Get(_ context.Context, businessID, collectionID int64) (momo.Collection, error) {
	c, ok := m.collections[collectionID]
	if !ok || c.BusinessID != businessID {
		return momo.Collection{}, momo.ErrCollectionNotFound
	}
	return c, nil
}

type memInvoices struct {
	invoices map[int64]Invoice
	lines    map[int64][]Line
	payments map[int64][]PaymentRow
	nextID   int64
}

func newMemInvoices() *memInvoices {
	return &memInvoices{
		invoices: make(map[int64]Invoice),
		lines:    make(map[int64][]Line),
		payments: make(map[int64][]PaymentRow),
	}
}

func (m *memInvoices) CreateInvoice(_ context.Context, inv Invoice) (Invoice, error) {
	m.nextID++
	inv.ID = m.nextID
	m.invoices[inv.ID] = inv
	return inv, nil
}

func (m *memInvoices) CreateLine(_ context.Context, line Line) (Line, error) {
	m.nextID++
	line.ID = m.nextID
	m.lines[line.InvoiceID] = append(m.lines[line.InvoiceID], line)
	return line, nil
}

func (m *memInvoices) CreatePayment(_ context.Context, p PaymentRow) (PaymentRow, error) {
	m.nextID++
	p.ID = m.nextID
	m.payments[p.InvoiceID] = append(m.payments[p.InvoiceID], p)
	return p, nil
}

func (m *memInvoices) GetInvoiceForUpdate(_ context.Context, businessID, invoiceID int64) (Invoice, error) {
	inv, ok := m.invoices[invoiceID]
	if !ok || inv.BusinessID != businessID {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, nil
}

func (m *memInvoices) GetLines(_ context.Context, invoiceID int64) ([]Line, error) {
	return m.lines[invoiceID], nil
}

func (m *memInvoices) GetPayments(_ context.Context, invoiceID int64) ([]PaymentRow, error) {
	return m.payments[invoiceID], nil
}

func (m *memInvoices) UpdateCost(_ context.Context, invoiceID, costPence int64) error {
	inv := m.invoices[invoiceID]
	inv.CostPence = costPence
	m.invoices[invoiceID] = inv
	return nil
}

func (m *memInvoices) UpdateStatus(_ context.Context, invoiceID int64, status InvoiceStatus) error {
	inv := m.invoices[invoiceID]
	inv.Status = status
	m.invoices[invoiceID] = inv
	return nil
}

func (m *memInvoices) UpdatePaid(_ context.Context, invoiceID, paidPence int64, status money.PaymentStatus) error {
	inv := m.invoices[invoiceID]
	inv.PaidPence = paidPence
	inv.PaymentStatus = status
	m.invoices[invoiceID] = inv
	return nil
}

func (m *memInvoices) UpdateAmendedTotals(_ context.Context, in Invoice) error {
	inv := m.invoices[in.ID]
	inv.SubtotalPence = in.SubtotalPence
	inv.DiscountPence = in.DiscountPence
	inv.OrderDiscountPence = 0
	inv.VATPence = in.VATPence
	inv.TotalPence = in.TotalPence
	inv.PaidPence = in.PaidPence
	inv.CostPence = in.CostPence
	inv.PaymentStatus = in.PaymentStatus
	m.invoices[in.ID] = inv
	return nil
}

func (m *memInvoices) DeleteLines(_ context.Context, invoiceID int64, lineIDs []int64) error {
	drop := make(map[int64]bool, len(lineIDs))
	for _, id := range lineIDs {
		drop[id] = true
	}
	kept := m.lines[invoiceID][:0]
	for _, l := range m.lines[invoiceID] {
		if !drop[l.ID] {
			kept = append(kept, l)
		}
	}
	m.lines[invoiceID] = kept
	return nil
}

type memSurface struct {
	invoices    *memInvoices
	stock       *memStock
	till        *memDrawer
	journal     *memJournal
	collections *memCollections
}

func (s *memSurface) Invoices() InvoiceTxRepository     { return s.invoices }
func (s *memSurface) Inventory() inventory.TxRepository { return s.stock }
func (s *memSurface) Drawer() drawer.TxRepository       { return s.till }
func (s *memSurface) Ledger() ledger.TxRepository       { return s.journal }
func (s *memSurface) Collections() momo.TxRepository    { return s.collections }

type memUoW struct {
	surface *memSurface
}

func (u *memUoW) WithTx(ctx context.Context, fn func(context.Context, TxSurface) error) error {
	return fn(ctx, u.surface)
}

// --- stubs ---

type stubProducts struct {
	catalog map[int64]products.Product
	units   map[string]int64 // "productID:unit" -> factor
}

func (s *stubProducts) GetMany(_ context.Context, _ int64, ids []int64) (map[int64]products.Product, error) {
	out := make(map[int64]products.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.catalog[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *stubProducts) GetUnit(_ context.Context, productID int64, unitName string) (products.Unit, error) {
	factor, ok := s.units[unitKey(productID, unitName)]
	if !ok {
		return products.Unit{}, products.ErrUnknownUnit
	}
	return products.Unit{ProductID: productID, Name: unitName, Factor: factor}, nil
}

func unitKey(productID int64, unit string) string {
	return fmt.Sprintf("%d:%s", productID, unit)
}

type stubSettings struct {
	cfg businesses.Settings
}

func (s *stubSettings) GetSettings(_ context.Context, _ int64) (businesses.Settings, error) {
	return s.cfg, nil
}

type stubApprovals struct {
	pins    map[int64]string
	records []shared.ApprovalLog
}

func (s *stubApprovals) VerifyManagerPIN(_ context.Context, _, approverID int64, pin string) error {
	if approverID == 0 || pin == "" {
		return shared.ErrApprovalRequired
	}
	if s.pins[approverID] != pin {
		return shared.ErrBadApproverPIN
	}
	return nil
}

func (s *stubApprovals) Record(_ context.Context, log shared.ApprovalLog) error {
	s.records = append(s.records, log)
	return nil
}

type stubReasons struct {
	codes map[string]bool
}

func (s *stubReasons) IsRecognised(_ context.Context, _ int64, code string) (bool, error) {
	return s.codes[code], nil
}

type spyRisk struct {
	facts []risk.SaleFacts
}

func (s *spyRisk) ObserveSale(_ context.Context, f risk.SaleFacts) {
	s.facts = append(s.facts, f)
}

type memAudit struct {
	logs []shared.AuditLog
}

func (m *memAudit) Record(_ context.Context, log shared.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

// --- fixture ---

type fixture struct {
	svc         *Service
	invoices    *memInvoices
	stock       *memStock
	till        *memDrawer
	journal     *memJournal
	collections *memCollections
	approvals   *stubApprovals
	risk        *spyRisk
	audit       *memAudit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stock := &memStock{balances: map[stockKey]inventory.Balance{
		{1, 1}: {StoreID: 1, ProductID: 1, QtyOnHandBase: 100, AvgCostBasePence: 300},
		{1, 2}: {StoreID: 1, ProductID: 2, QtyOnHandBase: 50, AvgCostBasePence: 600},
	}}
	f := &fixture{
		invoices: newMemInvoices(),
		stock:    stock,
		till: &memDrawer{open: true, shift: drawer.Shift{
			ID: 11, BusinessID: 1, TillID: 3, Status: drawer.ShiftOpen,
			OpeningCashPence: 5000, ExpectedCashPence: 5000,
		}},
		journal:     &memJournal{},
		collections: &memCollections{collections: make(map[int64]momo.Collection)},
		approvals:   &stubApprovals{pins: map[int64]string{9: "4321"}},
		risk:        &spyRisk{},
		audit:       &memAudit{},
	}
	surface := &memSurface{
		invoices:    f.invoices,
		stock:       f.stock,
		till:        f.till,
		journal:     f.journal,
		collections: f.collections,
	}
	f.svc = NewService(Deps{
		UoW: &memUoW{surface: surface},
		Products: &stubProducts{catalog: map[int64]products.Product{
			1: {ID: 1, BaseUnit: "each", BasePricePence: 500, DefaultCostPence: 300},
			2: {ID: 2, BaseUnit: "each", BasePricePence: 1000, DefaultCostPence: 600},
		}},
		Settings:  &stubSettings{cfg: businesses.Settings{DiscountApprovalBps: 1000}},
		Stock:     stock,
		Approvals: f.approvals,
		Reasons:   &stubReasons{codes: map[string]bool{"MANAGER_PROMO": true}},
		Risk:      f.risk,
		Audit:     f.audit,
	})
	return f
}

func cashSaleInput(lines []LineInput, cashPence int64) SaleInput {
	return SaleInput{
		BusinessID: 1, StoreID: 1, TillID: 3, CashierID: 5,
		Lines:    lines,
		Payments: []PaymentInput{{Method: money.MethodCash, AmountPence: cashPence}},
	}
}

// --- sale ---

func TestSaleCashHappyPath(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Sale(context.Background(), cashSaleInput(
		[]LineInput{{ProductID: 1, QtyInUnit: 2}}, 1000))
	require.NoError(t, err)

	require.Equal(t, int64(1000), res.Invoice.TotalPence)
	require.Equal(t, int64(1000), res.Invoice.PaidPence)
	require.Equal(t, money.StatusPaid, res.Invoice.PaymentStatus)
	require.Equal(t, int64(600), res.Invoice.CostPence)
	require.Equal(t, int64(11), res.Invoice.ShiftID)
	require.Zero(t, res.ChangePence)
	require.Len(t, res.Lines, 1)
	require.Equal(t, int64(300), res.Lines[0].UnitCostPence)

	// Stock consumed and the movement references the invoice.
	require.Equal(t, int64(98), f.stock.balances[stockKey{1, 1}].QtyOnHandBase)
	require.Len(t, f.stock.movements, 1)
	require.Equal(t, inventory.MovementSale, f.stock.movements[0].Type)
	require.Equal(t, int64(-2), f.stock.movements[0].QtyBase)

	// Cash landed in the drawer.
	require.Len(t, f.till.entries, 1)
	require.Equal(t, drawer.EntryCashSale, f.till.entries[0].Type)
	require.Equal(t, int64(1000), f.till.entries[0].DeltaPence)
	require.Equal(t, int64(6000), f.till.shift.ExpectedCashPence)

	// Journal: cash against revenue, COGS against inventory.
	dr, _ := f.journal.leg(t, 0, ledger.AccountCash)
	require.Equal(t, int64(1000), dr)
	_, cr := f.journal.leg(t, 0, ledger.AccountSales)
	require.Equal(t, int64(1000), cr)
	dr, _ = f.journal.leg(t, 0, ledger.AccountCOGS)
	require.Equal(t, int64(600), dr)
	_, cr = f.journal.leg(t, 0, ledger.AccountInventory)
	require.Equal(t, int64(600), cr)

	require.Len(t, f.risk.facts, 1)
	require.Equal(t, res.Invoice.ID, f.risk.facts[0].InvoiceID)
}

func TestSaleClawsBackChangeFromCash(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Sale(context.Background(), cashSaleInput(
		[]LineInput{{ProductID: 1, QtyInUnit: 2}}, 1500))
	require.NoError(t, err)

	require.Equal(t, int64(500), res.ChangePence)
	require.Equal(t, int64(1000), res.Invoice.PaidPence)

	payments := f.invoices.payments[res.Invoice.ID]
	require.Len(t, payments, 1)
	require.Equal(t, int64(1000), payments[0].AmountPence)
	require.Equal(t, int64(1000), f.till.entries[0].DeltaPence)
}

func TestSaleAggregatesRepeatedProduct(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Sale(context.Background(), cashSaleInput([]LineInput{
		{ProductID: 1, QtyInUnit: 2},
		{ProductID: 1, QtyInUnit: 3},
	}, 2500))
	require.NoError(t, err)

	require.Len(t, res.Lines, 2)
	// One decrement, one movement for the combined quantity.
	require.Len(t, f.stock.movements, 1)
	require.Equal(t, int64(-5), f.stock.movements[0].QtyBase)
	require.Equal(t, int64(95), f.stock.balances[stockKey{1, 1}].QtyOnHandBase)
}

func TestSaleCreditRemainder(t *testing.T) {
	f := newFixture(t)

	in := cashSaleInput([]LineInput{{ProductID: 1, QtyInUnit: 2}}, 400)
	_, err := f.svc.Sale(context.Background(), in)
	require.ErrorIs(t, err, ErrCustomerRequired)

	in.CustomerID = 42
	res, err := f.svc.Sale(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, money.StatusPartPaid, res.Invoice.PaymentStatus)
	require.Equal(t, int64(400), res.Invoice.PaidPence)

	dr, _ := f.journal.leg(t, 0, ledger.AccountAR)
	require.Equal(t, int64(600), dr)
}

func TestSaleInsufficientStockFailsBeforeWriting(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Sale(context.Background(), cashSaleInput(
		[]LineInput{{ProductID: 1, QtyInUnit: 200}}, 100000))
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.Empty(t, f.invoices.invoices)
	require.Empty(t, f.stock.movements)
}

func TestSaleEmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Sale(context.Background(), cashSaleInput(nil, 100))
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestSaleDiscountApprovalGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 15% off against a 10% threshold.
	in := cashSaleInput([]LineInput{{ProductID: 1, QtyInUnit: 20}}, 8500)
	in.OrderDiscountPence = 1500

	_, err := f.svc.Sale(ctx, in)
	require.ErrorIs(t, err, shared.ErrApprovalRequired)

	in.ApproverID = 9
	in.ApproverPIN = "wrong"
	_, err = f.svc.Sale(ctx, in)
	require.ErrorIs(t, err, shared.ErrBadApproverPIN)

	in.ApproverPIN = "4321"
	in.ReasonCode = "NOT_A_REASON"
	_, err = f.svc.Sale(ctx, in)
	require.ErrorIs(t, err, shared.ErrUnknownReasonCode)

	in.ReasonCode = "MANAGER_PROMO"
	res, err := f.svc.Sale(ctx, in)
	require.NoError(t, err)
	require.Equal(t, int64(8500), res.Invoice.TotalPence)

	require.Len(t, f.approvals.records, 1)
	require.Equal(t, "sales", f.approvals.records[0].Module)
	require.Equal(t, int64(9), f.approvals.records[0].ActorID)
}

func TestSaleDiscountAtThresholdNeedsNoApproval(t *testing.T) {
	f := newFixture(t)

	// Exactly 10% off with a 10% threshold.
	in := cashSaleInput([]LineInput{{ProductID: 1, QtyInUnit: 20}}, 9000)
	in.OrderDiscountPence = 1000
	_, err := f.svc.Sale(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, f.approvals.records)
}

func TestSaleMobileMoneyAttachesCollection(t *testing.T) {
	f := newFixture(t)
	f.collections.collections[77] = momo.Collection{
		ID: 77, BusinessID: 1, Status: momo.StatusConfirmed, AmountPence: 1000,
	}

	in := SaleInput{
		BusinessID: 1, StoreID: 1, TillID: 3, CashierID: 5,
		Lines:    []LineInput{{ProductID: 1, QtyInUnit: 2}},
		Payments: []PaymentInput{{Method: money.MethodMobileMoney, AmountPence: 1000, CollectionID: 77}},
	}
	res, err := f.svc.Sale(context.Background(), in)
	require.NoError(t, err)

	require.Equal(t, res.Invoice.ID, f.collections.collections[77].InvoiceID)
	dr, _ := f.journal.leg(t, 0, ledger.AccountBank)
	require.Equal(t, int64(1000), dr)
	// No cash moved, no shift involvement.
	require.Empty(t, f.till.entries)
	require.Zero(t, res.Invoice.ShiftID)
}

func TestSaleMobileMoneyWithoutCollection(t *testing.T) {
	f := newFixture(t)
	in := SaleInput{
		BusinessID: 1, StoreID: 1, TillID: 3, CashierID: 5,
		Lines:    []LineInput{{ProductID: 1, QtyInUnit: 2}},
		Payments: []PaymentInput{{Method: money.MethodMobileMoney, AmountPence: 1000}},
	}
	_, err := f.svc.Sale(context.Background(), in)
	require.ErrorIs(t, err, ErrCollectionRequired)
}

func TestSalePendingCollectionRejected(t *testing.T) {
	f := newFixture(t)
	f.collections.collections[77] = momo.Collection{
		ID: 77, BusinessID: 1, Status: momo.StatusPending, AmountPence: 1000,
	}
	in := SaleInput{
		BusinessID: 1, StoreID: 1, TillID: 3, CashierID: 5,
		Lines:    []LineInput{{ProductID: 1, QtyInUnit: 2}},
		Payments: []PaymentInput{{Method: money.MethodMobileMoney, AmountPence: 1000, CollectionID: 77}},
	}
	_, err := f.svc.Sale(context.Background(), in)
	require.ErrorIs(t, err, momo.ErrCollectionNotUsable)
}

func TestSaleCashRequiresOpenShift(t *testing.T) {
	f := newFixture(t)
	f.till.open = false

	_, err := f.svc.Sale(context.Background(), cashSaleInput(
		[]LineInput{{ProductID: 1, QtyInUnit: 2}}, 1000))
	require.ErrorIs(t, err, drawer.ErrNoOpenShift)
}

func TestSaleCardWorksWithClosedDrawer(t *testing.T) {
	f := newFixture(t)
	f.till.open = false

	in := SaleInput{
		BusinessID: 1, StoreID: 1, TillID: 3, CashierID: 5,
		Lines:    []LineInput{{ProductID: 1, QtyInUnit: 2}},
		Payments: []PaymentInput{{Method: money.MethodCard, AmountPence: 1000}},
	}
	res, err := f.svc.Sale(context.Background(), in)
	require.NoError(t, err)
	require.Zero(t, res.Invoice.ShiftID)
}

// --- return / void ---

func sellForTest(t *testing.T, f *fixture, in SaleInput) SaleResult {
	t.Helper()
	res, err := f.svc.Sale(context.Background(), in)
	require.NoError(t, err)
	return res
}

func TestReturnRefundsExactlyPaid(t *testing.T) {
	f := newFixture(t)
	sold := sellForTest(t, f, cashSaleInput([]LineInput{{ProductID: 1, QtyInUnit: 2}}, 1000))

	inv, err := f.svc.ReturnOrVoid(context.Background(), ReturnInput{
		BusinessID: 1, InvoiceID: sold.Invoice.ID, Kind: KindReturn, TillID: 3, ActorID: 5,
	})
	require.NoError(t, err)
	require.Equal(t, InvoiceReturned, inv.Status)

	// Stock restored at sale-time cost.
	require.Equal(t, int64(100), f.stock.balances[stockKey{1, 1}].QtyOnHandBase)
	last := f.stock.movements[len(f.stock.movements)-1]
	require.Equal(t, inventory.MovementSalesReturn, last.Type)
	require.Equal(t, int64(2), last.QtyBase)

	// Cash back out of the drawer.
	refundEntry := f.till.entries[len(f.till.entries)-1]
	require.Equal(t, drawer.EntryCashRefund, refundEntry.Type)
	require.Equal(t, int64(-1000), refundEntry.DeltaPence)
	require.Equal(t, int64(5000), f.till.shift.ExpectedCashPence)

	// Negative payment row mirrors the tender.
	payments := f.invoices.payments[sold.Invoice.ID]
	require.Equal(t, int64(-1000), payments[len(payments)-1].AmountPence)

	// Reversal entry.
	dr, _ := f.journal.leg(t, 1, ledger.AccountSales)
	require.Equal(t, int64(1000), dr)
	_, cr := f.journal.leg(t, 1, ledger.AccountCash)
	require.Equal(t, int64(1000), cr)
	dr, _ = f.journal.leg(t, 1, ledger.AccountInventory)
	require.Equal(t, int64(600), dr)
	_, cr = f.journal.leg(t, 1, ledger.AccountCOGS)
	require.Equal(t, int64(600), cr)
}

func TestReturnPartPaidCreditsRemainder(t *testing.T) {
	f := newFixture(t)
	in := cashSaleInput([]LineInput{{ProductID: 1, QtyInUnit: 2}}, 400)
	in.CustomerID = 42
	sold := sellForTest(t, f, in)

	_, err := f.svc.ReturnOrVoid(context.Background(), ReturnInput{
		BusinessID: 1, InvoiceID: sold.Invoice.ID, Kind: KindReturn, TillID: 3, ActorID: 5,
	})
	require.NoError(t, err)

	// Cash refund covers only what was paid; the credit remainder reverses AR.
	_, cr := f.journal.leg(t, 1, ledger.AccountCash)
	require.Equal(t, int64(400), cr)
	_, cr = f.journal.leg(t, 1, ledger.AccountAR)
	require.Equal(t, int64(600), cr)
}

func TestVoidRequiresUnpaidInvoice(t *testing.T) {
	f := newFixture(t)
	sold := sellForTest(t, f, cashSaleInput([]LineInput{{ProductID: 1, QtyInUnit: 2}}, 1000))

	_, err := f.svc.ReturnOrVoid(context.Background(), ReturnInput{
		BusinessID: 1, InvoiceID: sold.Invoice.ID, Kind: KindVoid, TillID: 3, ActorID: 5,
		ApproverID: 9, ApproverPIN: "4321",
	})
	require.ErrorIs(t, err, ErrVoidPaidInvoice)
}

func TestVoidUnpaidCreditInvoice(t *testing.T) {
	f := newFixture(t)
	in := SaleInput{
		BusinessID: 1, StoreID: 1, TillID: 3, CashierID: 5, CustomerID: 42,
		Lines: []LineInput{{ProductID: 1, QtyInUnit: 2}},
	}
	sold := sellForTest(t, f, in)

	inv, err := f.svc.ReturnOrVoid(context.Background(), ReturnInput{
		BusinessID: 1, InvoiceID: sold.Invoice.ID, Kind: KindVoid, TillID: 3, ActorID: 5,
		ApproverID: 9, ApproverPIN: "4321",
	})
	require.NoError(t, err)
	require.Equal(t, InvoiceVoid, inv.Status)

	// Reverses revenue against the receivable, no cash anywhere.
	dr, _ := f.journal.leg(t, 1, ledger.AccountSales)
	require.Equal(t, int64(1000), dr)
	_, cr := f.journal.leg(t, 1, ledger.AccountAR)
	require.Equal(t, int64(1000), cr)
	require.Empty(t, f.till.entries)
}

func TestVoidNeedsManagerPIN(t *testing.T) {
	f := newFixture(t)
	in := SaleInput{
		BusinessID: 1, StoreID: 1, TillID: 3, CashierID: 5, CustomerID: 42,
		Lines: []LineInput{{ProductID: 1, QtyInUnit: 2}},
	}
	sold := sellForTest(t, f, in)

	_, err := f.svc.ReturnOrVoid(context.Background(), ReturnInput{
		BusinessID: 1, InvoiceID: sold.Invoice.ID, Kind: KindVoid, TillID: 3, ActorID: 5,
		ApproverID: 9, ApproverPIN: "nope",
	})
	require.ErrorIs(t, err, shared.ErrBadApproverPIN)
}

func TestReturnTerminalInvoiceRejected(t *testing.T) {
	f := newFixture(t)
	sold := sellForTest(t, f, cashSaleInput([]LineInput{{ProductID: 1, QtyInUnit: 2}}, 1000))
	ctx := context.Background()

	_, err := f.svc.ReturnOrVoid(ctx, ReturnInput{
		BusinessID: 1, InvoiceID: sold.Invoice.ID, Kind: KindReturn, TillID: 3, ActorID: 5,
	})
	require.NoError(t, err)

	_, err = f.svc.ReturnOrVoid(ctx, ReturnInput{
		BusinessID: 1, InvoiceID: sold.Invoice.ID, Kind: KindReturn, TillID: 3, ActorID: 5,
	})
	require.ErrorIs(t, err, ErrInvoiceTerminal)
}

// --- amendment ---

func TestAmendRefundsRemovedLines(t *testing.T) {
	f := newFixture(t)
	sold := sellForTest(t, f, cashSaleInput([]LineInput{
		{ProductID: 1, QtyInUnit: 2}, // 1000
		{ProductID: 2, QtyInUnit: 1}, // 1000
	}, 2000))

	res, err := f.svc.Amend(context.Background(), AmendInput{
		BusinessID: 1, InvoiceID: sold.Invoice.ID,
		RemoveLineIDs: []int64{sold.Lines[1].ID},
		TillID:        3, ActorID: 5,
	})
	require.NoError(t, err)

	require.Equal(t, int64(1000), res.RefundPence)
	require.Zero(t, res.BalanceDuePence)
	require.Equal(t, int64(1000), res.Invoice.TotalPence)
	require.Equal(t, int64(1000), res.Invoice.PaidPence)
	require.Equal(t, money.StatusPaid, res.Invoice.PaymentStatus)
	require.Equal(t, int64(600), res.Invoice.CostPence)

	// Removed line's stock restored, kept line untouched.
	require.Equal(t, int64(50), f.stock.balances[stockKey{1, 2}].QtyOnHandBase)
	require.Equal(t, int64(98), f.stock.balances[stockKey{1, 1}].QtyOnHandBase)
	last := f.stock.movements[len(f.stock.movements)-1]
	require.Equal(t, inventory.MovementSaleAmendment, last.Type)

	require.Len(t, f.invoices.lines[sold.Invoice.ID], 1)

	// Offset entry: revenue down, cash refunded, inventory restored.
	dr, _ := f.journal.leg(t, 1, ledger.AccountSales)
	require.Equal(t, int64(1000), dr)
	_, cr := f.journal.leg(t, 1, ledger.AccountCash)
	require.Equal(t, int64(1000), cr)
	dr, _ = f.journal.leg(t, 1, ledger.AccountInventory)
	require.Equal(t, int64(600), dr)

	refundEntry := f.till.entries[len(f.till.entries)-1]
	require.Equal(t, drawer.EntryCashRefund, refundEntry.Type)
	require.Equal(t, int64(-1000), refundEntry.DeltaPence)
}

func TestAmendUnpaidCreditReducesReceivable(t *testing.T) {
	f := newFixture(t)
	in := SaleInput{
		BusinessID: 1, StoreID: 1, TillID: 3, CashierID: 5, CustomerID: 42,
		Lines: []LineInput{
			{ProductID: 1, QtyInUnit: 2},
			{ProductID: 2, QtyInUnit: 1},
		},
	}
	sold := sellForTest(t, f, in)

	res, err := f.svc.Amend(context.Background(), AmendInput{
		BusinessID: 1, InvoiceID: sold.Invoice.ID,
		RemoveLineIDs: []int64{sold.Lines[1].ID},
		TillID:        3, ActorID: 5,
	})
	require.NoError(t, err)

	require.Zero(t, res.RefundPence)
	require.Equal(t, int64(1000), res.BalanceDuePence)
	_, cr := f.journal.leg(t, 1, ledger.AccountAR)
	require.Equal(t, int64(1000), cr)
	require.Empty(t, f.till.entries)
}

func TestAmendClearsOrderDiscount(t *testing.T) {
	f := newFixture(t)
	in := cashSaleInput([]LineInput{
		{ProductID: 1, QtyInUnit: 2}, // 1000
		{ProductID: 2, QtyInUnit: 1}, // 1000
	}, 1800)
	in.OrderDiscountPence = 200
	sold := sellForTest(t, f, in)
	require.Equal(t, int64(1800), sold.Invoice.TotalPence)

	res, err := f.svc.Amend(context.Background(), AmendInput{
		BusinessID: 1, InvoiceID: sold.Invoice.ID,
		RemoveLineIDs: []int64{sold.Lines[1].ID},
		TillID:        3, ActorID: 5,
	})
	require.NoError(t, err)

	// Kept line reverts to its undiscounted total.
	require.Zero(t, res.Invoice.OrderDiscountPence)
	require.Equal(t, int64(1000), res.Invoice.TotalPence)
	require.Equal(t, int64(800), res.RefundPence)
}

func TestAmendGuards(t *testing.T) {
	f := newFixture(t)
	sold := sellForTest(t, f, cashSaleInput([]LineInput{
		{ProductID: 1, QtyInUnit: 2},
		{ProductID: 2, QtyInUnit: 1},
	}, 2000))
	ctx := context.Background()

	_, err := f.svc.Amend(ctx, AmendInput{BusinessID: 1, InvoiceID: sold.Invoice.ID, TillID: 3, ActorID: 5})
	require.ErrorIs(t, err, ErrNothingToRemove)

	_, err = f.svc.Amend(ctx, AmendInput{
		BusinessID: 1, InvoiceID: sold.Invoice.ID,
		RemoveLineIDs: []int64{99999}, TillID: 3, ActorID: 5,
	})
	require.ErrorIs(t, err, ErrUnknownLine)

	_, err = f.svc.Amend(ctx, AmendInput{
		BusinessID: 1, InvoiceID: sold.Invoice.ID,
		RemoveLineIDs: []int64{sold.Lines[0].ID, sold.Lines[1].ID},
		TillID:        3, ActorID: 5,
	})
	require.ErrorIs(t, err, ErrAmendmentEmptiesInvoice)
}

// --- debtor payment ---

func TestDebtorPaymentLifecycle(t *testing.T) {
	f := newFixture(t)
	in := SaleInput{
		BusinessID: 1, StoreID: 1, TillID: 3, CashierID: 5, CustomerID: 42,
		Lines: []LineInput{{ProductID: 1, QtyInUnit: 2}},
	}
	sold := sellForTest(t, f, in)
	ctx := context.Background()

	inv, err := f.svc.RecordDebtorPayment(ctx, DebtorPaymentInput{
		BusinessID: 1, InvoiceID: sold.Invoice.ID, TillID: 3,
		Method: money.MethodCash, AmountPence: 400, ActorID: 5,
	})
	require.NoError(t, err)
	require.Equal(t, money.StatusPartPaid, inv.PaymentStatus)
	require.Equal(t, int64(400), inv.PaidPence)

	entry := f.till.entries[len(f.till.entries)-1]
	require.Equal(t, drawer.EntryCashDebtorPayment, entry.Type)
	require.Equal(t, int64(400), entry.DeltaPence)

	dr, _ := f.journal.leg(t, 1, ledger.AccountCash)
	require.Equal(t, int64(400), dr)
	_, cr := f.journal.leg(t, 1, ledger.AccountAR)
	require.Equal(t, int64(400), cr)

	// Overpaying the remainder is rejected.
	_, err = f.svc.RecordDebtorPayment(ctx, DebtorPaymentInput{
		BusinessID: 1, InvoiceID: sold.Invoice.ID, TillID: 3,
		Method: money.MethodCash, AmountPence: 700, ActorID: 5,
	})
	require.ErrorIs(t, err, money.ErrOverpaid)

	inv, err = f.svc.RecordDebtorPayment(ctx, DebtorPaymentInput{
		BusinessID: 1, InvoiceID: sold.Invoice.ID, TillID: 3,
		Method: money.MethodTransfer, AmountPence: 600, ActorID: 5,
	})
	require.NoError(t, err)
	require.Equal(t, money.StatusPaid, inv.PaymentStatus)

	_, err = f.svc.RecordDebtorPayment(ctx, DebtorPaymentInput{
		BusinessID: 1, InvoiceID: sold.Invoice.ID, TillID: 3,
		Method: money.MethodCash, AmountPence: 100, ActorID: 5,
	})
	require.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestDebtorPaymentRejectsMobileMoney(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RecordDebtorPayment(context.Background(), DebtorPaymentInput{
		BusinessID: 1, InvoiceID: 1, TillID: 3,
		Method: money.MethodMobileMoney, AmountPence: 100, ActorID: 5,
	})
	require.ErrorIs(t, err, ErrInvalidPayment)
}
