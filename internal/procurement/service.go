package procurement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joshowusu-alt/tillflow/internal/drawer"
	"github.com/joshowusu-alt/tillflow/internal/inventory"
	"github.com/joshowusu-alt/tillflow/internal/ledger"
	"github.com/joshowusu-alt/tillflow/internal/money"
	"github.com/joshowusu-alt/tillflow/internal/shared"
)

// ReadPort serves purchase reads outside any transaction.
type ReadPort interface {
	Get(ctx context.Context, businessID, purchaseID int64) (Purchase, []Line, []PaymentRow, error)
	List(ctx context.Context, businessID, storeID int64, limit int) ([]Purchase, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates purchases and purchase returns. A purchase is the
// mirror image of a sale: stock goes up at the received cost, money goes out,
// and the unpaid remainder accrues to the supplier.
type Service struct {
	uow    UnitOfWork
	reads  ReadPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(uow UnitOfWork, reads ReadPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{uow: uow, reads: reads, audit: audit, logger: logger}
}

// Purchase receives supplier goods: stock increments recompute the weighted
// average at each line's cost, tenders leave the drawer or bank, and the
// journal carries inventory and input VAT against cash, bank and payables.
func (s *Service) Purchase(ctx context.Context, in PurchaseInput) (PurchaseResult, error) {
	if len(in.Lines) == 0 {
		return PurchaseResult{}, ErrEmptyPurchase
	}
	if in.SupplierID == 0 {
		return PurchaseResult{}, ErrSupplierRequired
	}
	var subtotal, vat int64
	for _, l := range in.Lines {
		if l.QtyBase <= 0 {
			return PurchaseResult{}, inventory.ErrInvalidQuantity
		}
		if l.UnitCostPence < 0 || l.VATPence < 0 {
			return PurchaseResult{}, inventory.ErrInvalidUnitCost
		}
		subtotal += l.QtyBase * l.UnitCostPence
		vat += l.VATPence
	}
	total := subtotal + vat

	declared := make([]money.Payment, 0, len(in.Payments))
	for _, p := range in.Payments {
		if !p.Method.Valid() || p.Method == money.MethodMobileMoney || p.AmountPence <= 0 {
			return PurchaseResult{}, ErrInvalidPayment
		}
		declared = append(declared, money.Payment{Method: p.Method, AmountPence: p.AmountPence})
	}
	split := money.SplitPayments(declared)
	if split.TotalPence > total {
		return PurchaseResult{}, money.ErrOverpaid
	}
	remainder := total - split.TotalPence

	var result PurchaseResult
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx TxSurface) error {
		var shiftID int64
		if split.CashPence > 0 {
			shift, err := tx.Drawer().GetOpenShiftForUpdate(ctx, in.BusinessID, in.TillID)
			if err != nil {
				return err
			}
			shiftID = shift.ID
		}

		p, err := tx.Purchases().CreatePurchase(ctx, Purchase{
			BusinessID:    in.BusinessID,
			StoreID:       in.StoreID,
			SupplierID:    in.SupplierID,
			ShiftID:       shiftID,
			Status:        PurchaseActive,
			SubtotalPence: subtotal,
			VATPence:      vat,
			TotalPence:    total,
			PaidPence:     split.TotalPence,
			PaymentStatus: money.DerivePaymentStatus(total, split.TotalPence),
			Note:          in.Note,
			CreatedBy:     in.ActorID,
		})
		if err != nil {
			return err
		}

		lines := make([]Line, 0, len(in.Lines))
		for _, l := range in.Lines {
			if _, err := inventory.Increase(ctx, tx.Inventory(), inventory.IncreaseParams{
				BusinessID:    in.BusinessID,
				StoreID:       in.StoreID,
				ProductID:     l.ProductID,
				QtyBase:       l.QtyBase,
				UnitCostPence: l.UnitCostPence,
				Type:          inventory.MovementPurchase,
				RefModule:     "procurement",
				RefID:         fmt.Sprintf("%d", p.ID),
				ActorID:       in.ActorID,
			}); err != nil {
				return fmt.Errorf("product %d: %w", l.ProductID, err)
			}
			line, err := tx.Purchases().CreateLine(ctx, Line{
				PurchaseID:    p.ID,
				ProductID:     l.ProductID,
				QtyBase:       l.QtyBase,
				UnitCostPence: l.UnitCostPence,
				CostPence:     l.QtyBase * l.UnitCostPence,
				VATPence:      l.VATPence,
			})
			if err != nil {
				return err
			}
			lines = append(lines, line)
		}

		for _, pay := range in.Payments {
			if _, err := tx.Purchases().CreatePayment(ctx, PaymentRow{
				PurchaseID:  p.ID,
				Method:      pay.Method,
				AmountPence: pay.AmountPence,
			}); err != nil {
				return err
			}
		}
		if split.CashPence > 0 {
			if _, err := drawer.RecordEntry(ctx, tx.Drawer(), in.BusinessID, drawer.EntryParams{
				TillID:     in.TillID,
				Type:       drawer.EntryPaidOutExpense,
				DeltaPence: -split.CashPence,
				RefModule:  "procurement",
				RefID:      fmt.Sprintf("%d", p.ID),
				ActorID:    in.ActorID,
			}); err != nil {
				return err
			}
		}

		entryLines := ledger.CompactLines([]ledger.PostingLineInput{
			ledger.Dr(ledger.AccountInventory, subtotal),
			ledger.Dr(ledger.AccountVATReceivable, vat),
			ledger.Cr(ledger.AccountCash, split.CashPence),
			ledger.Cr(ledger.AccountBank, split.BankPence),
			ledger.Cr(ledger.AccountAP, remainder),
		})
		if _, err := tx.Ledger().Post(ctx, ledger.PostingInput{
			BusinessID:    in.BusinessID,
			Description:   fmt.Sprintf("Purchase %d from supplier %d", p.ID, in.SupplierID),
			ReferenceType: "PURCHASE",
			ReferenceID:   fmt.Sprintf("%d", p.ID),
			PostedBy:      in.ActorID,
			Lines:         entryLines,
		}); err != nil {
			return err
		}

		result = PurchaseResult{Purchase: p, Lines: lines}
		return nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}

	s.recordAudit(ctx, in.BusinessID, in.ActorID, "procurement.purchase", result.Purchase.ID, map[string]any{
		"total_pence": result.Purchase.TotalPence,
		"paid_pence":  result.Purchase.PaidPence,
	})
	return result, nil
}

// Return sends a whole purchase back to the supplier: stock leaves at the
// purchase cost, the supplier refunds what was paid and payables for the
// remainder are cleared.
func (s *Service) Return(ctx context.Context, in ReturnInput) (Purchase, error) {
	var returned Purchase
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx TxSurface) error {
		p, err := tx.Purchases().GetPurchaseForUpdate(ctx, in.BusinessID, in.PurchaseID)
		if err != nil {
			return err
		}
		if p.Status != PurchaseActive {
			return ErrPurchaseTerminal
		}
		lines, err := tx.Purchases().GetLines(ctx, p.ID)
		if err != nil {
			return err
		}
		for _, l := range lines {
			if _, err := inventory.Decrease(ctx, tx.Inventory(), inventory.DecreaseParams{
				BusinessID:    in.BusinessID,
				StoreID:       p.StoreID,
				ProductID:     l.ProductID,
				QtyBase:       l.QtyBase,
				UnitCostPence: l.UnitCostPence,
				Type:          inventory.MovementPurchaseReturn,
				RefModule:     "procurement",
				RefID:         fmt.Sprintf("%d", p.ID),
				Note:          in.Note,
				ActorID:       in.ActorID,
			}); err != nil {
				return fmt.Errorf("product %d: %w", l.ProductID, err)
			}
		}

		payments, err := tx.Purchases().GetPayments(ctx, p.ID)
		if err != nil {
			return err
		}
		var cashPaid, bankPaid int64
		for _, pay := range payments {
			if pay.AmountPence <= 0 {
				continue
			}
			if pay.Method.IsCash() {
				cashPaid += pay.AmountPence
			} else {
				bankPaid += pay.AmountPence
			}
			if _, err := tx.Purchases().CreatePayment(ctx, PaymentRow{
				PurchaseID:  p.ID,
				Method:      pay.Method,
				AmountPence: -pay.AmountPence,
			}); err != nil {
				return err
			}
		}
		if cashPaid > 0 {
			if _, err := drawer.RecordEntry(ctx, tx.Drawer(), in.BusinessID, drawer.EntryParams{
				TillID:     in.TillID,
				Type:       drawer.EntryCashAdjustment,
				DeltaPence: cashPaid,
				RefModule:  "procurement",
				RefID:      fmt.Sprintf("%d", p.ID),
				Note:       "purchase return refund",
				ActorID:    in.ActorID,
			}); err != nil {
				return err
			}
		}

		remainder := p.TotalPence - p.PaidPence
		entryLines := ledger.CompactLines([]ledger.PostingLineInput{
			ledger.Dr(ledger.AccountCash, cashPaid),
			ledger.Dr(ledger.AccountBank, bankPaid),
			ledger.Dr(ledger.AccountAP, remainder),
			ledger.Cr(ledger.AccountInventory, p.SubtotalPence),
			ledger.Cr(ledger.AccountVATReceivable, p.VATPence),
		})
		if _, err := tx.Ledger().Post(ctx, ledger.PostingInput{
			BusinessID:    in.BusinessID,
			Description:   fmt.Sprintf("Return of purchase %d", p.ID),
			ReferenceType: "PURCHASE_RETURN",
			ReferenceID:   fmt.Sprintf("%d", p.ID),
			PostedBy:      in.ActorID,
			Lines:         entryLines,
		}); err != nil {
			return err
		}
		if err := tx.Purchases().UpdateStatus(ctx, p.ID, PurchaseReturned); err != nil {
			return err
		}
		p.Status = PurchaseReturned
		returned = p
		return nil
	})
	if err != nil {
		return Purchase{}, err
	}

	s.recordAudit(ctx, in.BusinessID, in.ActorID, "procurement.return", in.PurchaseID, nil)
	return returned, nil
}

// Get reads one purchase with lines and payments.
func (s *Service) Get(ctx context.Context, businessID, purchaseID int64) (Purchase, []Line, []PaymentRow, error) {
	return s.reads.Get(ctx, businessID, purchaseID)
}

// List returns recent purchases for a store.
func (s *Service) List(ctx context.Context, businessID, storeID int64, limit int) ([]Purchase, error) {
	return s.reads.List(ctx, businessID, storeID, limit)
}

func (s *Service) recordAudit(ctx context.Context, businessID, actorID int64, action string, purchaseID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		BusinessID: businessID,
		ActorID:    actorID,
		Action:     action,
		Entity:     "purchase",
		EntityID:   fmt.Sprintf("%d", purchaseID),
		Meta:       meta,
	})
}
