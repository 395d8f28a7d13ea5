package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joshowusu-alt/tillflow/internal/drawer"
	"github.com/joshowusu-alt/tillflow/internal/inventory"
	"github.com/joshowusu-alt/tillflow/internal/ledger"
	"github.com/joshowusu-alt/tillflow/internal/masterdata/businesses"
	"github.com/joshowusu-alt/tillflow/internal/masterdata/products"
	"github.com/joshowusu-alt/tillflow/internal/money"
	"github.com/joshowusu-alt/tillflow/internal/pricing"
	"github.com/joshowusu-alt/tillflow/internal/risk"
	"github.com/joshowusu-alt/tillflow/internal/shared"
)

// ReadPort serves invoice reads outside any transaction.
type ReadPort interface {
	Get(ctx context.Context, businessID, invoiceID int64) (Invoice, []Line, []PaymentRow, error)
	List(ctx context.Context, businessID, storeID int64, limit int) ([]Invoice, error)
}

// ProductPort resolves catalogue facts for pricing and costing.
type ProductPort interface {
	GetMany(ctx context.Context, businessID int64, productIDs []int64) (map[int64]products.Product, error)
	GetUnit(ctx context.Context, productID int64, unitName string) (products.Unit, error)
}

// SettingsPort resolves per-business commerce settings.
type SettingsPort interface {
	GetSettings(ctx context.Context, businessID int64) (businesses.Settings, error)
}

// StockPort reads balances for the pre-transaction stock check.
type StockPort interface {
	Balance(ctx context.Context, storeID, productID int64) (inventory.Balance, error)
}

// ApprovalPort verifies manager identity and records sign-offs.
type ApprovalPort interface {
	VerifyManagerPIN(ctx context.Context, businessID, approverID int64, pin string) error
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// ReasonPort validates override reason codes.
type ReasonPort interface {
	IsRecognised(ctx context.Context, businessID int64, code string) (bool, error)
}

// RiskPort observes committed sales. Failures inside it never propagate.
type RiskPort interface {
	ObserveSale(ctx context.Context, facts risk.SaleFacts)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Deps bundles the collaborators the orchestrator needs.
type Deps struct {
	UoW       UnitOfWork
	Reads     ReadPort
	Products  ProductPort
	Settings  SettingsPort
	Stock     StockPort
	Approvals ApprovalPort
	Reasons   ReasonPort
	Risk      RiskPort
	Audit     AuditPort
	Logger    *slog.Logger
}

// Service orchestrates sales, returns, amendments and debtor payments. Every
// mutating operation runs inside one transaction spanning invoice, inventory,
// drawer, journal and collection writes.
type Service struct {
	uow       UnitOfWork
	reads     ReadPort
	products  ProductPort
	settings  SettingsPort
	stock     StockPort
	approvals ApprovalPort
	reasons   ReasonPort
	risk      RiskPort
	audit     AuditPort
	logger    *slog.Logger
}

// NewService builds Service.
func NewService(d Deps) *Service {
	return &Service{
		uow:       d.UoW,
		reads:     d.Reads,
		products:  d.Products,
		settings:  d.Settings,
		stock:     d.Stock,
		approvals: d.Approvals,
		reasons:   d.Reasons,
		risk:      d.Risk,
		audit:     d.Audit,
		logger:    d.Logger,
	}
}

// Sale runs the whole sale flow: price, pre-check stock, gate the discount,
// then commit invoice, lines, payments, collection attach, drawer entry,
// stock decrements and the journal entry atomically. Risk detectors run after
// commit and cannot unwind it.
func (s *Service) Sale(ctx context.Context, in SaleInput) (SaleResult, error) {
	if len(in.Lines) == 0 {
		return SaleResult{}, ErrEmptyCart
	}
	for _, p := range in.Payments {
		if !p.Method.Valid() || p.AmountPence <= 0 {
			return SaleResult{}, ErrInvalidPayment
		}
		if p.Method == money.MethodMobileMoney && p.CollectionID == 0 {
			return SaleResult{}, ErrCollectionRequired
		}
	}

	cfg, err := s.settings.GetSettings(ctx, in.BusinessID)
	if err != nil {
		return SaleResult{}, err
	}
	catalog, cartLines, err := s.resolveCart(ctx, in)
	if err != nil {
		return SaleResult{}, err
	}
	priced, err := pricing.PriceCart(pricing.CartInput{
		Lines:              cartLines,
		OrderDiscountPence: in.OrderDiscountPence,
		VATEnabled:         cfg.VATEnabled,
	})
	if err != nil {
		return SaleResult{}, err
	}

	approved, err := s.gateDiscount(ctx, in, cfg, priced)
	if err != nil {
		return SaleResult{}, err
	}

	declared := make([]money.Payment, 0, len(in.Payments))
	for _, p := range in.Payments {
		declared = append(declared, money.Payment{Method: p.Method, AmountPence: p.AmountPence, CollectionID: p.CollectionID})
	}
	split := money.SplitPayments(declared)
	split, change, err := money.ClawbackChange(priced.TotalPence, split)
	if err != nil {
		return SaleResult{}, err
	}
	remainder := priced.TotalPence - split.TotalPence
	if remainder > 0 && in.CustomerID == 0 {
		return SaleResult{}, ErrCustomerRequired
	}

	// Fail fast on stock before opening the transaction; the atomic decrement
	// inside the transaction remains the real guard.
	need := make([]money.LineQty, 0, len(priced.Lines))
	for _, l := range priced.Lines {
		need = append(need, money.LineQty{ProductID: l.ProductID, QtyBase: l.QtyBase})
	}
	for productID, qty := range money.AggregateLineQuantities(need) {
		bal, err := s.stock.Balance(ctx, in.StoreID, productID)
		if err != nil && !errors.Is(err, inventory.ErrBalanceNotFound) {
			return SaleResult{}, err
		}
		if bal.QtyOnHandBase < qty {
			return SaleResult{}, fmt.Errorf("product %d: %w", productID, inventory.ErrInsufficientStock)
		}
	}

	var result SaleResult
	err = s.uow.WithTx(ctx, func(ctx context.Context, tx TxSurface) error {
		var shiftID int64
		if split.CashPence > 0 || change > 0 {
			shift, err := tx.Drawer().GetOpenShiftForUpdate(ctx, in.BusinessID, in.TillID)
			if err != nil {
				return err
			}
			shiftID = shift.ID
		}

		inv, err := tx.Invoices().CreateInvoice(ctx, Invoice{
			BusinessID:         in.BusinessID,
			StoreID:            in.StoreID,
			TillID:             in.TillID,
			ShiftID:            shiftID,
			CustomerID:         in.CustomerID,
			Status:             InvoiceActive,
			SubtotalPence:      priced.SubtotalPence,
			DiscountPence:      priced.DiscountPence,
			OrderDiscountPence: priced.OrderDiscountPence,
			VATPence:           priced.VATPence,
			TotalPence:         priced.TotalPence,
			PaidPence:          split.TotalPence,
			PaymentStatus:      money.DerivePaymentStatus(priced.TotalPence, split.TotalPence),
			CashierID:          in.CashierID,
			Note:               in.Note,
		})
		if err != nil {
			return err
		}

		costs, totalCost, err := s.consumeStock(ctx, tx, in, priced, catalog, inv.ID)
		if err != nil {
			return err
		}
		if err := tx.Invoices().UpdateCost(ctx, inv.ID, totalCost); err != nil {
			return err
		}
		inv.CostPence = totalCost

		lines := make([]Line, 0, len(priced.Lines))
		for i, pl := range priced.Lines {
			line, err := tx.Invoices().CreateLine(ctx, Line{
				InvoiceID:      inv.ID,
				ProductID:      pl.ProductID,
				UnitName:       in.Lines[i].UnitName,
				QtyInUnit:      in.Lines[i].QtyInUnit,
				UnitFactor:     cartLines[i].UnitFactor,
				QtyBase:        pl.QtyBase,
				UnitPricePence: pl.UnitPricePence,
				SubtotalPence:  pl.SubtotalPence,
				DiscountPence:  pl.DiscountPence,
				PromoPence:     pl.PromoPence,
				NetPence:       pl.NetPence,
				VATPence:       pl.VATPence,
				TotalPence:     pl.TotalPence,
				UnitCostPence:  costs[pl.ProductID],
			})
			if err != nil {
				return err
			}
			lines = append(lines, line)
		}

		if err := s.writePayments(ctx, tx, inv.ID, in.Payments, change); err != nil {
			return err
		}
		for _, p := range in.Payments {
			if p.Method == money.MethodMobileMoney {
				if err := tx.Collections().Attach(ctx, in.BusinessID, p.CollectionID, inv.ID, p.AmountPence); err != nil {
					return err
				}
			}
		}
		if split.CashPence > 0 {
			if _, err := drawer.RecordEntry(ctx, tx.Drawer(), in.BusinessID, drawer.EntryParams{
				TillID:     in.TillID,
				Type:       drawer.EntryCashSale,
				DeltaPence: split.CashPence,
				RefModule:  "sales",
				RefID:      fmt.Sprintf("%d", inv.ID),
				ActorID:    in.CashierID,
			}); err != nil {
				return err
			}
		}

		entryLines := ledger.CompactLines([]ledger.PostingLineInput{
			ledger.Dr(ledger.AccountCash, split.CashPence),
			ledger.Dr(ledger.AccountBank, split.BankPence),
			ledger.Dr(ledger.AccountAR, remainder),
			ledger.Cr(ledger.AccountSales, priced.NetPence),
			ledger.Cr(ledger.AccountVATPayable, priced.VATPence),
			ledger.Dr(ledger.AccountCOGS, totalCost),
			ledger.Cr(ledger.AccountInventory, totalCost),
		})
		if _, err := tx.Ledger().Post(ctx, ledger.PostingInput{
			BusinessID:    in.BusinessID,
			Description:   fmt.Sprintf("Sales invoice %d", inv.ID),
			ReferenceType: "SALES_INVOICE",
			ReferenceID:   fmt.Sprintf("%d", inv.ID),
			PostedBy:      in.CashierID,
			Lines:         entryLines,
		}); err != nil {
			return err
		}

		result = SaleResult{Invoice: inv, Lines: lines, ChangePence: change}
		return nil
	})
	if err != nil {
		return SaleResult{}, err
	}

	s.afterSale(ctx, in, approved, result)
	return result, nil
}

// resolveCart loads products and unit conversion factors for every line.
func (s *Service) resolveCart(ctx context.Context, in SaleInput) (map[int64]products.Product, []pricing.CartLine, error) {
	ids := make([]int64, 0, len(in.Lines))
	for _, l := range in.Lines {
		ids = append(ids, l.ProductID)
	}
	catalog, err := s.products.GetMany(ctx, in.BusinessID, ids)
	if err != nil {
		return nil, nil, err
	}
	cartLines := make([]pricing.CartLine, 0, len(in.Lines))
	for _, l := range in.Lines {
		product, ok := catalog[l.ProductID]
		if !ok {
			return nil, nil, fmt.Errorf("product %d: %w", l.ProductID, products.ErrProductNotFound)
		}
		factor := int64(1)
		if l.UnitName != "" && l.UnitName != product.BaseUnit {
			unit, err := s.products.GetUnit(ctx, l.ProductID, l.UnitName)
			if err != nil {
				return nil, nil, fmt.Errorf("product %d unit %q: %w", l.ProductID, l.UnitName, err)
			}
			factor = unit.Factor
		}
		cartLines = append(cartLines, pricing.CartLine{
			ProductID:       l.ProductID,
			QtyInUnit:       l.QtyInUnit,
			UnitFactor:      factor,
			BasePricePence:  product.BasePricePence,
			DiscountPercent: l.DiscountPercent,
			DiscountPence:   l.DiscountPence,
			VATRateBps:      product.VATRateBps,
			PromoBuyQty:     product.PromoBuyQty,
			PromoGetQty:     product.PromoGetQty,
		})
	}
	return catalog, cartLines, nil
}

// gateDiscount enforces the approval threshold: a discount above the
// configured share of gross needs a verified manager plus a recognised reason
// code. Returns whether an approval actually happened.
func (s *Service) gateDiscount(ctx context.Context, in SaleInput, cfg businesses.Settings, priced pricing.CartResult) (bool, error) {
	if cfg.DiscountApprovalBps <= 0 || priced.SubtotalPence <= 0 || priced.DiscountPence <= 0 {
		return false, nil
	}
	discountBps := priced.DiscountPence * 10_000 / priced.SubtotalPence
	if discountBps <= cfg.DiscountApprovalBps {
		return false, nil
	}
	if in.ApproverID == 0 || in.ApproverPIN == "" {
		return false, shared.ErrApprovalRequired
	}
	if err := s.approvals.VerifyManagerPIN(ctx, in.BusinessID, in.ApproverID, in.ApproverPIN); err != nil {
		return false, err
	}
	if in.ReasonCode == "" {
		return false, shared.ErrApprovalRequired
	}
	ok, err := s.reasons.IsRecognised(ctx, in.BusinessID, in.ReasonCode)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, shared.ErrUnknownReasonCode
	}
	return true, nil
}

// consumeStock decrements every distinct product once and returns the
// weighted-average cost each product was consumed at plus the cart's total cost.
func (s *Service) consumeStock(ctx context.Context, tx TxSurface, in SaleInput, priced pricing.CartResult, catalog map[int64]products.Product, invoiceID int64) (map[int64]int64, int64, error) {
	need := make([]money.LineQty, 0, len(priced.Lines))
	for _, l := range priced.Lines {
		need = append(need, money.LineQty{ProductID: l.ProductID, QtyBase: l.QtyBase})
	}
	costs := make(map[int64]int64)
	var totalCost int64
	for productID, qty := range money.AggregateLineQuantities(need) {
		bal, err := tx.Inventory().GetBalanceForUpdate(ctx, in.StoreID, productID)
		found := err == nil
		if err != nil && !errors.Is(err, inventory.ErrBalanceNotFound) {
			return nil, 0, err
		}
		cost := inventory.ResolveAvgCost(bal, found, catalog[productID].DefaultCostPence)
		if _, err := inventory.Decrease(ctx, tx.Inventory(), inventory.DecreaseParams{
			BusinessID:    in.BusinessID,
			StoreID:       in.StoreID,
			ProductID:     productID,
			QtyBase:       qty,
			UnitCostPence: cost,
			Type:          inventory.MovementSale,
			RefModule:     "sales",
			RefID:         fmt.Sprintf("%d", invoiceID),
			ActorID:       in.CashierID,
		}); err != nil {
			return nil, 0, fmt.Errorf("product %d: %w", productID, err)
		}
		costs[productID] = cost
		totalCost += qty * cost
	}
	return costs, totalCost, nil
}

// writePayments records declared tenders, netting the change handed back out
// of the cash tender.
func (s *Service) writePayments(ctx context.Context, tx TxSurface, invoiceID int64, payments []PaymentInput, change int64) error {
	for _, p := range payments {
		amount := p.AmountPence
		if p.Method.IsCash() && change > 0 {
			clawed := change
			if clawed > amount {
				clawed = amount
			}
			amount -= clawed
			change -= clawed
		}
		if amount <= 0 {
			continue
		}
		if _, err := tx.Invoices().CreatePayment(ctx, PaymentRow{
			InvoiceID:    invoiceID,
			Method:       p.Method,
			AmountPence:  amount,
			CollectionID: p.CollectionID,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) afterSale(ctx context.Context, in SaleInput, approved bool, result SaleResult) {
	if approved && s.approvals != nil {
		if err := s.approvals.Record(ctx, shared.ApprovalLog{
			BusinessID: in.BusinessID,
			Module:     "sales",
			RefID:      approvalRef(result.Invoice.ID),
			ActorID:    in.ApproverID,
			Action:     shared.ApprovalApprove,
			ReasonCode: in.ReasonCode,
		}); err != nil && s.logger != nil {
			s.logger.Warn("approval record failed", "invoice_id", result.Invoice.ID, "error", err)
		}
	}
	if s.risk != nil {
		s.risk.ObserveSale(ctx, risk.SaleFacts{
			BusinessID:    in.BusinessID,
			StoreID:       in.StoreID,
			InvoiceID:     result.Invoice.ID,
			GrossPence:    result.Invoice.SubtotalPence,
			DiscountPence: result.Invoice.DiscountPence,
			TotalPence:    result.Invoice.TotalPence,
			CostPence:     result.Invoice.CostPence,
			CashierID:     in.CashierID,
		})
	}
	s.recordAudit(ctx, in.BusinessID, in.CashierID, "sales.sale", result.Invoice.ID, map[string]any{
		"total_pence": result.Invoice.TotalPence,
		"paid_pence":  result.Invoice.PaidPence,
	})
}

// ReturnOrVoid cancels a whole invoice. VOID requires a verified manager and a
// fully unpaid invoice; RETURN refunds exactly what was paid, cash back through
// the drawer and the rest from the bank account.
func (s *Service) ReturnOrVoid(ctx context.Context, in ReturnInput) (Invoice, error) {
	if in.Kind != KindReturn && in.Kind != KindVoid {
		return Invoice{}, fmt.Errorf("sales: unknown cancellation kind %q", in.Kind)
	}
	if in.Kind == KindVoid {
		if err := s.approvals.VerifyManagerPIN(ctx, in.BusinessID, in.ApproverID, in.ApproverPIN); err != nil {
			return Invoice{}, err
		}
	}
	if in.ReasonCode != "" && s.reasons != nil {
		ok, err := s.reasons.IsRecognised(ctx, in.BusinessID, in.ReasonCode)
		if err != nil {
			return Invoice{}, err
		}
		if !ok {
			return Invoice{}, shared.ErrUnknownReasonCode
		}
	}

	var cancelled Invoice
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx TxSurface) error {
		inv, err := tx.Invoices().GetInvoiceForUpdate(ctx, in.BusinessID, in.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Status != InvoiceActive {
			return ErrInvoiceTerminal
		}
		lines, err := tx.Invoices().GetLines(ctx, inv.ID)
		if err != nil {
			return err
		}

		if in.Kind == KindVoid && inv.PaidPence > 0 {
			return ErrVoidPaidInvoice
		}

		var restoredCost int64
		for _, l := range lines {
			if _, err := inventory.Increase(ctx, tx.Inventory(), inventory.IncreaseParams{
				BusinessID:    in.BusinessID,
				StoreID:       inv.StoreID,
				ProductID:     l.ProductID,
				QtyBase:       l.QtyBase,
				UnitCostPence: l.UnitCostPence,
				Type:          inventory.MovementSalesReturn,
				RefModule:     "sales",
				RefID:         fmt.Sprintf("%d", inv.ID),
				Note:          string(in.Kind),
				ActorID:       in.ActorID,
			}); err != nil {
				return err
			}
			restoredCost += l.QtyBase * l.UnitCostPence
		}

		net := inv.TotalPence - inv.VATPence
		var cashPaid, bankPaid int64
		if in.Kind == KindReturn {
			payments, err := tx.Invoices().GetPayments(ctx, inv.ID)
			if err != nil {
				return err
			}
			for _, p := range payments {
				if p.AmountPence <= 0 {
					continue
				}
				if p.Method.IsCash() {
					cashPaid += p.AmountPence
				} else {
					bankPaid += p.AmountPence
				}
				if _, err := tx.Invoices().CreatePayment(ctx, PaymentRow{
					InvoiceID:   inv.ID,
					Method:      p.Method,
					AmountPence: -p.AmountPence,
				}); err != nil {
					return err
				}
			}
			if cashPaid > 0 {
				if _, err := drawer.RecordEntry(ctx, tx.Drawer(), in.BusinessID, drawer.EntryParams{
					TillID:     in.TillID,
					Type:       drawer.EntryCashRefund,
					DeltaPence: -cashPaid,
					RefModule:  "sales",
					RefID:      fmt.Sprintf("%d", inv.ID),
					ActorID:    in.ActorID,
				}); err != nil {
					return err
				}
			}
		}
		remainder := inv.TotalPence - inv.PaidPence

		entryLines := ledger.CompactLines([]ledger.PostingLineInput{
			ledger.Dr(ledger.AccountSales, net),
			ledger.Dr(ledger.AccountVATPayable, inv.VATPence),
			ledger.Cr(ledger.AccountCash, cashPaid),
			ledger.Cr(ledger.AccountBank, bankPaid),
			ledger.Cr(ledger.AccountAR, remainder),
			ledger.Dr(ledger.AccountInventory, restoredCost),
			ledger.Cr(ledger.AccountCOGS, restoredCost),
		})
		refType := "SALES_RETURN"
		newStatus := InvoiceReturned
		if in.Kind == KindVoid {
			refType = "SALES_VOID"
			newStatus = InvoiceVoid
		}
		if _, err := tx.Ledger().Post(ctx, ledger.PostingInput{
			BusinessID:    in.BusinessID,
			Description:   fmt.Sprintf("%s of invoice %d", in.Kind, inv.ID),
			ReferenceType: refType,
			ReferenceID:   fmt.Sprintf("%d", inv.ID),
			PostedBy:      in.ActorID,
			Lines:         entryLines,
		}); err != nil {
			return err
		}
		if err := tx.Invoices().UpdateStatus(ctx, inv.ID, newStatus); err != nil {
			return err
		}
		inv.Status = newStatus
		cancelled = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}

	if in.Kind == KindVoid && s.approvals != nil {
		if err := s.approvals.Record(ctx, shared.ApprovalLog{
			BusinessID: in.BusinessID,
			Module:     "sales",
			RefID:      approvalRef(in.InvoiceID),
			ActorID:    in.ApproverID,
			Action:     shared.ApprovalApprove,
			ReasonCode: in.ReasonCode,
			Note:       "void",
		}); err != nil && s.logger != nil {
			s.logger.Warn("approval record failed", "invoice_id", in.InvoiceID, "error", err)
		}
	}
	s.recordAudit(ctx, in.BusinessID, in.ActorID, "sales."+string(in.Kind), in.InvoiceID, map[string]any{
		"reason_code": in.ReasonCode,
	})
	return cancelled, nil
}

// Amend removes a strict proper subset of lines, restores their stock at
// sale-time cost, recomputes header totals from the kept lines and clears the
// order-level discount. The money side settles as either a cash refund or a
// larger balance due, never both.
func (s *Service) Amend(ctx context.Context, in AmendInput) (AmendResult, error) {
	if len(in.RemoveLineIDs) == 0 {
		return AmendResult{}, ErrNothingToRemove
	}

	var result AmendResult
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx TxSurface) error {
		inv, err := tx.Invoices().GetInvoiceForUpdate(ctx, in.BusinessID, in.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Status != InvoiceActive {
			return ErrInvoiceTerminal
		}
		lines, err := tx.Invoices().GetLines(ctx, inv.ID)
		if err != nil {
			return err
		}

		removeSet := make(map[int64]bool, len(in.RemoveLineIDs))
		for _, id := range in.RemoveLineIDs {
			removeSet[id] = true
		}
		var removed, kept []Line
		for _, l := range lines {
			if removeSet[l.ID] {
				removed = append(removed, l)
				delete(removeSet, l.ID)
			} else {
				kept = append(kept, l)
			}
		}
		if len(removeSet) > 0 {
			return ErrUnknownLine
		}
		if len(removed) == 0 {
			return ErrNothingToRemove
		}
		if len(kept) == 0 {
			return ErrAmendmentEmptiesInvoice
		}

		var removedCost int64
		for _, l := range removed {
			if _, err := inventory.Increase(ctx, tx.Inventory(), inventory.IncreaseParams{
				BusinessID:    in.BusinessID,
				StoreID:       inv.StoreID,
				ProductID:     l.ProductID,
				QtyBase:       l.QtyBase,
				UnitCostPence: l.UnitCostPence,
				Type:          inventory.MovementSaleAmendment,
				RefModule:     "sales",
				RefID:         fmt.Sprintf("%d", inv.ID),
				Note:          in.Note,
				ActorID:       in.ActorID,
			}); err != nil {
				return err
			}
			removedCost += l.QtyBase * l.UnitCostPence
		}

		// Recompute the header from the kept lines alone; the order-level
		// discount is cleared rather than prorated.
		var newInv Invoice
		newInv.ID = inv.ID
		for _, l := range kept {
			newInv.SubtotalPence += l.SubtotalPence
			newInv.DiscountPence += l.DiscountPence + l.PromoPence
			newInv.VATPence += l.VATPence
			newInv.TotalPence += l.TotalPence
			newInv.CostPence += l.QtyBase * l.UnitCostPence
		}

		oldNet := inv.TotalPence - inv.VATPence
		newNet := newInv.TotalPence - newInv.VATPence

		refund := inv.PaidPence - newInv.TotalPence
		if refund < 0 {
			refund = 0
		}
		oldAR := inv.TotalPence - inv.PaidPence
		if oldAR < 0 {
			oldAR = 0
		}
		newPaid := inv.PaidPence - refund
		newAR := newInv.TotalPence - newPaid
		if newAR < 0 {
			newAR = 0
		}
		arChange := oldAR - newAR

		if refund > 0 {
			if _, err := tx.Invoices().CreatePayment(ctx, PaymentRow{
				InvoiceID:   inv.ID,
				Method:      money.MethodCash,
				AmountPence: -refund,
			}); err != nil {
				return err
			}
			if _, err := drawer.RecordEntry(ctx, tx.Drawer(), in.BusinessID, drawer.EntryParams{
				TillID:     in.TillID,
				Type:       drawer.EntryCashRefund,
				DeltaPence: -refund,
				RefModule:  "sales",
				RefID:      fmt.Sprintf("%d", inv.ID),
				ActorID:    in.ActorID,
			}); err != nil {
				return err
			}
		}

		entryLines := ledger.CompactLines([]ledger.PostingLineInput{
			signedLeg(ledger.AccountSales, oldNet-newNet),
			signedLeg(ledger.AccountVATPayable, inv.VATPence-newInv.VATPence),
			signedLeg(ledger.AccountCash, -refund),
			signedLeg(ledger.AccountAR, -arChange),
			ledger.Dr(ledger.AccountInventory, removedCost),
			ledger.Cr(ledger.AccountCOGS, removedCost),
		})
		if _, err := tx.Ledger().Post(ctx, ledger.PostingInput{
			BusinessID:    in.BusinessID,
			Description:   fmt.Sprintf("Amendment of invoice %d", inv.ID),
			ReferenceType: "SALE_AMENDMENT",
			ReferenceID:   fmt.Sprintf("%d", inv.ID),
			PostedBy:      in.ActorID,
			Lines:         entryLines,
		}); err != nil {
			return err
		}

		removedIDs := make([]int64, 0, len(removed))
		for _, l := range removed {
			removedIDs = append(removedIDs, l.ID)
		}
		if err := tx.Invoices().DeleteLines(ctx, inv.ID, removedIDs); err != nil {
			return err
		}
		newInv.PaidPence = newPaid
		newInv.PaymentStatus = money.DerivePaymentStatus(newInv.TotalPence, newPaid)
		if err := tx.Invoices().UpdateAmendedTotals(ctx, newInv); err != nil {
			return err
		}

		inv.SubtotalPence = newInv.SubtotalPence
		inv.DiscountPence = newInv.DiscountPence
		inv.OrderDiscountPence = 0
		inv.VATPence = newInv.VATPence
		inv.TotalPence = newInv.TotalPence
		inv.PaidPence = newPaid
		inv.CostPence = newInv.CostPence
		inv.PaymentStatus = newInv.PaymentStatus
		result = AmendResult{Invoice: inv, RefundPence: refund, BalanceDuePence: newAR}
		return nil
	})
	if err != nil {
		return AmendResult{}, err
	}
	s.recordAudit(ctx, in.BusinessID, in.ActorID, "sales.amend", in.InvoiceID, map[string]any{
		"removed_lines":     in.RemoveLineIDs,
		"refund_pence":      result.RefundPence,
		"balance_due_pence": result.BalanceDuePence,
	})
	return result, nil
}

// RecordDebtorPayment settles part of an outstanding invoice: payment row,
// drawer entry for cash, and a cash/bank debit against receivables.
func (s *Service) RecordDebtorPayment(ctx context.Context, in DebtorPaymentInput) (Invoice, error) {
	if in.AmountPence <= 0 || !in.Method.Valid() || in.Method == money.MethodMobileMoney {
		return Invoice{}, ErrInvalidPayment
	}

	var updated Invoice
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx TxSurface) error {
		inv, err := tx.Invoices().GetInvoiceForUpdate(ctx, in.BusinessID, in.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Status != InvoiceActive {
			return ErrInvoiceTerminal
		}
		if inv.PaymentStatus == money.StatusPaid {
			return ErrAlreadyPaid
		}
		if inv.PaidPence+in.AmountPence > inv.TotalPence {
			return money.ErrOverpaid
		}

		if _, err := tx.Invoices().CreatePayment(ctx, PaymentRow{
			InvoiceID:   inv.ID,
			Method:      in.Method,
			AmountPence: in.AmountPence,
		}); err != nil {
			return err
		}
		if in.Method.IsCash() {
			if _, err := drawer.RecordEntry(ctx, tx.Drawer(), in.BusinessID, drawer.EntryParams{
				TillID:     in.TillID,
				Type:       drawer.EntryCashDebtorPayment,
				DeltaPence: in.AmountPence,
				RefModule:  "sales",
				RefID:      fmt.Sprintf("%d", inv.ID),
				ActorID:    in.ActorID,
			}); err != nil {
				return err
			}
		}

		debitAccount := ledger.AccountBank
		if in.Method.IsCash() {
			debitAccount = ledger.AccountCash
		}
		if _, err := tx.Ledger().Post(ctx, ledger.PostingInput{
			BusinessID:    in.BusinessID,
			Description:   fmt.Sprintf("Debtor payment on invoice %d", inv.ID),
			ReferenceType: "DEBTOR_PAYMENT",
			ReferenceID:   fmt.Sprintf("%d", inv.ID),
			PostedBy:      in.ActorID,
			Lines: []ledger.PostingLineInput{
				ledger.Dr(debitAccount, in.AmountPence),
				ledger.Cr(ledger.AccountAR, in.AmountPence),
			},
		}); err != nil {
			return err
		}

		newPaid := inv.PaidPence + in.AmountPence
		status := money.DerivePaymentStatus(inv.TotalPence, newPaid)
		if err := tx.Invoices().UpdatePaid(ctx, inv.ID, newPaid, status); err != nil {
			return err
		}
		inv.PaidPence = newPaid
		inv.PaymentStatus = status
		updated = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, in.BusinessID, in.ActorID, "sales.debtor_payment", in.InvoiceID, map[string]any{
		"amount_pence": in.AmountPence,
		"method":       string(in.Method),
	})
	return updated, nil
}

// Get reads one invoice with lines and payments.
func (s *Service) Get(ctx context.Context, businessID, invoiceID int64) (Invoice, []Line, []PaymentRow, error) {
	return s.reads.Get(ctx, businessID, invoiceID)
}

// List returns recent invoices for a store.
func (s *Service) List(ctx context.Context, businessID, storeID int64, limit int) ([]Invoice, error) {
	return s.reads.List(ctx, businessID, storeID, limit)
}

func signedLeg(account string, amountPence int64) ledger.PostingLineInput {
	if amountPence >= 0 {
		return ledger.Dr(account, amountPence)
	}
	return ledger.Cr(account, -amountPence)
}

func approvalRef(invoiceID int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("SALES_INVOICE:%d", invoiceID)))
}

func (s *Service) recordAudit(ctx context.Context, businessID, actorID int64, action string, invoiceID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		BusinessID: businessID,
		ActorID:    actorID,
		Action:     action,
		Entity:     "sales_invoice",
		EntityID:   fmt.Sprintf("%d", invoiceID),
		Meta:       meta,
	})
}
