package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshowusu-alt/tillflow/internal/ledger"
	"github.com/joshowusu-alt/tillflow/internal/masterdata/products"
	"github.com/joshowusu-alt/tillflow/internal/money"
	"github.com/joshowusu-alt/tillflow/internal/shared"
)

// ProductPort resolves catalogue facts needed for cost fallback.
type ProductPort interface {
	Get(ctx context.Context, businessID, productID int64) (products.Product, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReasonPort validates override reason codes.
type ReasonPort interface {
	IsRecognised(ctx context.Context, businessID int64, code string) (bool, error)
}

// Service coordinates standalone inventory operations (adjustments and
// branch transfers). Sales and purchases drive the same TxRepository from
// their own orchestrators.
type Service struct {
	repo    RepositoryPort
	catalog ProductPort
	audit   AuditPort
	reasons ReasonPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, catalog ProductPort, audit AuditPort, reasons ReasonPort) *Service {
	return &Service{repo: repo, catalog: catalog, audit: audit, reasons: reasons}
}

// IncreaseParams describes a stock increase applied inside a caller's tx.
type IncreaseParams struct {
	BusinessID    int64
	StoreID       int64
	ProductID     int64
	QtyBase       int64
	UnitCostPence int64
	Type          MovementType
	RefModule     string
	RefID         string
	Note          string
	ActorID       int64
}

// DecreaseParams describes a stock decrease applied inside a caller's tx.
// UnitCostPence is the resolved average cost the decrease consumes at.
type DecreaseParams struct {
	BusinessID    int64
	StoreID       int64
	ProductID     int64
	QtyBase       int64
	UnitCostPence int64
	Type          MovementType
	RefModule     string
	RefID         string
	Note          string
	ActorID       int64
}

// Increase receives stock and recomputes the weighted-average cost. The
// average is only recomputed on increases; decreases consume at the running
// average and leave it unchanged.
func Increase(ctx context.Context, tx TxRepository, p IncreaseParams) (Balance, error) {
	if p.QtyBase <= 0 {
		return Balance{}, ErrInvalidQuantity
	}
	if p.UnitCostPence < 0 {
		return Balance{}, ErrInvalidUnitCost
	}
	bal, err := tx.GetBalanceForUpdate(ctx, p.StoreID, p.ProductID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return Balance{}, err
	}
	newAvg := money.WeightedAverage(bal.QtyOnHandBase, bal.AvgCostBasePence, p.QtyBase, p.UnitCostPence)
	bal.QtyOnHandBase += p.QtyBase
	bal.AvgCostBasePence = newAvg
	if err := tx.UpsertBalance(ctx, bal); err != nil {
		return Balance{}, err
	}
	if _, err := tx.InsertMovement(ctx, Movement{
		BusinessID:    p.BusinessID,
		StoreID:       p.StoreID,
		ProductID:     p.ProductID,
		Type:          p.Type,
		QtyBase:       p.QtyBase,
		UnitCostPence: p.UnitCostPence,
		RefModule:     p.RefModule,
		RefID:         p.RefID,
		Note:          p.Note,
		ActorID:       p.ActorID,
	}); err != nil {
		return Balance{}, err
	}
	return bal, nil
}

// Decrease consumes stock atomically; a result that would go negative fails
// the whole transaction with ErrInsufficientStock.
func Decrease(ctx context.Context, tx TxRepository, p DecreaseParams) (Balance, error) {
	if p.QtyBase <= 0 {
		return Balance{}, ErrInvalidQuantity
	}
	bal, err := tx.Decrement(ctx, p.StoreID, p.ProductID, p.QtyBase)
	if err != nil {
		return Balance{}, err
	}
	if _, err := tx.InsertMovement(ctx, Movement{
		BusinessID:    p.BusinessID,
		StoreID:       p.StoreID,
		ProductID:     p.ProductID,
		Type:          p.Type,
		QtyBase:       -p.QtyBase,
		UnitCostPence: p.UnitCostPence,
		RefModule:     p.RefModule,
		RefID:         p.RefID,
		Note:          p.Note,
		ActorID:       p.ActorID,
	}); err != nil {
		return Balance{}, err
	}
	return bal, nil
}

// Balance reads the current on-hand balance.
func (s *Service) Balance(ctx context.Context, storeID, productID int64) (Balance, error) {
	return s.repo.Balance(ctx, storeID, productID)
}

// Movements lists the audit trail for a store/product.
func (s *Service) Movements(ctx context.Context, businessID, storeID, productID int64, limit int) ([]Movement, error) {
	return s.repo.ListMovements(ctx, businessID, storeID, productID, limit)
}

// PostAdjustment applies a manual stock correction and documents it with a
// balanced journal entry (gain against inventory for increases, shrinkage for
// decreases) in the same atomic scope.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (Balance, error) {
	if input.BusinessID == 0 || input.StoreID == 0 || input.ProductID == 0 {
		return Balance{}, errors.New("inventory: business, store and product required")
	}
	if input.QtyBase == 0 {
		return Balance{}, ErrInvalidQuantity
	}
	if input.QtyBase > 0 && input.UnitCostPence < 0 {
		return Balance{}, ErrInvalidUnitCost
	}
	if s.reasons != nil && input.ReasonCode != "" {
		ok, err := s.reasons.IsRecognised(ctx, input.BusinessID, input.ReasonCode)
		if err != nil {
			return Balance{}, err
		}
		if !ok {
			return Balance{}, shared.ErrUnknownReasonCode
		}
	}

	product, err := s.catalog.Get(ctx, input.BusinessID, input.ProductID)
	if err != nil {
		return Balance{}, err
	}

	var result Balance
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, journal ledger.TxRepository) error {
		var valuePence int64
		if input.QtyBase > 0 {
			bal, err := Increase(ctx, tx, IncreaseParams{
				BusinessID:    input.BusinessID,
				StoreID:       input.StoreID,
				ProductID:     input.ProductID,
				QtyBase:       input.QtyBase,
				UnitCostPence: input.UnitCostPence,
				Type:          MovementAdjustment,
				RefModule:     "inventory",
				Note:          input.Note,
				ActorID:       input.ActorID,
			})
			if err != nil {
				return err
			}
			result = bal
			valuePence = input.QtyBase * input.UnitCostPence
			_, err = journal.Post(ctx, ledger.PostingInput{
				BusinessID:    input.BusinessID,
				Description:   "Stock adjustment (gain)",
				ReferenceType: "STOCK_ADJUSTMENT",
				ReferenceID:   fmt.Sprintf("%d:%d", input.StoreID, input.ProductID),
				PostedBy:      input.ActorID,
				Lines: []ledger.PostingLineInput{
					ledger.Dr(ledger.AccountInventory, valuePence),
					ledger.Cr(ledger.AccountInventoryGain, valuePence),
				},
			})
			return err
		}

		qty := -input.QtyBase
		bal, err := tx.GetBalanceForUpdate(ctx, input.StoreID, input.ProductID)
		found := err == nil
		if err != nil && !errors.Is(err, ErrBalanceNotFound) {
			return err
		}
		cost := ResolveAvgCost(bal, found, product.DefaultCostPence)
		result, err = Decrease(ctx, tx, DecreaseParams{
			BusinessID:    input.BusinessID,
			StoreID:       input.StoreID,
			ProductID:     input.ProductID,
			QtyBase:       qty,
			UnitCostPence: cost,
			Type:          MovementAdjustment,
			RefModule:     "inventory",
			Note:          input.Note,
			ActorID:       input.ActorID,
		})
		if err != nil {
			return err
		}
		valuePence = qty * cost
		_, err = journal.Post(ctx, ledger.PostingInput{
			BusinessID:    input.BusinessID,
			Description:   "Stock adjustment (shrinkage)",
			ReferenceType: "STOCK_ADJUSTMENT",
			ReferenceID:   fmt.Sprintf("%d:%d", input.StoreID, input.ProductID),
			PostedBy:      input.ActorID,
			Lines: []ledger.PostingLineInput{
				ledger.Dr(ledger.AccountShrinkage, valuePence),
				ledger.Cr(ledger.AccountInventory, valuePence),
			},
		})
		return err
	})
	if err != nil {
		return Balance{}, err
	}
	s.recordAudit(ctx, input.BusinessID, input.ActorID, "inventory.adjust", input.StoreID, input.ProductID, input.QtyBase, input.Note)
	return result, nil
}

// PostTransfer moves stock between two branches of one business as
// TRANSFER_OUT + TRANSFER_IN in a single transaction. The receiving branch
// inherits the sending branch's average cost; the inventory asset account is
// unchanged so no journal entry is needed.
func (s *Service) PostTransfer(ctx context.Context, input TransferInput) (Balance, Balance, error) {
	if input.BusinessID == 0 || input.SrcStoreID == 0 || input.DstStoreID == 0 || input.ProductID == 0 {
		return Balance{}, Balance{}, errors.New("inventory: business, stores and product required")
	}
	if input.SrcStoreID == input.DstStoreID {
		return Balance{}, Balance{}, errors.New("inventory: source and destination store must differ")
	}
	if input.QtyBase <= 0 {
		return Balance{}, Balance{}, ErrInvalidQuantity
	}

	product, err := s.catalog.Get(ctx, input.BusinessID, input.ProductID)
	if err != nil {
		return Balance{}, Balance{}, err
	}

	var outBal, inBal Balance
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, _ ledger.TxRepository) error {
		srcBal, err := tx.GetBalanceForUpdate(ctx, input.SrcStoreID, input.ProductID)
		found := err == nil
		if err != nil && !errors.Is(err, ErrBalanceNotFound) {
			return err
		}
		cost := ResolveAvgCost(srcBal, found, product.DefaultCostPence)

		outBal, err = Decrease(ctx, tx, DecreaseParams{
			BusinessID:    input.BusinessID,
			StoreID:       input.SrcStoreID,
			ProductID:     input.ProductID,
			QtyBase:       input.QtyBase,
			UnitCostPence: cost,
			Type:          MovementTransferOut,
			RefModule:     "inventory",
			Note:          fmt.Sprintf("Transfer to store %d: %s", input.DstStoreID, input.Note),
			ActorID:       input.ActorID,
		})
		if err != nil {
			return err
		}

		inBal, err = Increase(ctx, tx, IncreaseParams{
			BusinessID:    input.BusinessID,
			StoreID:       input.DstStoreID,
			ProductID:     input.ProductID,
			QtyBase:       input.QtyBase,
			UnitCostPence: cost,
			Type:          MovementTransferIn,
			RefModule:     "inventory",
			Note:          fmt.Sprintf("Transfer from store %d: %s", input.SrcStoreID, input.Note),
			ActorID:       input.ActorID,
		})
		return err
	})
	if err != nil {
		return Balance{}, Balance{}, err
	}
	s.recordAudit(ctx, input.BusinessID, input.ActorID, "inventory.transfer", input.SrcStoreID, input.ProductID, input.QtyBase, input.Note)
	return outBal, inBal, nil
}

func (s *Service) recordAudit(ctx context.Context, businessID, actorID int64, action string, storeID, productID, qty int64, note string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		BusinessID: businessID,
		ActorID:    actorID,
		Action:     action,
		Entity:     "inventory_balance",
		EntityID:   fmt.Sprintf("%d:%d", storeID, productID),
		Meta: map[string]any{
			"store_id":   storeID,
			"product_id": productID,
			"qty_base":   qty,
			"note":       note,
		},
	})
}
