package drawer

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshowusu-alt/tillflow/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// VariancePort observes closed shifts for reconciliation alerts. Observation
// failures never fail the close.
type VariancePort interface {
	ObserveShiftClose(ctx context.Context, shift Shift)
}

// Service manages shift lifecycle and standalone cash movements (payouts,
// drawer corrections). Sale-driven cash moves through RecordEntry inside the
// sale orchestrator's transaction.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	risk  VariancePort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, risk VariancePort) *Service {
	return &Service{repo: repo, audit: audit, risk: risk}
}

// RecordEntry applies one cash movement to the till's open shift inside the
// caller's transaction: the shift row is locked, the expected-cash counter is
// bumped, and an entry with before/after snapshots is appended.
func RecordEntry(ctx context.Context, tx TxRepository, businessID int64, p EntryParams) (Entry, error) {
	if p.DeltaPence == 0 {
		return Entry{}, ErrZeroDelta
	}
	shift, err := tx.GetOpenShiftForUpdate(ctx, businessID, p.TillID)
	if err != nil {
		return Entry{}, err
	}
	before := shift.ExpectedCashPence
	after := before + p.DeltaPence
	if err := tx.UpdateExpectedCash(ctx, shift.ID, after); err != nil {
		return Entry{}, err
	}
	entry := Entry{
		ShiftID:     shift.ID,
		Type:        p.Type,
		DeltaPence:  p.DeltaPence,
		BeforePence: before,
		AfterPence:  after,
		RefModule:   p.RefModule,
		RefID:       p.RefID,
		Note:        p.Note,
		ActorID:     p.ActorID,
	}
	id, err := tx.InsertEntry(ctx, entry)
	if err != nil {
		return Entry{}, err
	}
	entry.ID = id
	return entry, nil
}

// OpenShift opens a custody period on a till seeded with the counted float.
func (s *Service) OpenShift(ctx context.Context, in OpenShiftInput) (Shift, error) {
	if in.OpeningCashPence < 0 {
		return Shift{}, ErrInvalidOpeningCash
	}
	shift, err := s.repo.OpenShift(ctx, in)
	if err != nil {
		return Shift{}, err
	}
	s.recordAudit(ctx, in.BusinessID, in.ActorID, "drawer.shift_open", shift.ID, map[string]any{
		"till_id":            in.TillID,
		"opening_cash_pence": in.OpeningCashPence,
	})
	return shift, nil
}

// CloseShift closes the till's open shift, recording the counted cash and the
// variance against the expected counter, then hands the closed shift to the
// variance observer.
func (s *Service) CloseShift(ctx context.Context, in CloseShiftInput) (Shift, error) {
	var closed Shift
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		shift, err := tx.GetOpenShiftForUpdate(ctx, in.BusinessID, in.TillID)
		if err != nil {
			return err
		}
		variance := in.CountedCashPence - shift.ExpectedCashPence
		closed, err = tx.CloseShift(ctx, shift.ID, in.CountedCashPence, variance, in.ActorID)
		return err
	})
	if err != nil {
		return Shift{}, err
	}
	s.recordAudit(ctx, in.BusinessID, in.ActorID, "drawer.shift_close", closed.ID, map[string]any{
		"till_id":             in.TillID,
		"counted_cash_pence":  in.CountedCashPence,
		"expected_cash_pence": closed.ExpectedCashPence,
		"variance_pence":      closed.VariancePence,
	})
	if s.risk != nil {
		s.risk.ObserveShiftClose(ctx, closed)
	}
	return closed, nil
}

// RecordPayout pays an expense out of the drawer as a standalone transaction.
func (s *Service) RecordPayout(ctx context.Context, businessID int64, p EntryParams) (Entry, error) {
	if p.DeltaPence >= 0 {
		return Entry{}, errors.New("drawer: payout delta must be negative")
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = RecordEntry(ctx, tx, businessID, p)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	s.recordAudit(ctx, businessID, p.ActorID, "drawer.payout", entry.ShiftID, map[string]any{
		"delta_pence": p.DeltaPence,
		"note":        p.Note,
	})
	return entry, nil
}

// OpenShiftFor reads the till's current open shift.
func (s *Service) OpenShiftFor(ctx context.Context, businessID, tillID int64) (Shift, error) {
	return s.repo.GetOpenShift(ctx, businessID, tillID)
}

// Entries lists the drawer ledger for a shift.
func (s *Service) Entries(ctx context.Context, shiftID int64, limit int) ([]Entry, error) {
	return s.repo.ListEntries(ctx, shiftID, limit)
}

func (s *Service) recordAudit(ctx context.Context, businessID, actorID int64, action string, shiftID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		BusinessID: businessID,
		ActorID:    actorID,
		Action:     action,
		Entity:     "drawer_shift",
		EntityID:   fmt.Sprintf("%d", shiftID),
		Meta:       meta,
	})
}
