package ledger

import (
	"context"
	"fmt"

	"github.com/joshowusu-alt/tillflow/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service posts standalone journal entries (manual corrections, reconciliation
// offsets). Orchestrators post through TxRepository inside their own scope.
type Service struct {
	repo  Repository
	audit AuditPort
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Post validates and writes one balanced entry atomically.
func (s *Service) Post(ctx context.Context, in PostingInput) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		posted, err := tx.Post(ctx, in)
		if err != nil {
			return err
		}
		entry = posted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			BusinessID: in.BusinessID,
			ActorID:    in.PostedBy,
			Action:     "ledger.post",
			Entity:     "journal_entry",
			EntityID:   fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"reference_type": in.ReferenceType,
				"reference_id":   in.ReferenceID,
			},
		})
	}
	return entry, nil
}

// List returns recent entries for a business.
func (s *Service) List(ctx context.Context, businessID int64, limit int) ([]JournalEntry, error) {
	return s.repo.List(ctx, businessID, limit)
}
