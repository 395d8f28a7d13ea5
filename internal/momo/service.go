package momo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/joshowusu-alt/tillflow/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

const (
	webhookDedupeTTL     = 24 * time.Hour
	reconcileConcurrency = 8
)

// Service drives the collection state machine. Provider calls always happen
// outside database transactions; local state is written before the call and
// converged after it through the repository's ApplyResult.
type Service struct {
	repo          RepositoryPort
	provider      Provider
	rdb           *redis.Client
	audit         AuditPort
	logger        *slog.Logger
	webhookSecret string
}

// NewService builds Service.
func NewService(repo RepositoryPort, provider Provider, rdb *redis.Client, audit AuditPort, logger *slog.Logger, webhookSecret string) *Service {
	return &Service{repo: repo, provider: provider, rdb: rdb, audit: audit, logger: logger, webhookSecret: webhookSecret}
}

// Initiate starts a collection. A repeated idempotency key returns the
// original record without contacting the provider again. The PENDING row is
// committed before the provider call so a crash mid-call leaves a record the
// reconcile job can resolve; a provider error maps to terminal FAILED.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (Collection, error) {
	if in.AmountPence <= 0 {
		return Collection{}, ErrInvalidAmount
	}
	if in.IdempotencyKey == "" || in.Msisdn == "" {
		return Collection{}, errors.New("momo: idempotency key and msisdn required")
	}

	if existing, err := s.repo.GetByIdempotencyKey(ctx, in.BusinessID, in.IdempotencyKey); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrCollectionNotFound) {
		return Collection{}, err
	}

	created, err := s.repo.Create(ctx, Collection{
		BusinessID:     in.BusinessID,
		IdempotencyKey: in.IdempotencyKey,
		Msisdn:         in.Msisdn,
		Network:        in.Network,
		AmountPence:    in.AmountPence,
		CurrencyCode:   in.CurrencyCode,
		RequestedBy:    in.RequestedBy,
	})
	if errors.Is(err, ErrDuplicateKey) {
		// Lost the race to a concurrent initiate with the same key.
		return s.repo.GetByIdempotencyKey(ctx, in.BusinessID, in.IdempotencyKey)
	}
	if err != nil {
		return Collection{}, err
	}

	res, callErr := s.provider.InitiateCollection(ctx, ProviderRequest{
		ReferenceID:  created.IdempotencyKey,
		Msisdn:       created.Msisdn,
		Network:      created.Network,
		AmountPence:  created.AmountPence,
		CurrencyCode: created.CurrencyCode,
	})
	if callErr != nil {
		res = Result{Status: StatusFailed, FailureReason: callErr.Error()}
	}
	updated, err := s.repo.ApplyResult(ctx, created.ID, res)
	if err != nil {
		return Collection{}, err
	}
	s.recordAudit(ctx, in.BusinessID, in.RequestedBy, "momo.initiate", updated)
	return updated, nil
}

// CheckStatus polls the provider for a collection. Terminal collections are
// returned as-is unless force is set.
func (s *Service) CheckStatus(ctx context.Context, businessID, collectionID int64, force bool) (Collection, error) {
	c, err := s.repo.Get(ctx, businessID, collectionID)
	if err != nil {
		return Collection{}, err
	}
	if c.Status.Terminal() && !force {
		return c, nil
	}
	ref := c.ProviderRequestID
	if ref == "" {
		ref = c.IdempotencyKey
	}
	res, err := s.provider.CheckStatus(ctx, ref)
	if err != nil {
		return Collection{}, err
	}
	return s.repo.ApplyResult(ctx, c.ID, res)
}

// HandleWebhook processes one provider callback: verifies the HMAC, drops
// replayed deliveries, matches the collection and applies the result.
func (s *Service) HandleWebhook(ctx context.Context, signature string, body []byte, payload WebhookPayload) (Collection, error) {
	if err := VerifySignature(s.webhookSecret, signature, body); err != nil {
		return Collection{}, err
	}
	if payload.DeliveryID != "" && s.rdb != nil {
		fresh, err := s.rdb.SetNX(ctx, "momo:webhook:"+payload.DeliveryID, 1, webhookDedupeTTL).Result()
		if err == nil && !fresh {
			return Collection{}, ErrDuplicateDelivery
		}
		if err != nil && s.logger != nil {
			s.logger.Warn("momo webhook dedupe unavailable", "error", err)
		}
	}
	c, err := s.repo.FindByProviderIDs(ctx, payload.RequestID, payload.TransactionID, payload.Reference)
	if err != nil {
		return Collection{}, err
	}
	res := normaliseResult(providerResponse{
		Status:        payload.Status,
		RequestID:     payload.RequestID,
		TransactionID: payload.TransactionID,
		FailureReason: payload.FailureReason,
	}, body)
	updated, err := s.repo.ApplyResult(ctx, c.ID, res)
	if err != nil {
		return Collection{}, err
	}
	s.recordAudit(ctx, updated.BusinessID, 0, "momo.webhook", updated)
	return updated, nil
}

// Reconcile polls every PENDING collection older than pollAfter, in parallel,
// and times out those PENDING for longer than timeoutAfter. It is an explicit,
// operator-visible run, not a background retry loop.
func (s *Service) Reconcile(ctx context.Context, pollAfter, timeoutAfter time.Duration) (int, error) {
	now := time.Now()
	pending, err := s.repo.ListPendingBefore(ctx, now.Add(-pollAfter), 500)
	if err != nil {
		return 0, err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileConcurrency)
	for _, c := range pending {
		g.Go(func() error {
			updated, err := s.CheckStatus(ctx, c.BusinessID, c.ID, false)
			if err != nil {
				if s.logger != nil {
					s.logger.Warn("momo reconcile poll failed", "collection_id", c.ID, "error", err)
				}
				updated = c
			}
			if updated.Status == StatusPending && now.Sub(c.CreatedAt) > timeoutAfter {
				_, err := s.repo.ApplyResult(ctx, c.ID, Result{
					Status:        StatusTimeout,
					FailureReason: fmt.Sprintf("no provider confirmation within %s", timeoutAfter),
				})
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return len(pending), err
	}
	return len(pending), nil
}

// Get reads one collection.
func (s *Service) Get(ctx context.Context, businessID, collectionID int64) (Collection, error) {
	return s.repo.Get(ctx, businessID, collectionID)
}

// StatusLogs returns the transition audit trail.
func (s *Service) StatusLogs(ctx context.Context, collectionID int64) ([]StatusLog, error) {
	return s.repo.ListStatusLogs(ctx, collectionID)
}

func (s *Service) recordAudit(ctx context.Context, businessID, actorID int64, action string, c Collection) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		BusinessID: businessID,
		ActorID:    actorID,
		Action:     action,
		Entity:     "momo_collection",
		EntityID:   fmt.Sprintf("%d", c.ID),
		Meta: map[string]any{
			"status":       string(c.Status),
			"amount_pence": c.AmountPence,
		},
	})
}
