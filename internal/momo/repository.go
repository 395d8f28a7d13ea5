package momo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joshowusu-alt/tillflow/internal/platform/db"
)

// ErrDuplicateKey indicates a second insert with an idempotency key already
// used by this business.
var ErrDuplicateKey = errors.New("momo: idempotency key already used")

// TxRepository exposes the collection operations a sale orchestrator needs
// inside its own transaction.
type TxRepository interface {
	// Attach links a collection to an invoice. The guard is the conditional
	// UPDATE itself: only a CONFIRMED, unattached collection with exactly the
	// requested amount matches, so a concurrent second attach sees zero rows.
	Attach(ctx context.Context, businessID, collectionID, invoiceID, amountPence int64) error
	Get(ctx context.Context, businessID, collectionID int64) (Collection, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	Create(ctx context.Context, c Collection) (Collection, error)
	Get(ctx context.Context, businessID, collectionID int64) (Collection, error)
	GetByIdempotencyKey(ctx context.Context, businessID int64, key string) (Collection, error)
	FindByProviderIDs(ctx context.Context, requestID, transactionID, reference string) (Collection, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]Collection, error)
	ApplyResult(ctx context.Context, collectionID int64, res Result) (Collection, error)
	ListStatusLogs(ctx context.Context, collectionID int64) ([]StatusLog, error)
}

const collectionColumns = `id, business_id, idempotency_key, msisdn, network, amount_pence, currency_code,
status, provider_status, provider_request_id, provider_transaction_id, failure_reason,
COALESCE(invoice_id, 0), requested_by, created_at, updated_at`

// Repository persists collections in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanCollection(row pgx.Row) (Collection, error) {
	var c Collection
	var status string
	err := row.Scan(&c.ID, &c.BusinessID, &c.IdempotencyKey, &c.Msisdn, &c.Network, &c.AmountPence, &c.CurrencyCode,
		&status, &c.ProviderStatus, &c.ProviderRequestID, &c.ProviderTransactionID, &c.FailureReason,
		&c.InvoiceID, &c.RequestedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Collection{}, ErrCollectionNotFound
		}
		return Collection{}, err
	}
	c.Status = Status(status)
	return c, nil
}

// Create inserts a PENDING collection and its first status log row. A unique
// index on (business_id, idempotency_key) turns a duplicate into
// ErrDuplicateKey so the caller can return the original record.
func (r *Repository) Create(ctx context.Context, c Collection) (Collection, error) {
	var created Collection
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `INSERT INTO momo_collections
(business_id, idempotency_key, msisdn, network, amount_pence, currency_code, status, requested_by)
VALUES ($1,$2,$3,$4,$5,$6,'PENDING',$7)
RETURNING `+collectionColumns, c.BusinessID, c.IdempotencyKey, c.Msisdn, c.Network, c.AmountPence, c.CurrencyCode, nullInt(c.RequestedBy))
		var err error
		created, err = scanCollection(row)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO momo_status_logs (collection_id, status, provider_status, raw_payload)
VALUES ($1,'PENDING','',NULL)`, created.ID)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Collection{}, ErrDuplicateKey
		}
		return Collection{}, err
	}
	return created, nil
}

// Get reads one collection.
func (r *Repository) Get(ctx context.Context, businessID, collectionID int64) (Collection, error) {
	return scanCollection(r.pool.QueryRow(ctx, `SELECT `+collectionColumns+`
FROM momo_collections WHERE business_id=$1 AND id=$2`, businessID, collectionID))
}

// GetByIdempotencyKey reads the collection a key maps to, if any.
func (r *Repository) GetByIdempotencyKey(ctx context.Context, businessID int64, key string) (Collection, error) {
	return scanCollection(r.pool.QueryRow(ctx, `SELECT `+collectionColumns+`
FROM momo_collections WHERE business_id=$1 AND idempotency_key=$2`, businessID, key))
}

// FindByProviderIDs matches a webhook to its collection by any of the ids the
// provider echoes back.
func (r *Repository) FindByProviderIDs(ctx context.Context, requestID, transactionID, reference string) (Collection, error) {
	return scanCollection(r.pool.QueryRow(ctx, `SELECT `+collectionColumns+`
FROM momo_collections
WHERE (provider_request_id <> '' AND provider_request_id = $1)
   OR (provider_transaction_id <> '' AND provider_transaction_id = $2)
   OR ($3 <> '' AND idempotency_key = $3)
ORDER BY id ASC LIMIT 1`, requestID, transactionID, reference))
}

// ListPendingBefore returns PENDING collections created before the cutoff.
func (r *Repository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]Collection, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+collectionColumns+`
FROM momo_collections WHERE status='PENDING' AND created_at < $1 ORDER BY id ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ApplyResult is the single convergence point for all transitions. The row is
// locked, terminal-state rules are enforced, the status log row is written,
// then the collection is updated, all in one transaction.
func (r *Repository) ApplyResult(ctx context.Context, collectionID int64, res Result) (Collection, error) {
	var updated Collection
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := scanCollection(tx.QueryRow(ctx, `SELECT `+collectionColumns+`
FROM momo_collections WHERE id=$1 FOR UPDATE`, collectionID))
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			if res.Status == StatusConfirmed && current.Status != StatusConfirmed {
				return ErrConfirmAfterFailure
			}
			// Replayed webhook or duplicate poll for an already-settled
			// collection; nothing to do.
			updated = current
			return nil
		}
		if _, err := tx.Exec(ctx, `INSERT INTO momo_status_logs (collection_id, status, provider_status, raw_payload)
VALUES ($1,$2,$3,$4)`, collectionID, string(res.Status), res.ProviderStatus, nullBytes(res.Raw)); err != nil {
			return err
		}
		updated, err = scanCollection(tx.QueryRow(ctx, `UPDATE momo_collections
SET status=$2, provider_status=$3,
    provider_request_id=COALESCE(NULLIF($4,''), provider_request_id),
    provider_transaction_id=COALESCE(NULLIF($5,''), provider_transaction_id),
    failure_reason=$6, updated_at=NOW()
WHERE id=$1
RETURNING `+collectionColumns, collectionID, string(res.Status), res.ProviderStatus,
			res.ProviderRequestID, res.ProviderTransactionID, res.FailureReason))
		return err
	})
	if err != nil {
		return Collection{}, err
	}
	return updated, nil
}

// ListStatusLogs returns the transition audit trail for a collection.
func (r *Repository) ListStatusLogs(ctx context.Context, collectionID int64) ([]StatusLog, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, collection_id, status, provider_status, COALESCE(raw_payload, ''), created_at
FROM momo_status_logs WHERE collection_id=$1 ORDER BY id ASC`, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []StatusLog
	for rows.Next() {
		var l StatusLog
		var status string
		var raw []byte
		if err := rows.Scan(&l.ID, &l.CollectionID, &status, &l.ProviderStatus, &raw, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Status = Status(status)
		l.RawPayload = raw
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction with the operations a sale needs.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) Attach(ctx context.Context, businessID, collectionID, invoiceID, amountPence int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE momo_collections
SET invoice_id=$3, updated_at=NOW()
WHERE business_id=$1 AND id=$2 AND status='CONFIRMED' AND invoice_id IS NULL AND amount_pence=$4`,
		businessID, collectionID, invoiceID, amountPence)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCollectionNotUsable
	}
	return nil
}

func (r *txRepository) Get(ctx context.Context, businessID, collectionID int64) (Collection, error) {
	return scanCollection(r.tx.QueryRow(ctx, `SELECT `+collectionColumns+`
FROM momo_collections WHERE business_id=$1 AND id=$2`, businessID, collectionID))
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
