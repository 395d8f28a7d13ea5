package drawer

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joshowusu-alt/tillflow/internal/platform/db"
)

// TxRepository exposes the drawer operations that run inside a caller-owned
// transaction so orchestrators can move cash in the same atomic scope as the
// sale or payout that caused it.
type TxRepository interface {
	GetOpenShiftForUpdate(ctx context.Context, businessID, tillID int64) (Shift, error)
	UpdateExpectedCash(ctx context.Context, shiftID, expectedPence int64) error
	InsertEntry(ctx context.Context, e Entry) (int64, error)
	CloseShift(ctx context.Context, shiftID, countedPence, variancePence, actorID int64) (Shift, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	OpenShift(ctx context.Context, in OpenShiftInput) (Shift, error)
	GetOpenShift(ctx context.Context, businessID, tillID int64) (Shift, error)
	ListEntries(ctx context.Context, shiftID int64, limit int) ([]Entry, error)
}

// Repository persists shifts and drawer entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs the callback inside one RepeatableRead transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// OpenShift inserts a new OPEN shift. A partial unique index on
// (till_id) WHERE status='OPEN' makes the one-open-shift-per-till rule hold
// under concurrency; the 23505 from a second opener maps to ErrShiftAlreadyOpen.
func (r *Repository) OpenShift(ctx context.Context, in OpenShiftInput) (Shift, error) {
	var s Shift
	err := r.pool.QueryRow(ctx, `INSERT INTO drawer_shifts
(business_id, store_id, till_id, status, opening_cash_pence, expected_cash_pence, opened_by)
VALUES ($1,$2,$3,'OPEN',$4,$4,$5)
RETURNING id, business_id, store_id, till_id, status, opening_cash_pence, expected_cash_pence, opened_by, opened_at`,
		in.BusinessID, in.StoreID, in.TillID, in.OpeningCashPence, in.ActorID).
		Scan(&s.ID, &s.BusinessID, &s.StoreID, &s.TillID, &s.Status, &s.OpeningCashPence, &s.ExpectedCashPence, &s.OpenedBy, &s.OpenedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Shift{}, ErrShiftAlreadyOpen
		}
		return Shift{}, err
	}
	return s, nil
}

// GetOpenShift reads the till's open shift outside any transaction.
func (r *Repository) GetOpenShift(ctx context.Context, businessID, tillID int64) (Shift, error) {
	return scanOpenShift(r.pool.QueryRow(ctx, openShiftQuery, businessID, tillID))
}

// ListEntries returns the most recent drawer entries for a shift.
func (r *Repository) ListEntries(ctx context.Context, shiftID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, shift_id, entry_type, delta_pence, before_pence, after_pence,
ref_module, ref_id, note, actor_id, created_at
FROM drawer_entries WHERE shift_id=$1 ORDER BY id DESC LIMIT $2`, shiftID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		var et string
		if err := rows.Scan(&e.ID, &e.ShiftID, &et, &e.DeltaPence, &e.BeforePence, &e.AfterPence,
			&e.RefModule, &e.RefID, &e.Note, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = EntryType(et)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const openShiftQuery = `SELECT id, business_id, store_id, till_id, status, opening_cash_pence, expected_cash_pence, opened_by, opened_at
FROM drawer_shifts WHERE business_id=$1 AND till_id=$2 AND status='OPEN'`

func scanOpenShift(row pgx.Row) (Shift, error) {
	var s Shift
	err := row.Scan(&s.ID, &s.BusinessID, &s.StoreID, &s.TillID, &s.Status, &s.OpeningCashPence, &s.ExpectedCashPence, &s.OpenedBy, &s.OpenedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shift{}, ErrNoOpenShift
		}
		return Shift{}, err
	}
	return s, nil
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction with drawer operations.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) GetOpenShiftForUpdate(ctx context.Context, businessID, tillID int64) (Shift, error) {
	return scanOpenShift(r.tx.QueryRow(ctx, openShiftQuery+` FOR UPDATE`, businessID, tillID))
}

func (r *txRepository) UpdateExpectedCash(ctx context.Context, shiftID, expectedPence int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE drawer_shifts SET expected_cash_pence=$2
WHERE id=$1 AND status='OPEN'`, shiftID, expectedPence)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoOpenShift
	}
	return nil
}

func (r *txRepository) InsertEntry(ctx context.Context, e Entry) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO drawer_entries
(shift_id, entry_type, delta_pence, before_pence, after_pence, ref_module, ref_id, note, actor_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		e.ShiftID, string(e.Type), e.DeltaPence, e.BeforePence, e.AfterPence,
		e.RefModule, e.RefID, e.Note, e.ActorID).Scan(&id)
	return id, err
}

func (r *txRepository) CloseShift(ctx context.Context, shiftID, countedPence, variancePence, actorID int64) (Shift, error) {
	var s Shift
	err := r.tx.QueryRow(ctx, `UPDATE drawer_shifts
SET status='CLOSED', counted_cash_pence=$2, variance_pence=$3, closed_by=$4, closed_at=NOW()
WHERE id=$1 AND status='OPEN'
RETURNING id, business_id, store_id, till_id, status, opening_cash_pence, expected_cash_pence,
counted_cash_pence, variance_pence, opened_by, closed_by, opened_at, closed_at`, shiftID, countedPence, variancePence, actorID).
		Scan(&s.ID, &s.BusinessID, &s.StoreID, &s.TillID, &s.Status, &s.OpeningCashPence, &s.ExpectedCashPence,
			&s.CountedCashPence, &s.VariancePence, &s.OpenedBy, &s.ClosedBy, &s.OpenedAt, &s.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shift{}, ErrNoOpenShift
		}
		return Shift{}, err
	}
	return s, nil
}
