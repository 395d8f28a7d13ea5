package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joshowusu-alt/tillflow/internal/platform/db"
)

// ErrEntryNotFound indicates a missing journal entry.
var ErrEntryNotFound = errors.New("ledger: entry not found")

// TxRepository posts journal entries inside a caller-owned transaction, so an
// orchestrator can post in the same atomic scope as the business records the
// entry documents.
type TxRepository interface {
	Post(ctx context.Context, in PostingInput) (JournalEntry, error)
	GetWithLines(ctx context.Context, businessID, entryID int64) (JournalEntry, error)
	GetByReference(ctx context.Context, businessID int64, refType, refID string) (JournalEntry, error)
}

// Repository exposes pool-level journal operations.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, businessID int64, limit int) ([]JournalEntry, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func (r *repository) List(ctx context.Context, businessID int64, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT id, business_id, description, reference_type, reference_id, posted_by, posted_at
FROM journal_entries WHERE business_id=$1 ORDER BY id DESC LIMIT $2`, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.BusinessID, &e.Description, &e.ReferenceType, &e.ReferenceID, &e.PostedBy, &e.PostedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction with journal operations.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) Post(ctx context.Context, in PostingInput) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	entry.BusinessID = in.BusinessID
	entry.Description = in.Description
	entry.ReferenceType = in.ReferenceType
	entry.ReferenceID = in.ReferenceID
	entry.PostedBy = in.PostedBy
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (business_id, description, reference_type, reference_id, posted_by)
VALUES ($1,$2,$3,$4,$5) RETURNING id, posted_at`,
		in.BusinessID, in.Description, in.ReferenceType, in.ReferenceID, nullInt(in.PostedBy))
	if err := row.Scan(&entry.ID, &entry.PostedAt); err != nil {
		return JournalEntry{}, err
	}
	for _, line := range in.Lines {
		var lineID int64
		err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (je_id, account_code, debit_pence, credit_pence)
VALUES ($1,$2,$3,$4) RETURNING id`, entry.ID, line.AccountCode, line.DebitPence, line.CreditPence).Scan(&lineID)
		if err != nil {
			return JournalEntry{}, err
		}
		entry.Lines = append(entry.Lines, JournalLine{
			ID:          lineID,
			JournalID:   entry.ID,
			AccountCode: line.AccountCode,
			DebitPence:  line.DebitPence,
			CreditPence: line.CreditPence,
		})
	}
	return entry, nil
}

func (r *txRepository) GetWithLines(ctx context.Context, businessID, entryID int64) (JournalEntry, error) {
	var entry JournalEntry
	err := r.tx.QueryRow(ctx, `SELECT id, business_id, description, reference_type, reference_id, posted_by, posted_at
FROM journal_entries WHERE business_id=$1 AND id=$2`, businessID, entryID).
		Scan(&entry.ID, &entry.BusinessID, &entry.Description, &entry.ReferenceType, &entry.ReferenceID, &entry.PostedBy, &entry.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	return r.attachLines(ctx, entry)
}

func (r *txRepository) GetByReference(ctx context.Context, businessID int64, refType, refID string) (JournalEntry, error) {
	var entry JournalEntry
	err := r.tx.QueryRow(ctx, `SELECT id, business_id, description, reference_type, reference_id, posted_by, posted_at
FROM journal_entries WHERE business_id=$1 AND reference_type=$2 AND reference_id=$3 ORDER BY id ASC LIMIT 1`,
		businessID, refType, refID).
		Scan(&entry.ID, &entry.BusinessID, &entry.Description, &entry.ReferenceType, &entry.ReferenceID, &entry.PostedBy, &entry.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	return r.attachLines(ctx, entry)
}

func (r *txRepository) attachLines(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, je_id, account_code, debit_pence, credit_pence, created_at
FROM journal_lines WHERE je_id=$1 ORDER BY id ASC`, entry.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.JournalID, &line.AccountCode, &line.DebitPence, &line.CreditPence, &line.CreatedAt); err != nil {
			return JournalEntry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
