package risk

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort abstracts alert persistence and the fact queries the periodic
// scan reads.
type RepositoryPort interface {
	InsertAlert(ctx context.Context, a Alert) (int64, error)
	ListAlerts(ctx context.Context, businessID int64, limit int) ([]Alert, error)
	ListRecentSaleFacts(ctx context.Context, businessID int64, since time.Time, limit int) ([]SaleFacts, error)
	HasAlert(ctx context.Context, businessID int64, kind Kind, refModule, refID string) (bool, error)
}

// Repository persists risk alerts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) InsertAlert(ctx context.Context, a Alert) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO risk_alerts
(business_id, store_id, kind, ref_module, ref_id, message, actor_id)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		a.BusinessID, a.StoreID, string(a.Kind), a.RefModule, a.RefID, a.Message, a.ActorID).Scan(&id)
	return id, err
}

func (r *Repository) ListAlerts(ctx context.Context, businessID int64, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, business_id, store_id, kind, ref_module, ref_id, message, actor_id, created_at
FROM risk_alerts WHERE business_id=$1 ORDER BY id DESC LIMIT $2`, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var alerts []Alert
	for rows.Next() {
		var a Alert
		var kind string
		if err := rows.Scan(&a.ID, &a.BusinessID, &a.StoreID, &kind, &a.RefModule, &a.RefID, &a.Message, &a.ActorID, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Kind = Kind(kind)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// ListRecentSaleFacts reads committed sale headers for the periodic scan. This
// is a read-only reporting query; it never writes back into the sales tables.
func (r *Repository) ListRecentSaleFacts(ctx context.Context, businessID int64, since time.Time, limit int) ([]SaleFacts, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `SELECT business_id, store_id, id, subtotal_pence, discount_pence, total_pence, cost_pence, cashier_id
FROM sales_invoices
WHERE business_id=$1 AND kind='SALE' AND status NOT IN ('VOID') AND created_at >= $2
ORDER BY id DESC LIMIT $3`, businessID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var facts []SaleFacts
	for rows.Next() {
		var f SaleFacts
		if err := rows.Scan(&f.BusinessID, &f.StoreID, &f.InvoiceID, &f.GrossPence, &f.DiscountPence, &f.TotalPence, &f.CostPence, &f.CashierID); err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// HasAlert reports whether an alert of this kind already references the row,
// so the periodic scan does not duplicate what the post-commit hook wrote.
func (r *Repository) HasAlert(ctx context.Context, businessID int64, kind Kind, refModule, refID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM risk_alerts WHERE business_id=$1 AND kind=$2 AND ref_module=$3 AND ref_id=$4)`,
		businessID, string(kind), refModule, refID).Scan(&exists)
	return exists, err
}
