package procurement

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joshowusu-alt/tillflow/internal/money"
)

// PurchaseTxRepository exposes purchase writes inside a caller-owned transaction.
type PurchaseTxRepository interface {
	CreatePurchase(ctx context.Context, p Purchase) (Purchase, error)
	CreateLine(ctx context.Context, line Line) (Line, error)
	CreatePayment(ctx context.Context, p PaymentRow) (PaymentRow, error)
	GetPurchaseForUpdate(ctx context.Context, businessID, purchaseID int64) (Purchase, error)
	GetLines(ctx context.Context, purchaseID int64) ([]Line, error)
	GetPayments(ctx context.Context, purchaseID int64) ([]PaymentRow, error)
	UpdateStatus(ctx context.Context, purchaseID int64, status PurchaseStatus) error
}

// ReadRepository serves pool-level purchase reads.
type ReadRepository struct {
	pool *pgxpool.Pool
}

// NewReadRepository constructs ReadRepository.
func NewReadRepository(pool *pgxpool.Pool) *ReadRepository {
	return &ReadRepository{pool: pool}
}

const purchaseColumns = `id, business_id, store_id, supplier_id, COALESCE(shift_id, 0), status,
subtotal_pence, vat_pence, total_pence, paid_pence, payment_status, note, created_by, created_at, updated_at`

func scanPurchase(row pgx.Row) (Purchase, error) {
	var p Purchase
	var status, payStatus string
	err := row.Scan(&p.ID, &p.BusinessID, &p.StoreID, &p.SupplierID, &p.ShiftID, &status,
		&p.SubtotalPence, &p.VATPence, &p.TotalPence, &p.PaidPence, &payStatus,
		&p.Note, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, ErrPurchaseNotFound
		}
		return Purchase{}, err
	}
	p.Status = PurchaseStatus(status)
	p.PaymentStatus = money.PaymentStatus(payStatus)
	return p, nil
}

// Get reads one purchase with its lines and payments.
func (r *ReadRepository) Get(ctx context.Context, businessID, purchaseID int64) (Purchase, []Line, []PaymentRow, error) {
	p, err := scanPurchase(r.pool.QueryRow(ctx, `SELECT `+purchaseColumns+`
FROM purchases WHERE business_id=$1 AND id=$2`, businessID, purchaseID))
	if err != nil {
		return Purchase{}, nil, nil, err
	}
	lines, err := queryLines(ctx, r.pool, purchaseID)
	if err != nil {
		return Purchase{}, nil, nil, err
	}
	payments, err := queryPayments(ctx, r.pool, purchaseID)
	if err != nil {
		return Purchase{}, nil, nil, err
	}
	return p, lines, payments, nil
}

// List returns the most recent purchases for a store.
func (r *ReadRepository) List(ctx context.Context, businessID, storeID int64, limit int) ([]Purchase, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+purchaseColumns+`
FROM purchases WHERE business_id=$1 AND store_id=$2 ORDER BY id DESC LIMIT $3`, businessID, storeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var purchases []Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q querier, purchaseID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, purchase_id, product_id, qty_base, unit_cost_pence, cost_pence, vat_pence
FROM purchase_lines WHERE purchase_id=$1 ORDER BY id ASC`, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.PurchaseID, &l.ProductID, &l.QtyBase, &l.UnitCostPence,
			&l.CostPence, &l.VATPence); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func queryPayments(ctx context.Context, q querier, purchaseID int64) ([]PaymentRow, error) {
	rows, err := q.Query(ctx, `SELECT id, purchase_id, method, amount_pence, created_at
FROM purchase_payments WHERE purchase_id=$1 ORDER BY id ASC`, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []PaymentRow
	for rows.Next() {
		var p PaymentRow
		var method string
		if err := rows.Scan(&p.ID, &p.PurchaseID, &method, &p.AmountPence, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Method = money.Method(method)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

type purchaseTxRepository struct {
	tx pgx.Tx
}

// NewPurchaseTxRepository wraps an open transaction with purchase writes.
func NewPurchaseTxRepository(tx pgx.Tx) PurchaseTxRepository {
	return &purchaseTxRepository{tx: tx}
}

func (r *purchaseTxRepository) CreatePurchase(ctx context.Context, p Purchase) (Purchase, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO purchases
(business_id, store_id, supplier_id, shift_id, status, subtotal_pence, vat_pence, total_pence,
paid_pence, payment_status, note, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING `+purchaseColumns,
		p.BusinessID, p.StoreID, p.SupplierID, nullInt(p.ShiftID), string(p.Status),
		p.SubtotalPence, p.VATPence, p.TotalPence, p.PaidPence, string(p.PaymentStatus),
		p.Note, p.CreatedBy)
	return scanPurchase(row)
}

func (r *purchaseTxRepository) CreateLine(ctx context.Context, line Line) (Line, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_lines
(purchase_id, product_id, qty_base, unit_cost_pence, cost_pence, vat_pence)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		line.PurchaseID, line.ProductID, line.QtyBase, line.UnitCostPence,
		line.CostPence, line.VATPence).Scan(&line.ID)
	return line, err
}

func (r *purchaseTxRepository) CreatePayment(ctx context.Context, p PaymentRow) (PaymentRow, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_payments (purchase_id, method, amount_pence)
VALUES ($1,$2,$3) RETURNING id, created_at`,
		p.PurchaseID, string(p.Method), p.AmountPence).Scan(&p.ID, &p.CreatedAt)
	return p, err
}

func (r *purchaseTxRepository) GetPurchaseForUpdate(ctx context.Context, businessID, purchaseID int64) (Purchase, error) {
	return scanPurchase(r.tx.QueryRow(ctx, `SELECT `+purchaseColumns+`
FROM purchases WHERE business_id=$1 AND id=$2 FOR UPDATE`, businessID, purchaseID))
}

func (r *purchaseTxRepository) GetLines(ctx context.Context, purchaseID int64) ([]Line, error) {
	return queryLines(ctx, r.tx, purchaseID)
}

func (r *purchaseTxRepository) GetPayments(ctx context.Context, purchaseID int64) ([]PaymentRow, error) {
	return queryPayments(ctx, r.tx, purchaseID)
}

func (r *purchaseTxRepository) UpdateStatus(ctx context.Context, purchaseID int64, status PurchaseStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchases SET status=$2, updated_at=NOW() WHERE id=$1`,
		purchaseID, string(status))
	return err
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
