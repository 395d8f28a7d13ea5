package sales

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joshowusu-alt/tillflow/internal/money"
)

// InvoiceTxRepository exposes invoice writes inside a caller-owned transaction.
type InvoiceTxRepository interface {
	CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	CreateLine(ctx context.Context, line Line) (Line, error)
	CreatePayment(ctx context.Context, p PaymentRow) (PaymentRow, error)
	GetInvoiceForUpdate(ctx context.Context, businessID, invoiceID int64) (Invoice, error)
	GetLines(ctx context.Context, invoiceID int64) ([]Line, error)
	GetPayments(ctx context.Context, invoiceID int64) ([]PaymentRow, error)
	UpdateCost(ctx context.Context, invoiceID, costPence int64) error
	UpdateStatus(ctx context.Context, invoiceID int64, status InvoiceStatus) error
	UpdatePaid(ctx context.Context, invoiceID, paidPence int64, status money.PaymentStatus) error
	UpdateAmendedTotals(ctx context.Context, inv Invoice) error
	DeleteLines(ctx context.Context, invoiceID int64, lineIDs []int64) error
}

// ReadRepository serves pool-level invoice reads.
type ReadRepository struct {
	pool *pgxpool.Pool
}

// NewReadRepository constructs ReadRepository.
func NewReadRepository(pool *pgxpool.Pool) *ReadRepository {
	return &ReadRepository{pool: pool}
}

const invoiceColumns = `id, business_id, store_id, till_id, COALESCE(shift_id, 0), COALESCE(customer_id, 0), status,
subtotal_pence, discount_pence, order_discount_pence, vat_pence, total_pence, paid_pence, cost_pence,
payment_status, cashier_id, note, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var status, payStatus string
	err := row.Scan(&inv.ID, &inv.BusinessID, &inv.StoreID, &inv.TillID, &inv.ShiftID, &inv.CustomerID, &status,
		&inv.SubtotalPence, &inv.DiscountPence, &inv.OrderDiscountPence, &inv.VATPence, &inv.TotalPence,
		&inv.PaidPence, &inv.CostPence, &payStatus, &inv.CashierID, &inv.Note, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	inv.Status = InvoiceStatus(status)
	inv.PaymentStatus = money.PaymentStatus(payStatus)
	return inv, nil
}

// Get reads one invoice with its lines and payments.
func (r *ReadRepository) Get(ctx context.Context, businessID, invoiceID int64) (Invoice, []Line, []PaymentRow, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+`
FROM sales_invoices WHERE business_id=$1 AND id=$2`, businessID, invoiceID))
	if err != nil {
		return Invoice{}, nil, nil, err
	}
	lines, err := queryLines(ctx, r.pool, invoiceID)
	if err != nil {
		return Invoice{}, nil, nil, err
	}
	payments, err := queryPayments(ctx, r.pool, invoiceID)
	if err != nil {
		return Invoice{}, nil, nil, err
	}
	return inv, lines, payments, nil
}

// List returns the most recent invoices for a store.
func (r *ReadRepository) List(ctx context.Context, businessID, storeID int64, limit int) ([]Invoice, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+`
FROM sales_invoices WHERE business_id=$1 AND store_id=$2 ORDER BY id DESC LIMIT $3`, businessID, storeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q querier, invoiceID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, invoice_id, product_id, unit_name, qty_in_unit, unit_factor, qty_base,
unit_price_pence, subtotal_pence, discount_pence, promo_pence, net_pence, vat_pence, total_pence, unit_cost_pence
FROM sales_invoice_lines WHERE invoice_id=$1 ORDER BY id ASC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.ProductID, &l.UnitName, &l.QtyInUnit, &l.UnitFactor, &l.QtyBase,
			&l.UnitPricePence, &l.SubtotalPence, &l.DiscountPence, &l.PromoPence, &l.NetPence, &l.VATPence,
			&l.TotalPence, &l.UnitCostPence); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func queryPayments(ctx context.Context, q querier, invoiceID int64) ([]PaymentRow, error) {
	rows, err := q.Query(ctx, `SELECT id, invoice_id, method, amount_pence, COALESCE(collection_id, 0), created_at
FROM sales_invoice_payments WHERE invoice_id=$1 ORDER BY id ASC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []PaymentRow
	for rows.Next() {
		var p PaymentRow
		var method string
		if err := rows.Scan(&p.ID, &p.InvoiceID, &method, &p.AmountPence, &p.CollectionID, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Method = money.Method(method)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

type invoiceTxRepository struct {
	tx pgx.Tx
}

// NewInvoiceTxRepository wraps an open transaction with invoice writes.
func NewInvoiceTxRepository(tx pgx.Tx) InvoiceTxRepository {
	return &invoiceTxRepository{tx: tx}
}

func (r *invoiceTxRepository) CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO sales_invoices
(business_id, store_id, till_id, shift_id, customer_id, status, subtotal_pence, discount_pence,
order_discount_pence, vat_pence, total_pence, paid_pence, cost_pence, payment_status, cashier_id, note, kind)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,'SALE')
RETURNING `+invoiceColumns,
		inv.BusinessID, inv.StoreID, inv.TillID, nullInt(inv.ShiftID), nullInt(inv.CustomerID), string(inv.Status),
		inv.SubtotalPence, inv.DiscountPence, inv.OrderDiscountPence, inv.VATPence, inv.TotalPence,
		inv.PaidPence, inv.CostPence, string(inv.PaymentStatus), inv.CashierID, inv.Note)
	return scanInvoice(row)
}

func (r *invoiceTxRepository) CreateLine(ctx context.Context, line Line) (Line, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO sales_invoice_lines
(invoice_id, product_id, unit_name, qty_in_unit, unit_factor, qty_base, unit_price_pence, subtotal_pence,
discount_pence, promo_pence, net_pence, vat_pence, total_pence, unit_cost_pence)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id`,
		line.InvoiceID, line.ProductID, line.UnitName, line.QtyInUnit, line.UnitFactor, line.QtyBase,
		line.UnitPricePence, line.SubtotalPence, line.DiscountPence, line.PromoPence, line.NetPence,
		line.VATPence, line.TotalPence, line.UnitCostPence).Scan(&line.ID)
	return line, err
}

func (r *invoiceTxRepository) CreatePayment(ctx context.Context, p PaymentRow) (PaymentRow, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO sales_invoice_payments
(invoice_id, method, amount_pence, collection_id)
VALUES ($1,$2,$3,$4) RETURNING id, created_at`,
		p.InvoiceID, string(p.Method), p.AmountPence, nullInt(p.CollectionID)).Scan(&p.ID, &p.CreatedAt)
	return p, err
}

func (r *invoiceTxRepository) GetInvoiceForUpdate(ctx context.Context, businessID, invoiceID int64) (Invoice, error) {
	return scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+`
FROM sales_invoices WHERE business_id=$1 AND id=$2 FOR UPDATE`, businessID, invoiceID))
}

func (r *invoiceTxRepository) GetLines(ctx context.Context, invoiceID int64) ([]Line, error) {
	return queryLines(ctx, r.tx, invoiceID)
}

func (r *invoiceTxRepository) GetPayments(ctx context.Context, invoiceID int64) ([]PaymentRow, error) {
	return queryPayments(ctx, r.tx, invoiceID)
}

func (r *invoiceTxRepository) UpdateCost(ctx context.Context, invoiceID, costPence int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales_invoices SET cost_pence=$2, updated_at=NOW() WHERE id=$1`, invoiceID, costPence)
	return err
}

func (r *invoiceTxRepository) UpdateStatus(ctx context.Context, invoiceID int64, status InvoiceStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales_invoices SET status=$2, updated_at=NOW() WHERE id=$1`, invoiceID, string(status))
	return err
}

func (r *invoiceTxRepository) UpdatePaid(ctx context.Context, invoiceID, paidPence int64, status money.PaymentStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales_invoices SET paid_pence=$2, payment_status=$3, updated_at=NOW() WHERE id=$1`,
		invoiceID, paidPence, string(status))
	return err
}

func (r *invoiceTxRepository) UpdateAmendedTotals(ctx context.Context, inv Invoice) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales_invoices
SET subtotal_pence=$2, discount_pence=$3, order_discount_pence=0, vat_pence=$4, total_pence=$5,
paid_pence=$6, cost_pence=$7, payment_status=$8, updated_at=NOW()
WHERE id=$1`, inv.ID, inv.SubtotalPence, inv.DiscountPence, inv.VATPence, inv.TotalPence,
		inv.PaidPence, inv.CostPence, string(inv.PaymentStatus))
	return err
}

func (r *invoiceTxRepository) DeleteLines(ctx context.Context, invoiceID int64, lineIDs []int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM sales_invoice_lines WHERE invoice_id=$1 AND id=ANY($2)`, invoiceID, lineIDs)
	return err
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
