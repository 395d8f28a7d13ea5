package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joshowusu-alt/tillflow/internal/ledger"
	"github.com/joshowusu-alt/tillflow/internal/platform/db"
)

// TxRepository exposes the inventory operations that run inside a caller-owned
// transaction. Decrement is an atomic conditional update, not read-then-write,
// which closes the race between two concurrent sales of the last unit.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, storeID, productID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	Decrement(ctx context.Context, storeID, productID, qtyBase int64) (Balance, error)
	InsertMovement(ctx context.Context, m Movement) (int64, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository, ledger.TxRepository) error) error
	Balance(ctx context.Context, storeID, productID int64) (Balance, error)
	ListMovements(ctx context.Context, businessID, storeID, productID int64, limit int) ([]Movement, error)
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs the callback inside one RepeatableRead transaction, handing it
// both the inventory surface and a journal surface bound to the same tx.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository, ledger.TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx), ledger.NewTxRepository(tx))
	})
}

// Balance reads the current balance outside any transaction.
func (r *Repository) Balance(ctx context.Context, storeID, productID int64) (Balance, error) {
	var b Balance
	err := r.pool.QueryRow(ctx, `SELECT store_id, product_id, qty_on_hand_base, avg_cost_base_pence, updated_at
FROM inventory_balances WHERE store_id=$1 AND product_id=$2`, storeID, productID).
		Scan(&b.StoreID, &b.ProductID, &b.QtyOnHandBase, &b.AvgCostBasePence, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{StoreID: storeID, ProductID: productID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

// ListMovements returns the most recent movements for a store/product.
func (r *Repository) ListMovements(ctx context.Context, businessID, storeID, productID int64, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, business_id, store_id, product_id, movement_type, qty_base, unit_cost_pence,
ref_module, ref_id, note, actor_id, posted_at
FROM stock_movements WHERE business_id=$1 AND store_id=$2 AND product_id=$3 ORDER BY id DESC LIMIT $4`,
		businessID, storeID, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		var mt string
		if err := rows.Scan(&m.ID, &m.BusinessID, &m.StoreID, &m.ProductID, &mt, &m.QtyBase, &m.UnitCostPence,
			&m.RefModule, &m.RefID, &m.Note, &m.ActorID, &m.PostedAt); err != nil {
			return nil, err
		}
		m.Type = MovementType(mt)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction with inventory operations so
// orchestrators can compose inventory writes into their own atomic scope.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, storeID, productID int64) (Balance, error) {
	var b Balance
	err := r.tx.QueryRow(ctx, `SELECT store_id, product_id, qty_on_hand_base, avg_cost_base_pence, updated_at
FROM inventory_balances WHERE store_id=$1 AND product_id=$2 FOR UPDATE`, storeID, productID).
		Scan(&b.StoreID, &b.ProductID, &b.QtyOnHandBase, &b.AvgCostBasePence, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{StoreID: storeID, ProductID: productID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

func (r *txRepository) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_balances (store_id, product_id, qty_on_hand_base, avg_cost_base_pence, updated_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (store_id, product_id) DO UPDATE
SET qty_on_hand_base=EXCLUDED.qty_on_hand_base, avg_cost_base_pence=EXCLUDED.avg_cost_base_pence, updated_at=NOW()`,
		balance.StoreID, balance.ProductID, balance.QtyOnHandBase, balance.AvgCostBasePence)
	return err
}

func (r *txRepository) Decrement(ctx context.Context, storeID, productID, qtyBase int64) (Balance, error) {
	if qtyBase <= 0 {
		return Balance{}, ErrInvalidQuantity
	}
	var b Balance
	err := r.tx.QueryRow(ctx, `UPDATE inventory_balances
SET qty_on_hand_base = qty_on_hand_base - $3, updated_at = NOW()
WHERE store_id=$1 AND product_id=$2 AND qty_on_hand_base >= $3
RETURNING store_id, product_id, qty_on_hand_base, avg_cost_base_pence, updated_at`,
		storeID, productID, qtyBase).
		Scan(&b.StoreID, &b.ProductID, &b.QtyOnHandBase, &b.AvgCostBasePence, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, ErrInsufficientStock
		}
		return Balance{}, err
	}
	return b, nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements
(business_id, store_id, product_id, movement_type, qty_base, unit_cost_pence, ref_module, ref_id, note, actor_id, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,COALESCE($11,NOW())) RETURNING id`,
		m.BusinessID, m.StoreID, m.ProductID, string(m.Type), m.QtyBase, m.UnitCostPence,
		m.RefModule, m.RefID, m.Note, m.ActorID, nullTime(m.PostedAt)).Scan(&id)
	return id, err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
