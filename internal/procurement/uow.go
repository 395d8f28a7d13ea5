package procurement

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joshowusu-alt/tillflow/internal/drawer"
	"github.com/joshowusu-alt/tillflow/internal/inventory"
	"github.com/joshowusu-alt/tillflow/internal/ledger"
	"github.com/joshowusu-alt/tillflow/internal/platform/db"
)

// TxSurface binds every ledger a purchase touches to one open transaction.
type TxSurface interface {
	Purchases() PurchaseTxRepository
	Inventory() inventory.TxRepository
	Drawer() drawer.TxRepository
	Ledger() ledger.TxRepository
}

// UnitOfWork opens one atomic scope over the full TxSurface.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(context.Context, TxSurface) error) error
}

type pgxSurface struct {
	purchases PurchaseTxRepository
	inventory inventory.TxRepository
	drawer    drawer.TxRepository
	ledger    ledger.TxRepository
}

func (s *pgxSurface) Purchases() PurchaseTxRepository   { return s.purchases }
func (s *pgxSurface) Inventory() inventory.TxRepository { return s.inventory }
func (s *pgxSurface) Drawer() drawer.TxRepository       { return s.drawer }
func (s *pgxSurface) Ledger() ledger.TxRepository       { return s.ledger }

// PgxUnitOfWork is the production UnitOfWork on a pgx pool.
type PgxUnitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork constructs PgxUnitOfWork.
func NewUnitOfWork(pool *pgxpool.Pool) *PgxUnitOfWork {
	return &PgxUnitOfWork{pool: pool}
}

// WithTx runs the callback inside one RepeatableRead transaction.
func (u *PgxUnitOfWork) WithTx(ctx context.Context, fn func(context.Context, TxSurface) error) error {
	return db.WithTx(ctx, u.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgxSurface{
			purchases: NewPurchaseTxRepository(tx),
			inventory: inventory.NewTxRepository(tx),
			drawer:    drawer.NewTxRepository(tx),
			ledger:    ledger.NewTxRepository(tx),
		})
	})
}
