package sales

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joshowusu-alt/tillflow/internal/drawer"
	"github.com/joshowusu-alt/tillflow/internal/inventory"
	"github.com/joshowusu-alt/tillflow/internal/ledger"
	"github.com/joshowusu-alt/tillflow/internal/momo"
	"github.com/joshowusu-alt/tillflow/internal/platform/db"
)

// TxSurface hands the orchestrator every ledger it touches, all bound to the
// same open transaction, so invoice, stock, drawer, journal and collection
// writes commit or roll back together.
type TxSurface interface {
	Invoices() InvoiceTxRepository
	Inventory() inventory.TxRepository
	Drawer() drawer.TxRepository
	Ledger() ledger.TxRepository
	Collections() momo.TxRepository
}

// UnitOfWork opens one atomic scope over the full TxSurface.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(context.Context, TxSurface) error) error
}

type pgxSurface struct {
	invoices    InvoiceTxRepository
	inventory   inventory.TxRepository
	drawer      drawer.TxRepository
	ledger      ledger.TxRepository
	collections momo.TxRepository
}

func (s *pgxSurface) Invoices() InvoiceTxRepository     { return s.invoices }
func (s *pgxSurface) Inventory() inventory.TxRepository { return s.inventory }
func (s *pgxSurface) Drawer() drawer.TxRepository       { return s.drawer }
func (s *pgxSurface) Ledger() ledger.TxRepository       { return s.ledger }
func (s *pgxSurface) Collections() momo.TxRepository    { return s.collections }

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
			invoices:    NewInvoiceTxRepository(tx),
			inventory:   inventory.NewTxRepository(tx),
			drawer:      drawer.NewTxRepository(tx),
			ledger:      ledger.NewTxRepository(tx),
			collections: momo.NewTxRepository(tx),
		})
	})
}
