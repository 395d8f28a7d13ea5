package products

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository resolves catalogue facts for pricing and costing.
type Repository interface {
	Get(ctx context.Context, businessID, productID int64) (Product, error)
	GetUnit(ctx context.Context, productID int64, unitName string) (Unit, error)
	GetMany(ctx context.Context, businessID int64, productIDs []int64) (map[int64]Product, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const productColumns = `id, business_id, code, name, base_unit, base_price_pence, default_cost_pence,
vat_rate_bps, promo_buy_qty, promo_get_qty, is_active, created_at, updated_at`

func (r *repository) Get(ctx context.Context, businessID, productID int64) (Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE business_id=$1 AND id=$2 AND is_active`, businessID, productID)
	return scanProduct(row)
}

func (r *repository) GetUnit(ctx context.Context, productID int64, unitName string) (Unit, error) {
	var u Unit
	err := r.db.QueryRow(ctx, `SELECT product_id, name, factor FROM product_units WHERE product_id=$1 AND name=$2`,
		productID, unitName).Scan(&u.ProductID, &u.Name, &u.Factor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Unit{}, ErrUnknownUnit
		}
		return Unit{}, err
	}
	return u, nil
}

func (r *repository) GetMany(ctx context.Context, businessID int64, productIDs []int64) (map[int64]Product, error) {
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE business_id=$1 AND id=ANY($2) AND is_active`,
		businessID, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]Product, len(productIDs))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.BusinessID, &p.Code, &p.Name, &p.BaseUnit, &p.BasePricePence, &p.DefaultCostPence,
		&p.VATRateBps, &p.PromoBuyQty, &p.PromoGetQty, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}
