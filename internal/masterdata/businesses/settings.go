// Package businesses resolves per-business commerce settings.
package businesses

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Settings groups the business-wide switches the orchestrators consult.
type Settings struct {
	BusinessID           int64
	CurrencyCode         string
	VATEnabled           bool
	DiscountApprovalBps  int64 // discount share of gross above which approval is required
	MomoTimeoutMinutes   int64 // horizon after which a PENDING collection times out
	DrawerVariancePence  int64 // shift-close variance that raises a risk alert
	NegativeMarginAlerts bool
}

// ErrBusinessNotFound indicates an unknown business id.
var ErrBusinessNotFound = errors.New("businesses: not found")

// Repository loads business settings.
type Repository interface {
	GetSettings(ctx context.Context, businessID int64) (Settings, error)
	ListBusinessIDs(ctx context.Context) ([]int64, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) GetSettings(ctx context.Context, businessID int64) (Settings, error) {
	var s Settings
	err := r.db.QueryRow(ctx, `SELECT business_id, currency_code, vat_enabled, discount_approval_bps,
momo_timeout_minutes, drawer_variance_pence, negative_margin_alerts
FROM business_settings WHERE business_id=$1`, businessID).
		Scan(&s.BusinessID, &s.CurrencyCode, &s.VATEnabled, &s.DiscountApprovalBps,
			&s.MomoTimeoutMinutes, &s.DrawerVariancePence, &s.NegativeMarginAlerts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Settings{}, ErrBusinessNotFound
		}
		return Settings{}, err
	}
	return s, nil
}

// ListBusinessIDs returns every configured business, for jobs that fan out
// across tenants.
func (r *repository) ListBusinessIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT business_id FROM business_settings ORDER BY business_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
