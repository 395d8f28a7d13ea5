package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// ReasonRegistry answers whether a discount/void override reason code is one
// of the recognised enumerated set. Lookups are cached in Redis because the
// set changes rarely and the predicate sits on the sale hot path.
type ReasonRegistry struct {
	pool  *pgxpool.Pool
	cache *redis.Client
	ttl   time.Duration
}

// NewReasonRegistry constructs the registry. cache may be nil.
func NewReasonRegistry(pool *pgxpool.Pool, cache *redis.Client) *ReasonRegistry {
	return &ReasonRegistry{pool: pool, cache: cache, ttl: 10 * time.Minute}
}

func reasonCacheKey(businessID int64, code string) string {
	return fmt.Sprintf("reason:%d:%s", businessID, code)
}

// IsRecognised reports whether code belongs to the business's reason set.
func (r *ReasonRegistry) IsRecognised(ctx context.Context, businessID int64, code string) (bool, error) {
	if r == nil {
		return false, errors.New("reason registry not initialised")
	}
	if code == "" {
		return false, nil
	}
	if r.cache != nil {
		val, err := r.cache.Get(ctx, reasonCacheKey(businessID, code)).Result()
		if err == nil {
			return val == "1", nil
		}
	}
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT true FROM reason_codes WHERE business_id=$1 AND code=$2 AND active`, businessID, code).Scan(&exists)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}
	found := err == nil && exists
	if r.cache != nil {
		val := "0"
		if found {
			val = "1"
		}
		_ = r.cache.Set(ctx, reasonCacheKey(businessID, code), val, r.ttl).Err()
	}
	return found, nil
}
