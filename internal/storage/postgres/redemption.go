package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

const (
	hasCompletedOrderSQL = `SELECT EXISTS (
		SELECT 1 FROM discount_redemptions WHERE user_id = $1 AND status = 'completed')`

	insertRedemptionSQL = `INSERT INTO discount_redemptions
		(id, discount_id, discount_code_id, user_id, order_id, amount, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (order_id, discount_id) DO NOTHING`

	incrementCodeUsageSQL = `UPDATE discount_codes SET usage_count = usage_count + 1
		WHERE id = $1 AND (max_uses IS NULL OR usage_count < max_uses)`
)

var (
	_ discount.RedemptionRepository = (*RedemptionRepository)(nil)
	_ discount.RedemptionRecorder   = (*RedemptionRepository)(nil)
)

// RedemptionRepository implements the redemption history queries and
// recording backed by PostgreSQL.
type RedemptionRepository struct {
	pool     *pgxpool.Pool
	attempts uint
}

// NewRedemptionRepository returns a RedemptionRepository that uses the given pool.
func NewRedemptionRepository(pool *pgxpool.Pool) *RedemptionRepository {
	return &RedemptionRepository{pool: pool, attempts: 3}
}

// HasCompletedOrder reports whether any completed redemption exists for userID.
func (r *RedemptionRepository) HasCompletedOrder(ctx context.Context, userID string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, hasCompletedOrderSQL, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking completed orders for user %q: %w", userID, err)
	}
	return exists, nil
}

// Record persists a redemption. When the redemption references a code, the
// code's usage count is incremented in the same transaction and
// discount.ErrCodeLimitReached is returned if the code has no uses left.
// Recording the same order and discount twice is a no-op.
func (r *RedemptionRepository) Record(ctx context.Context, red *discount.Redemption) error {
	if red.ID == "" {
		red.ID = uuid.NewString()
	}
	if red.CreatedAt.IsZero() {
		red.CreatedAt = time.Now().UTC()
	}

	err := retry.Do(
		func() error {
			return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
				return recordTx(ctx, tx, red)
			})
		},
		retry.Context(ctx),
		retry.Attempts(r.attempts),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(10*time.Millisecond),
		retry.RetryIf(isRetryable),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("recording redemption for order %q: %w", red.OrderID, err)
	}
	return nil
}

func recordTx(ctx context.Context, tx pgx.Tx, red *discount.Redemption) error {
	tag, err := tx.Exec(ctx, insertRedemptionSQL,
		red.ID, red.DiscountID, nullable(red.CodeID), nullable(red.UserID),
		red.OrderID, red.Amount, red.Currency, red.CreatedAt,
	)
	if err != nil {
		return mapForeignKey(err)
	}
	if tag.RowsAffected() == 0 || red.CodeID == "" {
		return nil
	}

	tag, err = tx.Exec(ctx, incrementCodeUsageSQL, red.CodeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrCodeLimitReached
	}
	return nil
}

// mapForeignKey translates a foreign key violation on insert into the
// matching not-found sentinel.
func mapForeignKey(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23503" {
		return err
	}
	if pgErr.ConstraintName == "discount_redemptions_discount_code_id_fkey" {
		return discount.ErrCodeNotFound
	}
	return discount.ErrDiscountNotFound
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
