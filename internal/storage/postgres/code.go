package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

const (
	getCodeSQL = `SELECT id, code, discount_id, expires_at, max_uses, usage_count
		FROM discount_codes WHERE code = $1`

	listCodesSQL = `SELECT code FROM discount_codes`

	insertCodeSQL = `INSERT INTO discount_codes (id, discount_id, code, expires_at, max_uses)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code) DO NOTHING`
)

var _ discount.CodeRepository = (*CodeRepository)(nil)

// CodeRepository implements discount.CodeRepository backed by PostgreSQL.
type CodeRepository struct {
	pool *pgxpool.Pool
}

// NewCodeRepository returns a CodeRepository that uses the given pool.
func NewCodeRepository(pool *pgxpool.Pool) *CodeRepository {
	return &CodeRepository{pool: pool}
}

// FindByCode looks up a code by exact match.
// Returns discount.ErrCodeNotFound when no code matches.
func (r *CodeRepository) FindByCode(ctx context.Context, code string) (*discount.Code, error) {
	rows, err := r.pool.Query(ctx, getCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrCodeNotFound
		}
		return nil, fmt.Errorf("finding code %q: %w", code, err)
	}
	return &c, nil
}

// ListCodes streams every known code string to fn. Iteration stops at the
// first error returned by fn.
func (r *CodeRepository) ListCodes(ctx context.Context, fn func(code string) error) error {
	rows, err := r.pool.Query(ctx, listCodesSQL)
	if err != nil {
		return fmt.Errorf("listing codes: %w", err)
	}

	var code string
	if _, err := pgx.ForEachRow(rows, []any{&code}, func() error {
		return fn(code)
	}); err != nil {
		return fmt.Errorf("listing codes: %w", err)
	}
	return nil
}

// InsertCodes inserts codes for discountID in a single batch, skipping codes
// that already exist. It returns the number of rows inserted.
func (r *CodeRepository) InsertCodes(ctx context.Context, discountID string, codes []discount.Code) (int64, error) {
	if len(codes) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, c := range codes {
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		batch.Queue(insertCodeSQL, id, discountID, c.Code, c.ExpiresAt, c.MaxUses)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for range codes {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("inserting codes for discount %q: %w", discountID, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

func scanCode(row pgx.CollectableRow) (discount.Code, error) {
	var (
		c          discount.Code
		expiresAt  *time.Time
		maxUses    *int32
		usageCount int32
	)
	err := row.Scan(&c.ID, &c.Code, &c.DiscountID, &expiresAt, &maxUses, &usageCount)
	c.ExpiresAt = expiresAt
	if maxUses != nil {
		n := int(*maxUses)
		c.MaxUses = &n
	}
	c.UsageCount = int(usageCount)
	return c, err
}
