package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

const discountColumns = `d.id, d.name, d.type, d.value, d.status, d.stacking_policy,
	d.first_order_only, d.free_shipping, d.applies_to_shipping, d.priority,
	d.apply_to, d.targets, d.min_required, d.eligibility, d.customer_groups,
	d.starts_at, d.ends_at, d.weekday_mask, d.time_window_from, d.time_window_to,
	d.channel_restrictions, d.currency_restrictions, d.zone_restrictions`

const (
	listAutomaticSQL = `SELECT ` + discountColumns + `
		FROM discounts d
		WHERE d.status = 'active' AND d.eligibility = 'all'
			AND NOT EXISTS (SELECT 1 FROM discount_codes c WHERE c.discount_id = d.id)
		ORDER BY d.priority, d.id`

	getDiscountByIDSQL = `SELECT ` + discountColumns + `
		FROM discounts d WHERE d.id = $1`

	listConditionsSQL = `SELECT id, discount_id, type, value
		FROM discount_conditions WHERE discount_id = ANY($1) ORDER BY discount_id, id`

	upsertDiscountSQL = `INSERT INTO discounts (id, name, type, value, status, stacking_policy,
		first_order_only, free_shipping, applies_to_shipping, priority,
		apply_to, targets, min_required, eligibility, customer_groups,
		starts_at, ends_at, weekday_mask, time_window_from, time_window_to,
		channel_restrictions, currency_restrictions, zone_restrictions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, type = EXCLUDED.type, value = EXCLUDED.value,
			status = EXCLUDED.status, stacking_policy = EXCLUDED.stacking_policy,
			first_order_only = EXCLUDED.first_order_only, free_shipping = EXCLUDED.free_shipping,
			applies_to_shipping = EXCLUDED.applies_to_shipping, priority = EXCLUDED.priority,
			apply_to = EXCLUDED.apply_to, targets = EXCLUDED.targets,
			min_required = EXCLUDED.min_required, eligibility = EXCLUDED.eligibility,
			customer_groups = EXCLUDED.customer_groups, starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at, weekday_mask = EXCLUDED.weekday_mask,
			time_window_from = EXCLUDED.time_window_from, time_window_to = EXCLUDED.time_window_to,
			channel_restrictions = EXCLUDED.channel_restrictions,
			currency_restrictions = EXCLUDED.currency_restrictions,
			zone_restrictions = EXCLUDED.zone_restrictions,
			updated_at = now()`

	deleteConditionsSQL = `DELETE FROM discount_conditions WHERE discount_id = $1`

	insertConditionSQL = `INSERT INTO discount_conditions (id, discount_id, type, value)
		VALUES ($1, $2, $3, $4)`
)

var _ discount.DiscountRepository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.DiscountRepository backed by
// PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// ListAutomatic returns active discounts that have no codes and are open to
// every customer, ordered by priority.
func (r *DiscountRepository) ListAutomatic(ctx context.Context) ([]discount.Discount, error) {
	rows, err := r.pool.Query(ctx, listAutomaticSQL)
	if err != nil {
		return nil, fmt.Errorf("listing automatic discounts: %w", err)
	}

	discounts, err := pgx.CollectRows(rows, scanDiscount)
	if err != nil {
		return nil, fmt.Errorf("listing automatic discounts: %w", err)
	}

	if err := r.attachConditions(ctx, discounts); err != nil {
		return nil, err
	}
	return discounts, nil
}

// GetByID returns the discount with its conditions.
// Returns discount.ErrDiscountNotFound when no discount matches.
func (r *DiscountRepository) GetByID(ctx context.Context, id string) (*discount.Discount, error) {
	rows, err := r.pool.Query(ctx, getDiscountByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting discount %q: %w", id, err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrDiscountNotFound
		}
		return nil, fmt.Errorf("getting discount %q: %w", id, err)
	}

	single := []discount.Discount{d}
	if err := r.attachConditions(ctx, single); err != nil {
		return nil, err
	}
	return &single[0], nil
}

// Upsert inserts or replaces a discount together with its conditions.
func (r *DiscountRepository) Upsert(ctx context.Context, d *discount.Discount) error {
	var windowFrom, windowTo *int16
	if d.TimeWindow != nil {
		from, to := int16(d.TimeWindow.From), int16(d.TimeWindow.To)
		windowFrom, windowTo = &from, &to
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, upsertDiscountSQL,
			d.ID, d.Name, string(d.Type), d.Value, string(d.Status), string(d.StackingPolicy),
			d.FirstOrderOnly, d.FreeShipping, d.AppliesToShipping, int32(d.Priority),
			string(d.ApplyTo), nonNil(d.Targets), d.MinRequired, string(d.Eligibility), nonNil(d.CustomerGroups),
			d.StartsAt, d.EndsAt, int16(d.WeekdayMask), windowFrom, windowTo,
			nonNil(d.ChannelRestrictions), nonNil(d.CurrencyRestrictions), nonNil(d.ZoneRestrictions),
		)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, deleteConditionsSQL, d.ID); err != nil {
			return err
		}
		for _, c := range d.Conditions {
			if _, err := tx.Exec(ctx, insertConditionSQL, c.ID, d.ID, string(c.Type), c.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upserting discount %q: %w", d.ID, err)
	}
	return nil
}

func (r *DiscountRepository) attachConditions(ctx context.Context, discounts []discount.Discount) error {
	if len(discounts) == 0 {
		return nil
	}

	ids := make([]string, len(discounts))
	index := make(map[string]int, len(discounts))
	for i, d := range discounts {
		ids[i] = d.ID
		index[d.ID] = i
	}

	rows, err := r.pool.Query(ctx, listConditionsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing discount conditions: %w", err)
	}

	var (
		c          discount.Condition
		discountID string
		typ        string
	)
	_, err = pgx.ForEachRow(rows, []any{&c.ID, &discountID, &typ, &c.Value}, func() error {
		c.Type = discount.ConditionType(typ)
		i := index[discountID]
		discounts[i].Conditions = append(discounts[i].Conditions, c)
		return nil
	})
	if err != nil {
		return fmt.Errorf("listing discount conditions: %w", err)
	}
	return nil
}

func scanDiscount(row pgx.CollectableRow) (discount.Discount, error) {
	var (
		d                                discount.Discount
		typ, status, policy, scope, elig string
		priority                         int32
		value, minRequired               decimal.Decimal
		startsAt, endsAt                 *time.Time
		weekdayMask                      int16
		windowFrom, windowTo             *int16
	)
	err := row.Scan(
		&d.ID, &d.Name, &typ, &value, &status, &policy,
		&d.FirstOrderOnly, &d.FreeShipping, &d.AppliesToShipping, &priority,
		&scope, &d.Targets, &minRequired, &elig, &d.CustomerGroups,
		&startsAt, &endsAt, &weekdayMask, &windowFrom, &windowTo,
		&d.ChannelRestrictions, &d.CurrencyRestrictions, &d.ZoneRestrictions,
	)
	d.Type = discount.Type(typ)
	d.Value = value
	d.Status = discount.Status(status)
	d.StackingPolicy = discount.StackingPolicy(policy)
	d.Priority = int(priority)
	d.ApplyTo = discount.Scope(scope)
	d.MinRequired = minRequired
	d.Eligibility = discount.Eligibility(elig)
	d.StartsAt = startsAt
	d.EndsAt = endsAt
	d.WeekdayMask = uint8(weekdayMask)
	if windowFrom != nil && windowTo != nil {
		d.TimeWindow = &discount.TimeWindow{From: int(*windowFrom), To: int(*windowTo)}
	}
	return d, err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
