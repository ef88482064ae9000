// Package cache provides read-through caches in front of the discount
// repositories.
package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

var _ discount.DiscountRepository = (*Discounts)(nil)

// Discounts caches the automatic discount list for a fixed TTL. Concurrent
// misses share a single repository call. GetByID is not cached.
type Discounts struct {
	repo discount.DiscountRepository
	ttl  time.Duration
	now  func() time.Time

	group singleflight.Group

	mu      sync.RWMutex
	items   []discount.Discount
	expires time.Time
}

// NewDiscounts wraps repo. A non-positive ttl disables caching.
func NewDiscounts(repo discount.DiscountRepository, ttl time.Duration) *Discounts {
	return &Discounts{repo: repo, ttl: ttl, now: time.Now}
}

// ListAutomatic returns a copy of the cached automatic discounts, reloading
// them from the repository once the TTL has elapsed.
func (c *Discounts) ListAutomatic(ctx context.Context) ([]discount.Discount, error) {
	if c.ttl <= 0 {
		return c.repo.ListAutomatic(ctx)
	}

	c.mu.RLock()
	items, fresh := c.items, c.now().Before(c.expires)
	c.mu.RUnlock()
	if fresh {
		return cloneAll(items), nil
	}

	v, err, _ := c.group.Do("automatic", func() (any, error) {
		loaded, err := c.repo.ListAutomatic(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.items = loaded
		c.expires = c.now().Add(c.ttl)
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "load automatic discounts")
	}
	return cloneAll(v.([]discount.Discount)), nil
}

// GetByID delegates to the wrapped repository.
func (c *Discounts) GetByID(ctx context.Context, id string) (*discount.Discount, error) {
	return c.repo.GetByID(ctx, id)
}

func cloneAll(src []discount.Discount) []discount.Discount {
	out := make([]discount.Discount, len(src))
	for i := range src {
		out[i] = clone(src[i])
	}
	return out
}

func clone(d discount.Discount) discount.Discount {
	d.Targets = slices.Clone(d.Targets)
	d.CustomerGroups = slices.Clone(d.CustomerGroups)
	d.ChannelRestrictions = slices.Clone(d.ChannelRestrictions)
	d.CurrencyRestrictions = slices.Clone(d.CurrencyRestrictions)
	d.ZoneRestrictions = slices.Clone(d.ZoneRestrictions)
	d.Conditions = slices.Clone(d.Conditions)
	if d.StartsAt != nil {
		t := *d.StartsAt
		d.StartsAt = &t
	}
	if d.EndsAt != nil {
		t := *d.EndsAt
		d.EndsAt = &t
	}
	if d.TimeWindow != nil {
		w := *d.TimeWindow
		d.TimeWindow = &w
	}
	return d
}
