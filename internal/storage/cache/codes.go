package cache

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

// CodeLister streams every stored code.
type CodeLister interface {
	ListCodes(ctx context.Context, fn func(code string) error) error
}

var _ discount.CodeRepository = (*CodeFilter)(nil)

// CodeFilter short-circuits lookups of codes that certainly do not exist
// using a bloom filter of every known code.
//
// Codes inserted by other processes are invisible to the filter until the
// next Load. A miss is therefore trusted for at most maxAge after the last
// successful Load; past that every lookup reaches the repository and found
// codes are added to the filter. Until the first Load every lookup passes
// through.
type CodeFilter struct {
	repo     discount.CodeRepository
	capacity uint
	fpRate   float64
	maxAge   time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	filter   *bloom.BloomFilter
	loadedAt time.Time
}

// NewCodeFilter wraps repo with a filter sized for capacity codes at the
// given false positive rate. maxAge bounds how long a code created elsewhere
// can be reported as missing.
func NewCodeFilter(repo discount.CodeRepository, capacity uint, fpRate float64, maxAge time.Duration) *CodeFilter {
	return &CodeFilter{
		repo:     repo,
		capacity: capacity,
		fpRate:   fpRate,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Load rebuilds the filter from lister and swaps it in. It returns the number
// of codes loaded.
func (f *CodeFilter) Load(ctx context.Context, lister CodeLister) (int, error) {
	startedAt := f.now()
	filter := bloom.NewWithEstimates(f.capacity, f.fpRate)
	var n int
	if err := lister.ListCodes(ctx, func(code string) error {
		filter.AddString(code)
		n++
		return nil
	}); err != nil {
		return 0, errors.Wrap(err, "load code filter")
	}

	f.mu.Lock()
	// Codes added while listing may be missing, so the age counts from the start.
	f.filter, f.loadedAt = filter, startedAt
	f.mu.Unlock()
	return n, nil
}

func (f *CodeFilter) add(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.filter != nil {
		f.filter.AddString(code)
	}
}

// MayContain reports whether code might exist. It is true before the first
// Load and whenever the filter is older than maxAge.
func (f *CodeFilter) MayContain(code string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.filter == nil || f.now().Sub(f.loadedAt) > f.maxAge {
		return true
	}
	return f.filter.TestString(code)
}

// FindByCode returns discount.ErrCodeNotFound without consulting the
// repository when the filter rules code out.
func (f *CodeFilter) FindByCode(ctx context.Context, code string) (*discount.Code, error) {
	if !f.MayContain(code) {
		return nil, discount.ErrCodeNotFound
	}
	c, err := f.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	f.add(c.Code)
	return c, nil
}
