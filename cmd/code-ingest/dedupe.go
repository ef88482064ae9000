package main

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// deduper tracks codes across all input files in bounded memory. A bloom
// miss proves a code is new. A hit may be a false positive, so the code is
// parked in an exact suspects set and resolved by the database unique
// constraint at the end of the run.
type deduper struct {
	mu       sync.Mutex
	filter   *bloom.BloomFilter
	suspects map[string]struct{}
}

func newDeduper(capacity uint, fpRate float64) *deduper {
	return &deduper{
		filter:   bloom.NewWithEstimates(capacity, fpRate),
		suspects: make(map[string]struct{}),
	}
}

// observe reports whether code is certainly seen for the first time.
func (d *deduper) observe(code string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.filter.TestAndAddString(code) {
		return true
	}
	d.suspects[code] = struct{}{}
	return false
}

// drainSuspects returns the distinct codes that hit the filter.
func (d *deduper) drainSuspects() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.suspects))
	for code := range d.suspects {
		out = append(out, code)
	}
	d.suspects = make(map[string]struct{})
	return out
}
