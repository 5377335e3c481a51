package poll

import (
	"math"
	"sync/atomic"

	"github.com/pscheid92/livepoll/internal/domain"
)

// Allocator hands out poll identifiers. Values are strictly increasing and never reused.
type Allocator struct {
	last atomic.Uint64
}

// NewAllocator returns an allocator whose first Next() is reserved+1.
func NewAllocator(reserved domain.PollID) *Allocator {
	a := &Allocator{}
	a.last.Store(uint64(reserved))
	return a
}

// Next returns a fresh identifier, or domain.ErrIDsExhausted once the largest one is taken.
// Safe for concurrent use.
func (a *Allocator) Next() (domain.PollID, error) {
	for {
		cur := a.last.Load()
		if cur == math.MaxUint64 {
			return 0, domain.ErrIDsExhausted
		}
		if a.last.CompareAndSwap(cur, cur+1) {
			return domain.PollID(cur + 1), nil
		}
	}
}

// Observe moves the allocator past an identifier that was supplied explicitly by a caller,
// so that a later Next() cannot hand the same value out again.
func (a *Allocator) Observe(id domain.PollID) {
	for {
		cur := a.last.Load()
		if uint64(id) <= cur {
			return
		}
		if a.last.CompareAndSwap(cur, uint64(id)) {
			return
		}
	}
}
