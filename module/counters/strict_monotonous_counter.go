package counters

import (
	"go.uber.org/atomic"
)

// StrictMonotonousCounter is a counter that can only strictly increase.
// Safe for concurrent use.
type StrictMonotonousCounter struct {
	value *atomic.Uint64
}

// NewMonotonousCounter creates a new counter with the given initial value.
func NewMonotonousCounter(initial uint64) StrictMonotonousCounter {
	return StrictMonotonousCounter{
		value: atomic.NewUint64(initial),
	}
}

// Set updates the value of the counter if it is strictly larger than the
// current value. Returns true if the update was applied.
func (c StrictMonotonousCounter) Set(processed uint64) bool {
	for {
		current := c.value.Load()
		if processed <= current {
			return false
		}
		if c.value.CAS(current, processed) {
			return true
		}
	}
}

// Value returns the current value of the counter.
func (c StrictMonotonousCounter) Value() uint64 {
	return c.value.Load()
}
