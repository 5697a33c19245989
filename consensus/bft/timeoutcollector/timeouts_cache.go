// Package timeoutcollector accumulates the timeout objects of one round,
// verifying and aggregating them into a timeout certificate. It also raises
// the partial-TC signal once enough weight has timed out to prove that at
// least one honest validator has abandoned the round.
package timeoutcollector

import (
	"errors"
	"sync"

	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// ErrRepeatedTimeout is returned when a replica re-broadcasts a timeout it
// has already submitted. Rebroadcasts are protocol-conforming and ignored.
var ErrRepeatedTimeout = errors.New("duplicated timeout")

// TimeoutObjectsCache deduplicates the timeout objects of one round,
// retaining the first timeout of each signer. A signer submitting two
// semantically different timeouts for the same round is detected as
// equivocation.
//
// Safe for concurrent use.
type TimeoutObjectsCache struct {
	lock     sync.RWMutex
	round    uint64
	timeouts map[nimbus.Identifier]*model.TimeoutObject
}

func NewTimeoutObjectsCache(round uint64) *TimeoutObjectsCache {
	return &TimeoutObjectsCache{
		round:    round,
		timeouts: make(map[nimbus.Identifier]*model.TimeoutObject),
	}
}

func (c *TimeoutObjectsCache) Round() uint64 { return c.round }

// AddTimeoutObject adds the timeout to the cache.
// Expected errors during normal operation:
//   - model.TimeoutForIncompatibleRoundError for timeouts of other rounds
//   - ErrRepeatedTimeout for exact rebroadcasts
//   - model.DoubleTimeoutError for semantically different timeouts from the
//     same signer
func (c *TimeoutObjectsCache) AddTimeoutObject(timeout *model.TimeoutObject) error {
	if timeout.Round != c.round {
		return model.TimeoutForIncompatibleRoundError
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	first, ok := c.timeouts[timeout.SignerID]
	if ok {
		// timeout signatures are deterministic, so an honest rebroadcast is
		// bit-identical to the first submission
		if first.ID() == timeout.ID() {
			return ErrRepeatedTimeout
		}
		return model.NewDoubleTimeoutErrorf(first, timeout, "detected double timeout by %v for round %d", timeout.SignerID, c.round)
	}
	c.timeouts[timeout.SignerID] = timeout
	return nil
}

// All returns all cached timeouts.
func (c *TimeoutObjectsCache) All() []*model.TimeoutObject {
	c.lock.RLock()
	defer c.lock.RUnlock()
	all := make([]*model.TimeoutObject, 0, len(c.timeouts))
	for _, timeout := range c.timeouts {
		all = append(all, timeout)
	}
	return all
}
