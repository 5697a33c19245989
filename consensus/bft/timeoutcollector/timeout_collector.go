package timeoutcollector

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
)

// TimeoutCollector collects the timeouts of one round: the cache weeds out
// rebroadcasts and equivocations, the processor verifies and aggregates the
// remainder. Unlike vote collection there is no caching state, since timeout
// verification does not depend on any proposal.
type TimeoutCollector struct {
	log       zerolog.Logger
	round     uint64
	cache     *TimeoutObjectsCache
	processor *TimeoutProcessor
}

var _ bft.TimeoutCollector = (*TimeoutCollector)(nil)

func NewTimeoutCollector(log zerolog.Logger, round uint64, processor *TimeoutProcessor) *TimeoutCollector {
	return &TimeoutCollector{
		log: log.With().
			Str("component", "timeout_collector").
			Uint64("round", round).
			Logger(),
		round:     round,
		cache:     NewTimeoutObjectsCache(round),
		processor: processor,
	}
}

func (c *TimeoutCollector) Round() uint64 { return c.round }

// AddTimeout adds a timeout object to the collector. Rebroadcasts are
// ignored.
// Expected errors during normal operation:
//   - model.TimeoutForIncompatibleRoundError
//   - model.InvalidTimeoutError for cryptographically invalid timeouts
//   - model.DoubleTimeoutError for equivocating timeouts
func (c *TimeoutCollector) AddTimeout(timeout *model.TimeoutObject) error {
	err := c.cache.AddTimeoutObject(timeout)
	if err != nil {
		if errors.Is(err, ErrRepeatedTimeout) {
			return nil
		}
		return err
	}

	err = c.processor.Process(timeout)
	if err != nil {
		return fmt.Errorf("could not process timeout %v: %w", timeout.ID(), err)
	}
	return nil
}
