// Package timeoutaggregator moves timeout processing off the consensus event
// loop. Incoming timeout objects are deduplicated, dispatched to a worker
// pool, and routed to the per-round collector, which aggregates them into
// timeout certificates.
package timeoutaggregator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/consensus/bft/timeoutcollector"
)

const (
	defaultWorkerCount          = 2
	defaultTimeoutDedupCapacity = 1000
)

// TimeoutAggregator routes timeout objects to per-round collectors.
// Verification happens on the worker pool; the event loop only enqueues.
//
// Safe for concurrent use.
type TimeoutAggregator struct {
	log         zerolog.Logger
	notifier    bft.Consumer
	committee   bft.Replicas
	validator   bft.Validator
	onPartialTC bft.OnPartialTCCreated
	onTCCreated bft.OnTCCreated
	workers     *workerpool.WorkerPool
	seen        *lru.Cache // timeout IDs already enqueued

	lock                sync.RWMutex
	lowestRetainedRound uint64
	collectors          map[uint64]*timeoutcollector.TimeoutCollector
	started             bool
}

var _ bft.TimeoutAggregator = (*TimeoutAggregator)(nil)

func New(
	log zerolog.Logger,
	notifier bft.Consumer,
	committee bft.Replicas,
	validator bft.Validator,
	onPartialTC bft.OnPartialTCCreated,
	onTCCreated bft.OnTCCreated,
	lowestRetainedRound uint64,
) (*TimeoutAggregator, error) {
	seen, err := lru.New(defaultTimeoutDedupCapacity)
	if err != nil {
		return nil, fmt.Errorf("could not create timeout deduplication cache: %w", err)
	}
	return &TimeoutAggregator{
		log:                 log.With().Str("component", "timeout_aggregator").Logger(),
		notifier:            notifier,
		committee:           committee,
		validator:           validator,
		onPartialTC:         onPartialTC,
		onTCCreated:         onTCCreated,
		seen:                seen,
		lowestRetainedRound: lowestRetainedRound,
		collectors:          make(map[uint64]*timeoutcollector.TimeoutCollector),
	}, nil
}

// Start starts the worker pool. Must be called before timeouts are added.
func (a *TimeoutAggregator) Start() {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.started {
		return
	}
	a.workers = workerpool.New(defaultWorkerCount)
	a.started = true
}

// Stop drains in-flight timeouts and shuts the workers down.
func (a *TimeoutAggregator) Stop() error {
	a.lock.Lock()
	workers := a.workers
	a.started = false
	a.lock.Unlock()
	if workers != nil {
		workers.StopWait()
	}
	return nil
}

// AddTimeout enqueues a timeout object for asynchronous processing. Timeouts
// for pruned rounds and exact duplicates are dropped silently.
func (a *TimeoutAggregator) AddTimeout(timeout *model.TimeoutObject) {
	a.lock.RLock()
	workers := a.workers
	started := a.started
	pruned := timeout.Round < a.lowestRetainedRound
	a.lock.RUnlock()
	if !started || pruned {
		return
	}
	if ok, _ := a.seen.ContainsOrAdd(timeout.ID(), struct{}{}); ok {
		return
	}
	workers.Submit(func() {
		a.processTimeout(timeout)
	})
}

func (a *TimeoutAggregator) processTimeout(timeout *model.TimeoutObject) {
	collector, err := a.collectorForRound(timeout.Round)
	if err != nil {
		a.log.Error().Err(err).
			Uint64("round", timeout.Round).
			Msg("could not create timeout collector")
		return
	}
	if collector == nil {
		// pruned while the timeout sat in the queue
		return
	}
	err = collector.AddTimeout(timeout)
	if err == nil {
		return
	}
	var doubleTimeout model.DoubleTimeoutError
	if errors.As(err, &doubleTimeout) {
		a.notifier.OnDoubleTimeoutDetected(doubleTimeout.FirstTimeout, doubleTimeout.ConflictingTimeout)
		return
	}
	var invalid model.InvalidTimeoutError
	if errors.As(err, &invalid) {
		a.notifier.OnInvalidTimeoutDetected(invalid)
		return
	}
	if errors.Is(err, model.TimeoutForIncompatibleRoundError) {
		return
	}
	a.log.Error().Err(err).
		Uint64("round", timeout.Round).
		Hex("signer_id", timeout.SignerID[:]).
		Msg("unexpected error processing timeout")
}

// PruneUpToRound discards collectors for all rounds strictly below the given
// round. The retained round never decreases.
func (a *TimeoutAggregator) PruneUpToRound(round uint64) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if round <= a.lowestRetainedRound {
		return
	}
	for r := range a.collectors {
		if r < round {
			delete(a.collectors, r)
		}
	}
	a.log.Debug().
		Uint64("from_round", a.lowestRetainedRound).
		Uint64("to_round", round).
		Msg("pruned timeout collectors")
	a.lowestRetainedRound = round
}

// collectorForRound returns the round's collector, lazily creating it. It
// returns nil if the round has been pruned.
func (a *TimeoutAggregator) collectorForRound(round uint64) (*timeoutcollector.TimeoutCollector, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if round < a.lowestRetainedRound {
		return nil, nil
	}
	collector, ok := a.collectors[round]
	if ok {
		return collector, nil
	}
	processor, err := timeoutcollector.NewTimeoutProcessor(a.committee, a.validator, round, a.onPartialTC, a.onTCCreated)
	if err != nil {
		return nil, fmt.Errorf("could not create timeout processor for round %d: %w", round, err)
	}
	collector = timeoutcollector.NewTimeoutCollector(a.log, round, processor)
	a.collectors[round] = collector
	return collector, nil
}
