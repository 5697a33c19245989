// Package voteaggregator moves vote processing off the consensus event loop.
// Incoming votes are deduplicated, dispatched to a worker pool, and routed to
// the per-round collector, which aggregates them into quorum certificates.
package voteaggregator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/consensus/bft/votecollector"
)

const (
	defaultWorkerCount       = 4
	defaultVoteDedupCapacity = 1000
)

// VoteAggregator routes votes and proposals to per-round vote collectors.
// Verification happens on the worker pool; the event loop only enqueues.
//
// Safe for concurrent use.
type VoteAggregator struct {
	log      zerolog.Logger
	notifier bft.Consumer
	factory  *votecollector.VoteProcessorFactory
	workers  *workerpool.WorkerPool
	seen     *lru.Cache // vote IDs already enqueued

	lock                sync.RWMutex
	lowestRetainedRound uint64
	collectors          map[uint64]*votecollector.VoteCollector
	proposals           map[uint64]*model.Block // first proposal seen per round
	started             bool
}

var _ bft.VoteAggregator = (*VoteAggregator)(nil)

func New(log zerolog.Logger, notifier bft.Consumer, factory *votecollector.VoteProcessorFactory, lowestRetainedRound uint64) (*VoteAggregator, error) {
	seen, err := lru.New(defaultVoteDedupCapacity)
	if err != nil {
		return nil, fmt.Errorf("could not create vote deduplication cache: %w", err)
	}
	return &VoteAggregator{
		log:                 log.With().Str("component", "vote_aggregator").Logger(),
		notifier:            notifier,
		factory:             factory,
		seen:                seen,
		lowestRetainedRound: lowestRetainedRound,
		collectors:          make(map[uint64]*votecollector.VoteCollector),
		proposals:           make(map[uint64]*model.Block),
	}, nil
}

// Start starts the worker pool. Must be called before votes are added.
func (a *VoteAggregator) Start() {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.started {
		return
	}
	a.workers = workerpool.New(defaultWorkerCount)
	a.started = true
}

// Stop drains in-flight votes and shuts the workers down.
func (a *VoteAggregator) Stop() error {
	a.lock.Lock()
	workers := a.workers
	a.started = false
	a.lock.Unlock()
	if workers != nil {
		workers.StopWait()
	}
	return nil
}

// AddVote enqueues a vote for asynchronous processing. Votes for pruned
// rounds and votes already enqueued are dropped silently.
func (a *VoteAggregator) AddVote(vote *model.Vote) {
	a.lock.RLock()
	workers := a.workers
	started := a.started
	pruned := vote.Round < a.lowestRetainedRound
	a.lock.RUnlock()
	if !started || pruned {
		return
	}
	if ok, _ := a.seen.ContainsOrAdd(vote.ID(), struct{}{}); ok {
		return
	}
	workers.Submit(func() {
		a.processVote(vote)
	})
}

func (a *VoteAggregator) processVote(vote *model.Vote) {
	collector, created := a.collectorForRound(vote.Round)
	if collector == nil {
		// pruned while the vote sat in the queue
		return
	}
	if created {
		a.log.Debug().Uint64("round", vote.Round).Msg("collector created by vote")
	}
	err := collector.AddVote(vote)
	if err == nil {
		return
	}
	if doubleVote, ok := model.AsDoubleVoteError(err); ok {
		a.notifier.OnDoubleVotingDetected(doubleVote.FirstVote, doubleVote.ConflictingVote)
		return
	}
	var invalid model.InvalidVoteError
	if errors.As(err, &invalid) {
		a.notifier.OnInvalidVoteDetected(invalid)
		return
	}
	if errors.Is(err, model.VoteForIncompatibleRoundError) || errors.Is(err, model.VoteForIncompatibleBlockError) {
		a.log.Debug().Err(err).
			Uint64("round", vote.Round).
			Hex("voter_id", vote.SignerID[:]).
			Msg("vote dropped")
		return
	}
	a.log.Error().Err(err).
		Uint64("round", vote.Round).
		Hex("voter_id", vote.SignerID[:]).
		Msg("unexpected error processing vote")
}

// AddBlock binds the round's collector to the given validated proposal and
// replays cached votes against it. A second proposal with a different block
// for the same round is reported through OnDoubleProposeDetected and not
// processed further.
func (a *VoteAggregator) AddBlock(proposal *model.Proposal) error {
	block := proposal.Block

	a.lock.Lock()
	if block.Round < a.lowestRetainedRound {
		a.lock.Unlock()
		return nil
	}
	first, ok := a.proposals[block.Round]
	if ok && first.BlockID != block.BlockID {
		a.lock.Unlock()
		a.notifier.OnDoubleProposeDetected(first, block)
		return nil
	}
	if !ok {
		a.proposals[block.Round] = block
	}
	a.lock.Unlock()

	collector, _ := a.collectorForRound(block.Round)
	if collector == nil {
		return nil
	}
	err := collector.ProcessBlock(proposal)
	if err != nil {
		return fmt.Errorf("could not process proposal %v: %w", block.BlockID, err)
	}
	return nil
}

// InvalidBlock marks the round's collector invalid, so votes for the
// proposal are retained as slashing evidence only.
func (a *VoteAggregator) InvalidBlock(proposal *model.Proposal) error {
	collector, _ := a.collectorForRound(proposal.Block.Round)
	if collector == nil {
		return nil
	}
	collector.MarkInvalid()
	return nil
}

// PruneUpToRound discards collectors for all rounds strictly below the given
// round. The retained round never decreases.
func (a *VoteAggregator) PruneUpToRound(round uint64) {
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
	for r := range a.proposals {
		if r < round {
			delete(a.proposals, r)
		}
	}
	a.log.Debug().
		Uint64("from_round", a.lowestRetainedRound).
		Uint64("to_round", round).
		Msg("pruned vote collectors")
	a.lowestRetainedRound = round
}

// collectorForRound returns the round's collector, lazily creating it. It
// returns nil if the round has been pruned.
func (a *VoteAggregator) collectorForRound(round uint64) (*votecollector.VoteCollector, bool) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if round < a.lowestRetainedRound {
		return nil, false
	}
	collector, ok := a.collectors[round]
	if ok {
		return collector, false
	}
	collector = votecollector.NewVoteCollector(a.log, round, a.factory)
	a.collectors[round] = collector
	return collector, true
}
