package votecollector

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
)

// VoteCollector tracks the votes of one round through the collector's
// lifecycle. It starts in the caching state, where votes are deduplicated
// and held back; once the round's proposal arrives, it switches to the
// verifying state and replays the cached votes against the proposal. The
// cache stays active in every state, so equivocating votes are detected
// even before the proposal is known.
type VoteCollector struct {
	log     zerolog.Logger
	round   uint64
	factory *VoteProcessorFactory

	lock      sync.RWMutex
	status    bft.VoteCollectorStatus
	cache     *VotesCache
	processor *VerifyingVoteProcessor
}

var _ bft.VoteCollector = (*VoteCollector)(nil)

func NewVoteCollector(log zerolog.Logger, round uint64, factory *VoteProcessorFactory) *VoteCollector {
	return &VoteCollector{
		log: log.With().
			Str("component", "vote_collector").
			Uint64("round", round).
			Logger(),
		round:   round,
		factory: factory,
		status:  bft.VoteCollectorStatusCaching,
		cache:   NewVotesCache(round),
	}
}

func (c *VoteCollector) Round() uint64 { return c.round }

func (c *VoteCollector) Status() bft.VoteCollectorStatus {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.status
}

// AddVote adds a vote to the collector. In the caching and invalid states
// the vote is only recorded; in the verifying state it is additionally
// verified and aggregated.
// Expected errors during normal operation:
//   - model.VoteForIncompatibleRoundError / model.VoteForIncompatibleBlockError
//   - model.InvalidVoteError for cryptographically invalid votes
//   - model.DoubleVoteError for equivocating votes
func (c *VoteCollector) AddVote(vote *model.Vote) error {
	err := c.cache.AddVote(vote)
	if err != nil {
		if errors.Is(err, ErrRepeatedVote) {
			return nil
		}
		// incompatible round and double vote surface to the caller
		return err
	}

	c.lock.RLock()
	processor := c.processor
	c.lock.RUnlock()
	if processor == nil {
		return nil
	}
	return processor.Process(vote)
}

// ProcessBlock transitions the collector from caching to verifying for the
// given proposal and replays all cached votes. Calling it again with the
// same block is a no-op; a second proposal with a different block for this
// round is reported as model.DoubleProposeError by the aggregator layer and
// must not reach this method.
func (c *VoteCollector) ProcessBlock(proposal *model.Proposal) error {
	if proposal.Block.Round != c.round {
		return fmt.Errorf("collector for round %d received proposal for round %d", c.round, proposal.Block.Round)
	}

	c.lock.Lock()
	switch c.status {
	case bft.VoteCollectorStatusVerifying:
		c.lock.Unlock()
		if c.processor.Block().BlockID != proposal.Block.BlockID {
			return fmt.Errorf("conflicting proposal %v for round %d reached collector already bound to %v",
				proposal.Block.BlockID, c.round, c.processor.Block().BlockID)
		}
		return nil
	case bft.VoteCollectorStatusInvalid:
		c.lock.Unlock()
		return nil
	}

	processor, err := c.factory.Create(c.log, proposal)
	if err != nil {
		c.lock.Unlock()
		return fmt.Errorf("could not create vote processor for block %v: %w", proposal.Block.BlockID, err)
	}
	c.processor = processor
	c.status = bft.VoteCollectorStatusVerifying
	c.lock.Unlock()

	c.log.Debug().
		Hex("block_id", proposal.Block.BlockID[:]).
		Msg("collector started verifying, replaying cached votes")

	for _, vote := range c.cache.All() {
		err := processor.Process(vote)
		if err == nil {
			continue
		}
		if errors.Is(err, model.VoteForIncompatibleBlockError) {
			// cached before the proposal was known; evidence stays in the cache
			continue
		}
		if model.IsInvalidVoteError(err) {
			c.log.Info().Err(err).
				Hex("voter_id", vote.SignerID[:]).
				Msg("cached vote failed verification")
			continue
		}
		return fmt.Errorf("could not replay cached vote %v: %w", vote.ID(), err)
	}
	return nil
}

// MarkInvalid freezes the collector in the invalid state. The cache keeps
// recording votes as equivocation evidence, but no QC will be built.
func (c *VoteCollector) MarkInvalid() {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.status == bft.VoteCollectorStatusVerifying {
		// proposal was already accepted; keep aggregating
		return
	}
	c.status = bft.VoteCollectorStatusInvalid
}
