// Package votecollector accumulates the votes of one round: caching them
// until the proposal is known, then verifying and aggregating them into a
// quorum certificate.
package votecollector

import (
	"errors"
	"sync"

	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// ErrRepeatedVote is returned when the same vote is added twice. Benign;
// votes are gossiped and duplicates are expected.
var ErrRepeatedVote = errors.New("duplicated vote")

// VotesCache stores the first vote of every signer for one round and detects
// equivocation. Safe for concurrent use.
type VotesCache struct {
	lock  sync.RWMutex
	round uint64
	votes map[nimbus.Identifier]*model.Vote
}

func NewVotesCache(round uint64) *VotesCache {
	return &VotesCache{
		round: round,
		votes: make(map[nimbus.Identifier]*model.Vote),
	}
}

func (c *VotesCache) Round() uint64 { return c.round }

// AddVote stores the vote, enforcing first-seen-wins per signer.
// Expected errors during normal operation:
//   - model.VoteForIncompatibleRoundError for misrouted votes
//   - ErrRepeatedVote if the same vote was added before
//   - model.DoubleVoteError if the signer already voted for a different block
func (c *VotesCache) AddVote(vote *model.Vote) error {
	if vote.Round != c.round {
		return model.VoteForIncompatibleRoundError
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	first, ok := c.votes[vote.SignerID]
	if ok {
		if first.BlockID == vote.BlockID {
			return ErrRepeatedVote
		}
		return model.NewDoubleVoteErrorf(first, vote, "signer %v voted for blocks %v and %v in round %d",
			vote.SignerID, first.BlockID, vote.BlockID, c.round)
	}
	c.votes[vote.SignerID] = vote
	return nil
}

// All returns all cached votes.
func (c *VotesCache) All() []*model.Vote {
	c.lock.RLock()
	defer c.lock.RUnlock()
	votes := make([]*model.Vote, 0, len(c.votes))
	for _, vote := range c.votes {
		votes = append(votes, vote)
	}
	return votes
}
