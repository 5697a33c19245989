package bft

import (
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
)

// VoteAggregator ingests votes and proposals from the network, verifies them
// off the event loop on a worker pool, and aggregates votes into quorum
// certificates. Constructed QCs are delivered back to the event loop via the
// OnQCCreated callback.
//
// Safe for concurrent use.
type VoteAggregator interface {
	// AddVote queues a vote for asynchronous processing. Votes for rounds at
	// or below the last pruned round are dropped silently.
	AddVote(vote *model.Vote)

	// AddBlock notifies the aggregator about a validated proposal, so the
	// round's collector can start verifying cached and future votes,
	// beginning with the proposer's own vote.
	// Expected errors during normal operation:
	//  - model.DoubleProposal detection is reported via notifications, not
	//    as an error
	AddBlock(proposal *model.Proposal) error

	// InvalidBlock notifies the aggregator that a proposal failed
	// validation, so votes for it are retained only as slashing evidence.
	InvalidBlock(proposal *model.Proposal) error

	// PruneUpToRound discards all state for rounds strictly below the given
	// round. The pruning round is monotonically non-decreasing.
	PruneUpToRound(round uint64)

	// Start starts the aggregator's workers.
	Start()

	// Stop stops the workers and waits for in-flight votes to drain.
	Stop() error
}
