package bft

import (
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// OnQCCreated is the callback invoked exactly once when a collector has
// aggregated a quorum of votes into a QC.
type OnQCCreated func(qc *nimbus.QuorumCertificate)

// VoteCollectorStatus is the status of a vote collector.
type VoteCollectorStatus int

const (
	// VoteCollectorStatusCaching: the collector has not seen the proposal
	// yet and caches votes without verifying them.
	VoteCollectorStatusCaching VoteCollectorStatus = iota

	// VoteCollectorStatusVerifying: the proposal is known and votes are
	// verified and aggregated towards a QC.
	VoteCollectorStatusVerifying

	// VoteCollectorStatusInvalid: the proposal was found invalid; votes for
	// it are collected only as slashing evidence.
	VoteCollectorStatusInvalid
)

// VoteCollector collects the votes for one round. Lifecycle: created in
// caching state on the first vote or proposal for the round, switches to
// verifying once the proposal arrives, fires OnQCCreated at quorum.
//
// Safe for concurrent use; votes are processed by the aggregator's workers.
type VoteCollector interface {
	// Round returns the round this collector is collecting votes for.
	Round() uint64

	// Status returns the current status of the collector.
	Status() VoteCollectorStatus

	// AddVote adds a vote to the collector. Duplicate votes from the same
	// signer are ignored (first-seen wins); aggregation is idempotent.
	// Expected errors during normal operation:
	//  - VoteForIncompatibleRoundError / VoteForIncompatibleBlockError
	//  - model.InvalidVoteError for cryptographically invalid votes
	//  - model.DoubleVoteError for equivocating votes
	AddVote(vote *model.Vote) error

	// ProcessBlock transitions the collector into the verifying state for
	// the given proposal and replays all cached votes against it.
	ProcessBlock(proposal *model.Proposal) error

	// MarkInvalid transitions the collector into the invalid state. Votes
	// received afterwards are retained as equivocation evidence only.
	MarkInvalid()
}

// VoteProcessor verifies and accumulates votes for one specific block
// proposal, building a QC once the quorum threshold is reached.
type VoteProcessor interface {
	// Process performs processing of a single vote in a concurrency-safe
	// way. Duplicates are ignored; the first quorum-crossing vote triggers
	// QC construction exactly once.
	// Expected errors during normal operation:
	//  - VoteForIncompatibleRoundError / VoteForIncompatibleBlockError
	//  - model.InvalidVoteError
	Process(vote *model.Vote) error

	// Status returns the processor status.
	Status() VoteCollectorStatus
}
