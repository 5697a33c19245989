package bft

import (
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// Consumer consumes notifications about the engine's state transitions.
// Notifications are fire-and-forget: implementations must be non-blocking
// and must not error. Implementations must be safe for concurrent use, as
// notifications originate both from the event loop and from the aggregators'
// worker pools.
type Consumer interface {
	// OnEnteringRound is emitted when the node enters a new round, with the
	// round's designated leader.
	OnEnteringRound(round uint64, leader nimbus.Identifier)

	// OnStartingTimeout is emitted when the pacemaker arms the deadline for
	// a round.
	OnStartingTimeout(info model.TimerInfo)

	// OnLocalTimeout is emitted when the round deadline elapses without
	// progress and the node signs a timeout.
	OnLocalTimeout(round uint64)

	// OnPartialTimeoutCertificate is emitted when f+1 weight of timeouts for
	// the round has accumulated.
	OnPartialTimeoutCertificate(round uint64)

	// OnQCTriggeredRoundChange is emitted when an observed QC advances the
	// round.
	OnQCTriggeredRoundChange(qc *nimbus.QuorumCertificate, newRound uint64)

	// OnTCTriggeredRoundChange is emitted when an observed TC advances the
	// round.
	OnTCTriggeredRoundChange(tc *nimbus.TimeoutCertificate, newRound uint64)

	// OnReceiveProposal is emitted when the event loop starts processing a
	// proposal.
	OnReceiveProposal(curRound uint64, proposal *model.Proposal)

	// OnProposingBlock is emitted when this node broadcasts its own
	// proposal as leader.
	OnProposingBlock(proposal *model.Proposal)

	// OnVoting is emitted when this node sends a vote for a block.
	OnVoting(vote *model.Vote)

	// OnBlockIncorporated is emitted when a block was added to the block
	// tree.
	OnBlockIncorporated(block *model.Block)

	// OnQCConstructed is emitted when the vote aggregator assembles a QC
	// from collected votes.
	OnQCConstructed(qc *nimbus.QuorumCertificate)

	// OnTCConstructed is emitted when the timeout aggregator assembles a TC
	// from collected timeouts.
	OnTCConstructed(tc *nimbus.TimeoutCertificate)

	// OnBlockCommitted is emitted after a block has been durably committed.
	OnBlockCommitted(block *model.CommittedBlock)

	// OnEpochTransition is emitted when the committed chain crosses an epoch
	// boundary.
	OnEpochTransition(setup *nimbus.EpochSetup)

	// OnDoubleProposeDetected is emitted when two conflicting proposals by
	// the same leader for the same round are observed.
	OnDoubleProposeDetected(block *model.Block, alt *model.Block)

	// OnDoubleVotingDetected is emitted when a validator votes for two
	// different blocks in the same round. Equivocation evidence for slashing.
	OnDoubleVotingDetected(firstVote *model.Vote, conflictingVote *model.Vote)

	// OnDoubleTimeoutDetected is emitted when a validator signs two
	// semantically different timeouts for the same round.
	OnDoubleTimeoutDetected(firstTimeout *model.TimeoutObject, conflictingTimeout *model.TimeoutObject)

	// OnInvalidVoteDetected is emitted when an invalid vote was dropped at
	// the ingestion boundary.
	OnInvalidVoteDetected(err model.InvalidVoteError)

	// OnInvalidTimeoutDetected is emitted when an invalid timeout was
	// dropped at the ingestion boundary.
	OnInvalidTimeoutDetected(err model.InvalidTimeoutError)
}
