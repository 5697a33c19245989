package bft

import (
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// Replicas is the consensus committee for one epoch: the fixed validator set
// with stake-weighted voting power, the quorum thresholds derived from it,
// and the leader-election function. The leader function is a pure function of
// (round, validator set) and is identical on every node.
//
// Safe for concurrent use; the committee is immutable for the epoch.
type Replicas interface {
	// Epoch returns the epoch counter this committee belongs to.
	Epoch() uint64

	// Self returns this node's identifier.
	Self() nimbus.Identifier

	// LeaderForRound returns the node ID of the round's designated leader.
	// Returns model.ErrViewForUnknownEpoch if the round precedes the epoch.
	LeaderForRound(round uint64) (nimbus.Identifier, error)

	// ValidatorByID returns the validator with the given node ID.
	// Returns model.InvalidSignerError if the node is not a committee member.
	ValidatorByID(nodeID nimbus.Identifier) (*nimbus.Validator, error)

	// Validators returns the full committee in canonical order.
	Validators() nimbus.ValidatorList

	// TotalWeight returns the total voting power of the committee.
	TotalWeight() uint64

	// QuorumThreshold returns the minimal accumulated weight required for a
	// QC or TC: strictly more than 2/3 of the total weight.
	QuorumThreshold() uint64

	// TimeoutThreshold returns the minimal accumulated weight proving at
	// least one honest validator timed out: strictly more than 1/3 of the
	// total weight.
	TimeoutThreshold() uint64
}

// LeaderSelector computes the designated leader for a round. Strategies are
// pluggable per epoch (round-robin, stake-weighted random).
type LeaderSelector interface {
	// LeaderForRound returns the index into the epoch's validator list of
	// the round's leader.
	LeaderForRound(round uint64) (int, error)
}
