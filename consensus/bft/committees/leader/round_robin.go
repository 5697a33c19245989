// Package leader implements the pluggable leader-election strategies. Each
// strategy is a pure function of (round, epoch setup), so all honest nodes
// agree on the leader of every round without communication.
package leader

import (
	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
)

// RoundRobin rotates leadership through the committee in canonical order,
// one round per validator.
type RoundRobin struct {
	firstRound    uint64
	committeeSize int
}

var _ bft.LeaderSelector = (*RoundRobin)(nil)

// NewRoundRobin creates a round-robin selector for an epoch starting at
// firstRound with the given committee size.
func NewRoundRobin(firstRound uint64, committeeSize int) (*RoundRobin, error) {
	if committeeSize == 0 {
		return nil, model.NewConfigurationErrorf("committee must not be empty")
	}
	return &RoundRobin{
		firstRound:    firstRound,
		committeeSize: committeeSize,
	}, nil
}

// LeaderForRound returns the committee index of the round's leader.
// Returns model.ErrViewForUnknownEpoch if the round precedes the epoch.
func (r *RoundRobin) LeaderForRound(round uint64) (int, error) {
	if round < r.firstRound {
		return 0, model.ErrViewForUnknownEpoch
	}
	return int((round - r.firstRound) % uint64(r.committeeSize)), nil
}
