// Package committees provides the epoch committee: the fixed validator set,
// its stake-derived quorum thresholds and the configured leader selection.
package committees

import (
	"fmt"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/committees/leader"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// Committee implements bft.Replicas for a single epoch. All values are fixed
// at construction from the epoch setup; the committee never changes within an
// epoch, which makes the struct safe for concurrent use without locking.
type Committee struct {
	epoch            uint64
	me               nimbus.Identifier
	validators       nimbus.ValidatorList
	byID             map[nimbus.Identifier]*nimbus.Validator
	totalWeight      uint64
	quorumThreshold  uint64
	timeoutThreshold uint64
	selector         bft.LeaderSelector
}

var _ bft.Replicas = (*Committee)(nil)

// NewCommittee instantiates the committee for the given epoch setup. The
// leader selector is chosen from the setup's leader policy.
func NewCommittee(setup *nimbus.EpochSetup, me nimbus.Identifier) (*Committee, error) {
	if len(setup.Validators) == 0 {
		return nil, model.NewConfigurationErrorf("epoch %d has an empty validator set", setup.Counter)
	}

	var selector bft.LeaderSelector
	var err error
	switch setup.LeaderPolicy {
	case nimbus.LeaderPolicyRoundRobin:
		selector, err = leader.NewRoundRobin(setup.FirstRound, len(setup.Validators))
	case nimbus.LeaderPolicyWeightedRandom:
		selector, err = leader.NewWeightedRandom(setup.FirstRound, setup.Validators, setup.Seed)
	default:
		return nil, model.NewConfigurationErrorf("unknown leader policy %q", setup.LeaderPolicy)
	}
	if err != nil {
		return nil, fmt.Errorf("could not create leader selector for epoch %d: %w", setup.Counter, err)
	}

	byID := make(map[nimbus.Identifier]*nimbus.Validator, len(setup.Validators))
	for _, v := range setup.Validators {
		if _, dup := byID[v.NodeID]; dup {
			return nil, model.NewConfigurationErrorf("duplicate validator %v in epoch %d", v.NodeID, setup.Counter)
		}
		byID[v.NodeID] = v
	}

	totalWeight := setup.Validators.TotalWeight()
	return &Committee{
		epoch:            setup.Counter,
		me:               me,
		validators:       setup.Validators,
		byID:             byID,
		totalWeight:      totalWeight,
		quorumThreshold:  bft.ComputeWeightThresholdForBuildingQC(totalWeight),
		timeoutThreshold: bft.ComputeWeightThresholdForTimingOut(totalWeight),
		selector:         selector,
	}, nil
}

// Epoch returns the epoch counter this committee belongs to.
func (c *Committee) Epoch() uint64 {
	return c.epoch
}

// Self returns this node's identifier.
func (c *Committee) Self() nimbus.Identifier {
	return c.me
}

// LeaderForRound returns the node ID of the round's designated leader.
// Returns model.ErrViewForUnknownEpoch if the round precedes the epoch.
func (c *Committee) LeaderForRound(round uint64) (nimbus.Identifier, error) {
	index, err := c.selector.LeaderForRound(round)
	if err != nil {
		return nimbus.ZeroID, err
	}
	return c.validators[index].NodeID, nil
}

// ValidatorByID returns the validator with the given node ID.
// Returns model.InvalidSignerError if the node is not a committee member.
func (c *Committee) ValidatorByID(nodeID nimbus.Identifier) (*nimbus.Validator, error) {
	v, ok := c.byID[nodeID]
	if !ok {
		return nil, model.NewInvalidSignerErrorf("%v is not a member of epoch %d", nodeID, c.epoch)
	}
	return v, nil
}

// Validators returns the full committee in canonical order.
func (c *Committee) Validators() nimbus.ValidatorList {
	return c.validators
}

// TotalWeight returns the total voting power of the committee.
func (c *Committee) TotalWeight() uint64 {
	return c.totalWeight
}

// QuorumThreshold returns the minimal weight for building a QC or TC.
func (c *Committee) QuorumThreshold() uint64 {
	return c.quorumThreshold
}

// TimeoutThreshold returns the minimal weight proving an honest timeout.
func (c *Committee) TimeoutThreshold() uint64 {
	return c.timeoutThreshold
}
