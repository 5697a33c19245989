package nimbus

import (
	"fmt"

	"github.com/onflow/crypto"
)

// Validator represents one member of the consensus committee for an epoch.
// The voting power of a validator is its staked weight; all quorum
// calculations are weighted by stake, not by head count.
type Validator struct {
	NodeID        Identifier
	StakingPubKey crypto.PublicKey
	Weight        uint64
}

func (v Validator) String() string {
	return fmt.Sprintf("%s=%d", v.NodeID, v.Weight)
}

// ValidatorList is the fixed, ordered set of validators for an epoch. The
// ordering is part of the epoch setup and must be identical on every node,
// as leader selection indexes into it.
type ValidatorList []*Validator

// TotalWeight returns the total voting power of the validator set.
func (l ValidatorList) TotalWeight() uint64 {
	var total uint64
	for _, v := range l {
		total += v.Weight
	}
	return total
}

// NodeIDs returns the identifiers of all validators, in canonical order.
func (l ValidatorList) NodeIDs() IdentifierList {
	ids := make(IdentifierList, 0, len(l))
	for _, v := range l {
		ids = append(ids, v.NodeID)
	}
	return ids
}

// ByNodeID returns the validator with the given node ID.
func (l ValidatorList) ByNodeID(nodeID Identifier) (*Validator, bool) {
	for _, v := range l {
		if v.NodeID == nodeID {
			return v, true
		}
	}
	return nil, false
}

// PublicStakingKeys returns the staking public keys of all validators, in
// the same order as the list.
func (l ValidatorList) PublicStakingKeys() []crypto.PublicKey {
	keys := make([]crypto.PublicKey, 0, len(l))
	for _, v := range l {
		keys = append(keys, v.StakingPubKey)
	}
	return keys
}

// WeightOf returns the voting power of the given node, or zero if the node
// is not a member of the validator set.
func (l ValidatorList) WeightOf(nodeID Identifier) uint64 {
	v, ok := l.ByNodeID(nodeID)
	if !ok {
		return 0
	}
	return v.Weight
}
