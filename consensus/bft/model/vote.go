package model

import (
	"fmt"

	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// Vote is one validator's signature over (block ID, round), contributed
// towards a quorum certificate for the referenced block.
type Vote struct {
	Round    uint64
	Epoch    uint64
	BlockID  nimbus.Identifier
	SignerID nimbus.Identifier
	SigData  []byte
}

// UntrustedVote is an untrusted input-only representation of a Vote, used for
// construction. It ensures constructors are invoked explicitly with named
// fields, which reduces the risk of incorrect field ordering.
type UntrustedVote Vote

// NewVote creates a new instance of Vote.
//
// All errors indicate a valid Vote cannot be constructed from the input.
func NewVote(untrusted UntrustedVote) (*Vote, error) {
	if untrusted.BlockID == nimbus.ZeroID {
		return nil, fmt.Errorf("BlockID must not be empty")
	}
	if untrusted.SignerID == nimbus.ZeroID {
		return nil, fmt.Errorf("SignerID must not be empty")
	}
	if len(untrusted.SigData) == 0 {
		return nil, fmt.Errorf("SigData must not be empty")
	}
	return &Vote{
		Round:    untrusted.Round,
		Epoch:    untrusted.Epoch,
		BlockID:  untrusted.BlockID,
		SignerID: untrusted.SignerID,
		SigData:  untrusted.SigData,
	}, nil
}

// ID returns the identifier for the vote.
func (v *Vote) ID() nimbus.Identifier {
	return nimbus.MakeID(v)
}
