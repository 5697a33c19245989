package bft

import (
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// BlockRetriever is the minimal read access a commit rule needs into the
// block tree.
type BlockRetriever interface {
	GetBlock(blockID nimbus.Identifier) (*model.Block, bool)
}

// CommitRule derives, from the certified chain, which block becomes final
// when a new certificate is incorporated. The rule variant (3-chain, 2-chain
// with contiguity check) is a point of protocol-version divergence and is
// selected by epoch configuration.
//
// Implementations must be pure: same certified chain, same answer, on every
// node.
type CommitRule interface {
	// CommitTarget returns the newest block that becomes committed as a
	// consequence of `certified` receiving a quorum certificate, and true,
	// or (nil, false) if no block becomes committed.
	CommitTarget(certified *model.CertifiedBlock, blocks BlockRetriever) (*model.Block, bool)
}
